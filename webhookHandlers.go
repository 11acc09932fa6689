package main

import (
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/gateway"
	"github.com/mmdatafocus/clinic_backend/workflow"
)

// Gateways retry until they see a success acknowledgment, so both webhooks
// acknowledge every delivery and leave failures to the log.

const maxWebhookBody = 1 << 20

func alipayWebhookHandler(verifier gateway.AlipayVerifier, requireSigned bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			config.LogError(logger, "server", "alipayWebhookHandler", "io.ReadAll", nil, err)
			c.String(http.StatusOK, "success")
			return
		}
		form, err := url.ParseQuery(string(body))
		var n gateway.Notification
		if err != nil {
			n = gateway.Notification{Provider: gateway.ProviderAlipay, Payload: body}
		} else {
			n, err = gateway.ParseAlipayNotification(form, verifier)
		}
		err = gateway.RequireVerified(n, err, requireSigned)
		workflow.AcknowledgeGatewayNotification(c.Request.Context(), n, err, c.Request.Header)
		c.String(http.StatusOK, "success")
	}
}

func midtransWebhookHandler(serverKey string, requireSigned bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			config.LogError(logger, "server", "midtransWebhookHandler", "io.ReadAll", nil, err)
			c.JSON(http.StatusOK, gin.H{"status": "success"})
			return
		}
		n, err := gateway.ParseMidtransNotification(body, serverKey)
		err = gateway.RequireVerified(n, err, requireSigned)
		workflow.AcknowledgeGatewayNotification(c.Request.Context(), n, err, c.Request.Header)
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}
