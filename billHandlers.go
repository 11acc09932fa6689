package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/clinic_backend/gateway"
	"github.com/mmdatafocus/clinic_backend/models"
	"github.com/mmdatafocus/clinic_backend/utils"
	"github.com/mmdatafocus/clinic_backend/workflow"
)

type generateBillRequest struct {
	MedicalRecordId        int  `json:"medical_record_id" validate:"required,gt=0"`
	IncludeConsultationFee bool `json:"include_consultation_fee"`
}

type recordPaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=cash card alipay midtrans"`
}

// respondError maps the billing error kinds to HTTP statuses. Anything else is
// logged and reported as a bare 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch utils.ErrorKind(err) {
	case utils.ErrResourceNotFound:
		status = http.StatusNotFound
	case utils.ErrValidation:
		status = http.StatusUnprocessableEntity
	case utils.ErrBusinessRule:
		status = http.StatusConflict
	case utils.ErrAuthenticationRequired:
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestActor(c *gin.Context) utils.Actor {
	actor, _ := utils.ActorFromContext(c.Request.Context())
	return actor
}

func pathId(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, utils.Validation("%s must be a positive integer", name)
	}
	return id, nil
}

func bindJSON(c *gin.Context, dest any) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return utils.Validation("invalid request body: %v", err)
	}
	return utils.ValidateStruct(dest)
}

func generateBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateBillRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
		bill, err := models.GenerateBillForMedicalRecord(c.Request.Context(), requestActor(c), req.MedicalRecordId, req.IncludeConsultationFee)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bill)
	}
}

func getBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		billId, err := pathId(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		summary, err := models.GetBill(c.Request.Context(), billId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func billHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		billId, err := pathId(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		history, err := models.GetBillHistory(c.Request.Context(), billId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

func recordPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		billId, err := pathId(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		var req recordPaymentRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
		amount, err := utils.ParseMoney(req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		payment, err := models.RecordPayment(c.Request.Context(), requestActor(c), billId, amount, models.PaymentMethod(req.Method))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	}
}

func voidBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		billId, err := pathId(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		bill, err := models.VoidBill(c.Request.Context(), requestActor(c), billId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func removeBillItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		billId, err := pathId(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		itemId, err := pathId(c, "itemId")
		if err != nil {
			respondError(c, err)
			return
		}
		bill, err := models.RemoveBillItem(c.Request.Context(), requestActor(c), billId, itemId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func deleteBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		billId, err := pathId(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		if err := models.DeleteBill(c.Request.Context(), requestActor(c), billId); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func startOnlinePaymentHandler(client gateway.SnapTransactionCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "online payment is not configured"})
			return
		}
		billId, err := pathId(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		session, err := workflow.StartOnlinePayment(c.Request.Context(), requestActor(c), billId, client)
		if err != nil {
			var appErr *utils.AppError
			if !errors.As(err, &appErr) {
				_ = c.Error(err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

func gatewayNotificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		billId, err := pathId(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		rows, err := models.ListGatewayNotifications(c.Request.Context(), billId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}
