package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/auth"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"github.com/arnavshah/carelink-api-go/pkg/payout"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const signatureHeader = "X-Payout-Signature"

type transferEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Status   string            `json:"status"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

var paymentEventFor = map[workflow.PaymentStatus]workflow.PaymentEvent{
	workflow.PaymentProcessing: workflow.PaymentProcess,
	workflow.PaymentCompleted:  workflow.PaymentComplete,
	workflow.PaymentFailed:     workflow.PaymentFail,
}

// PayoutWebhook applies transfer status updates from the payment processor.
// Events that cannot be applied are acknowledged so the processor stops retrying.
func (h *Handler) PayoutWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		h.fail(c, apierror.BadRequest("Could not read body"))
		return
	}

	if secret := h.Config.Payout.WebhookSecret; secret != "" {
		if err := auth.VerifySignature(secret, payload, c.GetHeader(signatureHeader)); err != nil {
			h.Log.Warn("rejected payout webhook", zap.Error(err))
			h.fail(c, apierror.Unauthorized("Invalid signature"))
			return
		}
	} else if h.Config.IsProduction() {
		h.fail(c, apierror.Internal(errors.New("payout webhook secret is not configured")))
		return
	}

	var ev transferEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		h.fail(c, apierror.BadRequest("Malformed event"))
		return
	}
	obj := ev.Data.Object
	log := h.Log.With(zap.String("type", ev.Type), zap.String("transferId", obj.ID), zap.String("status", obj.Status))

	target, ok := payout.MapTransferStatus(obj.Status)
	if !ok {
		log.Debug("ignoring transfer status")
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	ctx := c.Request.Context()
	var payment database.Payment
	q := h.DB.WithContext(ctx)
	err = gorm.ErrRecordNotFound
	if obj.ID != "" {
		err = q.Where("transfer_id = ?", obj.ID).First(&payment).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) && obj.Metadata["hireId"] != "" {
		// a recorded transfer id means the event belongs to an earlier attempt
		err = q.Where("hire_id = ? AND (transfer_id = '' OR transfer_id IS NULL)", obj.Metadata["hireId"]).
			First(&payment).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("no payment for transfer event")
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
			return
		}
		h.fail(c, err)
		return
	}

	to, err := workflow.Payments.Next(payment.Status, paymentEventFor[target])
	if err != nil {
		log.Info("ignoring illegal payment transition", zap.String("paymentId", payment.ID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	var hire database.Hire
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		extra := map[string]any{}
		if payment.TransferID == "" && obj.ID != "" {
			extra["transfer_id"] = obj.ID
		}
		if err := transition(tx, &database.Payment{}, "payment", payment.ID, payment.Status, to, extra); err != nil {
			return err
		}
		if err := tx.First(&hire, "id = ?", payment.HireID).Error; err != nil {
			return err
		}
		if to != workflow.PaymentCompleted {
			return nil
		}

		var sheet database.Timesheet
		if err := tx.First(&sheet, "shift_id = ?", hire.ShiftID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		paid, err := workflow.Timesheets.Next(sheet.Status, workflow.TimesheetSettle)
		if err != nil {
			log.Warn("timesheet not settled", zap.String("timesheetId", sheet.ID), zap.Error(err))
			return nil
		}
		return transition(tx, &database.Timesheet{}, "timesheet", sheet.ID, sheet.Status, paid, nil)
	})
	if err != nil {
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			log.Info("payment changed concurrently", zap.String("paymentId", payment.ID))
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
			return
		}
		h.fail(c, err)
		return
	}

	outcome := map[workflow.PaymentStatus]string{
		workflow.PaymentProcessing: "pending",
		workflow.PaymentCompleted:  "paid",
		workflow.PaymentFailed:     "failed",
	}[to]
	metrics.Payouts.WithLabelValues(outcome).Inc()
	log.Info("payment updated", zap.String("paymentId", payment.ID), zap.String("to", string(to)))

	if to != workflow.PaymentProcessing {
		title, msg := "Payment sent", "Your payment has been completed."
		if to == workflow.PaymentFailed {
			title, msg = "Payment failed", "A payment to you failed. The operator will retry."
		}
		h.notifyCaregiver(c, hire.CaregiverID, "payment."+outcome, title, msg,
			map[string]any{"paymentId": payment.ID, "amountCents": payment.AmountCents})
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
