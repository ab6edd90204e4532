package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"github.com/arnavshah/carelink-api-go/pkg/payout"
	"github.com/arnavshah/carelink-api-go/pkg/realtime"
	"github.com/arnavshah/carelink-api-go/pkg/scheduler"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListTimesheets returns the caller's timesheets, or those of the operator's homes
func (h *Handler) ListTimesheets(c *gin.Context) {
	id := mustIdentity(c)
	ctx := c.Request.Context()

	q := h.DB.WithContext(ctx).Model(&database.Timesheet{})
	switch {
	case id.IsStaff():
	case id.Role == database.RoleCaregiver:
		cg, err := h.caregiverFor(ctx, id.UserID)
		if err != nil {
			h.fail(c, err)
			return
		}
		q = q.Where("caregiver_id = ?", cg.ID)
	case id.Role == database.RoleOperator:
		op, err := h.operatorFor(ctx, id.UserID)
		if err != nil {
			h.fail(c, err)
			return
		}
		homes := h.DB.Model(&database.Home{}).Select("id").Where("operator_id = ?", op.ID)
		q = q.Where("shift_id IN (?)", h.DB.Model(&database.Shift{}).Select("id").Where("home_id IN (?)", homes))
	default:
		h.fail(c, apierror.Forbidden("Insufficient permissions"))
		return
	}
	if s := c.Query("status"); s != "" {
		q = q.Where("status = ?", s)
	}

	var sheets []database.Timesheet
	if err := q.Preload("Shift.Home").Order("start_time DESC").Find(&sheets).Error; err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sheets})
}

// StartTimesheet clocks the caregiver in on their assigned shift
func (h *Handler) StartTimesheet(c *gin.Context) {
	var req struct {
		ShiftID string `json:"shiftId" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	cg, err := h.caregiverFor(ctx, mustIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var (
		sheet database.Timesheet
		shift database.Shift
	)
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&shift, "id = ?", req.ShiftID).Error; err != nil {
			return notFoundOr(err, "Shift not found")
		}
		if shift.CaregiverID == nil || *shift.CaregiverID != cg.ID {
			return apierror.Forbidden("You are not assigned to this shift")
		}
		var existing int64
		if err := tx.Model(&database.Timesheet{}).Where("shift_id = ?", shift.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apierror.Conflict("A timesheet already exists for this shift")
		}
		to, err := workflow.Shifts.Next(shift.Status, workflow.ShiftStart)
		if err != nil {
			return err
		}
		if err := transition(tx, &database.Shift{}, "shift", shift.ID, shift.Status, to, nil); err != nil {
			return err
		}
		shift.Status = to

		sheet = database.Timesheet{
			ShiftID:     shift.ID,
			CaregiverID: cg.ID,
			StartTime:   time.Now().UTC(),
			Status:      workflow.TimesheetDraft,
		}
		if err := tx.Create(&sheet).Error; err != nil {
			return err
		}
		metrics.Transitions.WithLabelValues("timesheet", string(workflow.TimesheetDraft)).Inc()
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notifyOperator(c, shift.HomeID, "shift.started", "Shift started",
		"A caregiver clocked in.", map[string]any{"shiftId": shift.ID, "timesheetId": sheet.ID})
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": sheet})
}

// EndTimesheet clocks the caregiver out and submits the timesheet
func (h *Handler) EndTimesheet(c *gin.Context) {
	var req struct {
		TimesheetID  string `json:"timesheetId" binding:"required"`
		BreakMinutes int    `json:"breakMinutes" binding:"gte=0,lte=1440"`
		Notes        string `json:"notes" binding:"max=2000"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	cg, err := h.caregiverFor(ctx, mustIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var (
		sheet database.Timesheet
		shift database.Shift
	)
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sheet, "id = ? AND caregiver_id = ?", req.TimesheetID, cg.ID).Error; err != nil {
			return notFoundOr(err, "Timesheet not found")
		}
		if err := database.ForUpdate(tx).First(&shift, "id = ?", sheet.ShiftID).Error; err != nil {
			return err
		}
		if shift.Status == workflow.ShiftCancelled {
			return apierror.Conflict("Shift was cancelled")
		}

		to, err := workflow.Timesheets.Next(sheet.Status, workflow.TimesheetSubmit)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := transition(tx, &database.Timesheet{}, "timesheet", sheet.ID, sheet.Status, to, map[string]any{
			"end_time":      now,
			"break_minutes": req.BreakMinutes,
			"notes":         req.Notes,
		}); err != nil {
			return err
		}
		sheet.Status, sheet.EndTime, sheet.BreakMinutes, sheet.Notes = to, &now, req.BreakMinutes, req.Notes

		// the operator may have completed the shift already
		if shift.Status != workflow.ShiftCompleted {
			shiftTo, err := workflow.Shifts.Next(shift.Status, workflow.ShiftComplete)
			if err != nil {
				return err
			}
			if err := transition(tx, &database.Shift{}, "shift", shift.ID, shift.Status, shiftTo, nil); err != nil {
				return err
			}
			shift.Status = shiftTo
		}
		return tx.Model(&database.Hire{}).
			Where("shift_id = ? AND status = ?", shift.ID, database.HireActive).
			Update("status", database.HireCompleted).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notifyOperator(c, shift.HomeID, "timesheet.submitted", "Timesheet submitted",
		"A timesheet is waiting for your approval.", map[string]any{"shiftId": shift.ID, "timesheetId": sheet.ID})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sheet})
}

// loadManagedTimesheet loads a timesheet and checks the caller manages its home.
func (h *Handler) loadManagedTimesheet(c *gin.Context) (*database.Timesheet, error) {
	var sheet database.Timesheet
	if err := h.DB.WithContext(c.Request.Context()).Preload("Shift.Home").First(&sheet, "id = ?", c.Param("id")).Error; err != nil {
		return nil, notFoundOr(err, "Timesheet not found")
	}
	if err := h.authorizeHome(c.Request.Context(), mustIdentity(c), sheet.Shift.Home); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// ApproveTimesheet approves a submitted timesheet
func (h *Handler) ApproveTimesheet(c *gin.Context) {
	sheet, err := h.loadManagedTimesheet(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := workflow.Timesheets.Next(sheet.Status, workflow.TimesheetApprove)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	userID := mustIdentity(c).UserID
	now := time.Now().UTC()
	if err := transition(h.DB.WithContext(ctx), &database.Timesheet{}, "timesheet", sheet.ID, sheet.Status, to,
		map[string]any{"approved_by": userID, "approved_at": now}); err != nil {
		h.fail(c, err)
		return
	}
	sheet.Status, sheet.ApprovedBy, sheet.ApprovedAt = to, &userID, &now

	h.notifyCaregiver(c, sheet.CaregiverID, "timesheet.approved", "Timesheet approved",
		"Your timesheet was approved.", map[string]any{"timesheetId": sheet.ID, "shiftId": sheet.ShiftID})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sheet})
}

// PayTimesheet pays the caregiver for an approved timesheet through the processor
func (h *Handler) PayTimesheet(c *gin.Context) {
	ctx := c.Request.Context()
	op, err := h.operatorFor(ctx, mustIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var sheet database.Timesheet
	if err := h.DB.WithContext(ctx).Preload("Shift.Home").First(&sheet, "id = ?", c.Param("id")).Error; err != nil {
		h.fail(c, notFoundOr(err, "Timesheet not found"))
		return
	}
	if sheet.Shift == nil || sheet.Shift.Home == nil || sheet.Shift.Home.OperatorID != op.ID {
		h.fail(c, apierror.Forbidden("You do not manage this home"))
		return
	}
	if sheet.Status != workflow.TimesheetApproved || sheet.EndTime == nil {
		h.fail(c, apierror.Conflict("Timesheet must be approved before payment"))
		return
	}

	var hire database.Hire
	if err := h.DB.WithContext(ctx).First(&hire, "shift_id = ?", sheet.ShiftID).Error; err != nil {
		h.fail(c, notFoundOr(err, "No hire record for this shift"))
		return
	}

	hours := scheduler.PayableHours(sheet.StartTime, *sheet.EndTime, sheet.BreakMinutes)
	amount := scheduler.AmountCents(hours, sheet.Shift.HourlyRate)

	var payment database.Payment
	err = h.DB.WithContext(ctx).Where("hire_id = ?", hire.ID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		payment = database.Payment{
			HireID:      hire.ID,
			PayerUserID: op.UserID,
			AmountCents: amount,
			Currency:    h.Config.Payout.Currency,
			Status:      workflow.PaymentPending,
			Description: "Shift " + sheet.ShiftID,
		}
		err = h.DB.WithContext(ctx).Create(&payment).Error
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if payment.Status == workflow.PaymentProcessing || payment.Status == workflow.PaymentCompleted {
		h.fail(c, apierror.Conflict("Payment is already "+string(payment.Status)))
		return
	}

	var cg database.Caregiver
	if err := h.DB.WithContext(ctx).First(&cg, "id = ?", sheet.CaregiverID).Error; err != nil {
		h.fail(c, err)
		return
	}
	if cg.PayoutAccountID == "" {
		h.fail(c, apierror.BadRequest("Caregiver has no payout account"))
		return
	}
	acct, err := h.Payouts.RetrieveAccount(ctx, cg.PayoutAccountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !acct.PayoutsEnabled {
		h.fail(c, apierror.BadRequest("Caregiver payout account cannot receive payouts"))
		return
	}

	to, err := workflow.Payments.Next(payment.Status, workflow.PaymentProcess)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := transition(h.DB.WithContext(ctx), &database.Payment{}, "payment", payment.ID, payment.Status, to,
		map[string]any{"amount_cents": amount, "attempts": gorm.Expr("attempts + 1")}); err != nil {
		h.fail(c, err)
		return
	}
	var attempts int
	if err := h.DB.WithContext(ctx).Model(&database.Payment{}).Select("attempts").
		Where("id = ?", payment.ID).Scan(&attempts).Error; err != nil {
		h.fail(c, err)
		return
	}

	transfer, err := h.Payouts.CreateTransfer(ctx, payout.TransferRequest{
		AmountCents:    amount,
		Currency:       payment.Currency,
		Destination:    cg.PayoutAccountID,
		IdempotencyKey: payoutKey(payment.ID, attempts),
		Metadata: map[string]string{
			"paymentId":   payment.ID,
			"hireId":      hire.ID,
			"timesheetId": sheet.ID,
		},
	})
	if err != nil {
		metrics.Payouts.WithLabelValues("error").Inc()
		back, _ := workflow.Payments.Next(to, workflow.PaymentRevert)
		if rerr := transition(h.DB.WithContext(ctx), &database.Payment{}, "payment", payment.ID, to, back, nil); rerr != nil {
			h.Log.Error("could not release payment claim", zap.Error(rerr), zap.String("paymentId", payment.ID))
		}
		h.fail(c, apierror.Internal(err))
		return
	}

	if err := h.DB.WithContext(ctx).Model(&database.Payment{}).Where("id = ?", payment.ID).
		Update("transfer_id", transfer.ID).Error; err != nil {
		h.Log.Error("transfer created but not recorded", zap.Error(err),
			zap.String("paymentId", payment.ID), zap.String("transferId", transfer.ID))
	}
	metrics.Payouts.WithLabelValues("created").Inc()
	h.Log.Info("payout transfer created",
		zap.String("paymentId", payment.ID), zap.String("transferId", transfer.ID), zap.Int64("amountCents", amount))

	h.Events.Publish(ctx, realtime.CaregiverChannel(cg.ID), "payment.processing",
		map[string]any{"paymentId": payment.ID, "amountCents": amount})
	c.JSON(http.StatusOK, gin.H{"success": true, "transferId": transfer.ID, "paymentId": payment.ID})
}

// payoutKey is the processor idempotency key for one claim of a payment.
// Each claim gets a fresh key so a retry after a failure creates a new transfer.
func payoutKey(paymentID string, attempt int) string {
	return paymentID + ":" + strconv.Itoa(attempt)
}

// SetPayoutAccount links the caregiver to a connected payout account
func (h *Handler) SetPayoutAccount(c *gin.Context) {
	var req struct {
		AccountID string `json:"accountId" binding:"required,max=255"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	cg, err := h.caregiverFor(ctx, mustIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	if _, err := h.Payouts.RetrieveAccount(ctx, req.AccountID); err != nil && !errors.Is(err, payout.ErrNotConfigured) {
		var apiErr *payout.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			h.fail(c, apierror.Field("accountId", "Unknown payout account"))
			return
		}
		h.fail(c, err)
		return
	}

	if err := h.DB.WithContext(ctx).Model(cg).Update("payout_account_id", req.AccountID).Error; err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": cg})
}
