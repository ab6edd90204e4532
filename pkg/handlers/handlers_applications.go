package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"github.com/arnavshah/carelink-api-go/pkg/realtime"
	"github.com/arnavshah/carelink-api-go/pkg/scheduler"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// lockOpenShift locks the shift row and requires it to still be OPEN.
func lockOpenShift(tx *gorm.DB, shiftID string) (*database.Shift, error) {
	var shift database.Shift
	if err := database.ForUpdate(tx).First(&shift, "id = ?", shiftID).Error; err != nil {
		return nil, notFoundOr(err, "Shift not found")
	}
	if shift.Status != workflow.ShiftOpen {
		return nil, apierror.Conflict("Shift is not open")
	}
	return &shift, nil
}

func findApplication(tx *gorm.DB, shiftID, caregiverID string) (*database.ShiftApplication, error) {
	var app database.ShiftApplication
	err := tx.Where("shift_id = ? AND caregiver_id = ?", shiftID, caregiverID).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// notificationType files an event under the matching notification type.
func notificationType(event string) database.NotificationType {
	switch {
	case strings.HasPrefix(event, "payment."):
		return database.NotifyPayment
	case strings.HasPrefix(event, "inquiry."):
		return database.NotifyInquiry
	}
	return database.NotifyBooking
}

// notifyOperator tells the operator managing homeID about an event.
func (h *Handler) notifyOperator(c *gin.Context, homeID, event, title, message string, data map[string]any) {
	ctx := c.Request.Context()
	operatorID, userID, err := h.homeOwner(ctx, homeID)
	if err != nil {
		h.Log.Warn("could not resolve home operator", zap.Error(err), zap.String("homeId", homeID))
		return
	}
	h.notify(ctx, userID, notificationType(event), title, message, data)
	h.Events.Publish(ctx, realtime.OperatorChannel(operatorID), event, data)
}

// notifyCaregiver tells a caregiver about an event.
func (h *Handler) notifyCaregiver(c *gin.Context, caregiverID, event, title, message string, data map[string]any) {
	ctx := c.Request.Context()
	userID, err := h.caregiverUser(ctx, caregiverID)
	if err != nil {
		h.Log.Warn("could not resolve caregiver user", zap.Error(err), zap.String("caregiverId", caregiverID))
		return
	}
	h.notify(ctx, userID, notificationType(event), title, message, data)
	h.Events.Publish(ctx, realtime.CaregiverChannel(caregiverID), event, data)
}

// ApplyToShift records the calling caregiver's application to an open shift
func (h *Handler) ApplyToShift(c *gin.Context) {
	var req struct {
		Notes string `json:"notes" binding:"max=2000"`
	}
	if err := bindOptional(c, &req); err != nil {
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
		app   *database.ShiftApplication
		shift *database.Shift
	)
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if shift, err = lockOpenShift(tx, c.Param("id")); err != nil {
			return err
		}
		if app, err = findApplication(tx, shift.ID, cg.ID); err != nil {
			return err
		}

		if app == nil {
			app = &database.ShiftApplication{
				ShiftID:     shift.ID,
				CaregiverID: cg.ID,
				Status:      workflow.AppApplied,
				Notes:       req.Notes,
			}
			if err := tx.Create(app).Error; err != nil {
				return err
			}
			metrics.Transitions.WithLabelValues("application", string(workflow.AppApplied)).Inc()
			return nil
		}

		switch {
		case app.Status.Active():
			return apierror.Conflict("You have already applied to this shift")
		case app.Status == workflow.AppRejected:
			return apierror.Conflict("Your application to this shift was rejected")
		}
		to, err := workflow.Applications.Next(app.Status, workflow.AppReapply)
		if err != nil {
			return err
		}
		if err := transition(tx, &database.ShiftApplication{}, "application", app.ID, app.Status, to,
			map[string]any{"notes": req.Notes, "withdrawn_at": nil}); err != nil {
			return err
		}
		app.Status, app.Notes, app.WithdrawnAt = to, req.Notes, nil
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notifyOperator(c, shift.HomeID, "application.created", "New shift application",
		"A caregiver applied to one of your shifts.",
		map[string]any{"shiftId": shift.ID, "applicationId": app.ID, "caregiverId": cg.ID})
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": app})
}

// WithdrawApplication withdraws the calling caregiver's active application
func (h *Handler) WithdrawApplication(c *gin.Context) {
	ctx := c.Request.Context()
	cg, err := h.caregiverFor(ctx, mustIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var (
		app   *database.ShiftApplication
		shift database.Shift
	)
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&shift, "id = ?", c.Param("id")).Error; err != nil {
			return notFoundOr(err, "Shift not found")
		}
		var err error
		if app, err = findApplication(tx, shift.ID, cg.ID); err != nil {
			return err
		}
		if app == nil || !app.Status.Active() {
			return apierror.NotFound("No active application for this shift")
		}
		if app.Status == workflow.AppAccepted && shift.Status != workflow.ShiftOpen {
			return apierror.Conflict("The shift is already confirmed; ask the operator to cancel it")
		}
		to, err := workflow.Applications.Next(app.Status, workflow.AppWithdraw)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := transition(tx, &database.ShiftApplication{}, "application", app.ID, app.Status, to,
			map[string]any{"withdrawn_at": now}); err != nil {
			return err
		}
		app.Status, app.WithdrawnAt = to, &now
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notifyOperator(c, shift.HomeID, "application.withdrawn", "Application withdrawn",
		"A caregiver withdrew from one of your shifts.",
		map[string]any{"shiftId": shift.ID, "applicationId": app.ID})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": app})
}

// OfferShift offers an open shift to a caregiver
func (h *Handler) OfferShift(c *gin.Context) {
	var req struct {
		CaregiverID string `json:"caregiverId" binding:"required"`
		Notes       string `json:"notes" binding:"max=2000"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	shift, err := h.loadManagedShift(ctx, mustIdentity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var cg database.Caregiver
	if err := h.DB.WithContext(ctx).First(&cg, "id = ?", req.CaregiverID).Error; err != nil {
		h.fail(c, notFoundOr(err, "Caregiver not found"))
		return
	}

	var app *database.ShiftApplication
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOpenShift(tx, shift.ID); err != nil {
			return err
		}
		var err error
		if app, err = findApplication(tx, shift.ID, cg.ID); err != nil {
			return err
		}
		now := time.Now().UTC()
		if app == nil {
			app = &database.ShiftApplication{
				ShiftID:     shift.ID,
				CaregiverID: cg.ID,
				Status:      workflow.AppOffered,
				Notes:       req.Notes,
				OfferedAt:   &now,
			}
			if err := tx.Create(app).Error; err != nil {
				return err
			}
			metrics.Transitions.WithLabelValues("application", string(workflow.AppOffered)).Inc()
			return nil
		}
		to, err := workflow.Applications.Next(app.Status, workflow.AppOffer)
		if err != nil {
			return err
		}
		extra := map[string]any{"offered_at": now}
		if req.Notes != "" {
			extra["notes"] = req.Notes
			app.Notes = req.Notes
		}
		if err := transition(tx, &database.ShiftApplication{}, "application", app.ID, app.Status, to, extra); err != nil {
			return err
		}
		app.Status, app.OfferedAt = to, &now
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notifyCaregiver(c, cg.ID, "shift.offered", "New shift offer",
		"You have been offered a shift.",
		map[string]any{"shiftId": shift.ID, "applicationId": app.ID})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": app})
}

// AcceptOffer accepts the calling caregiver's offer for a shift
func (h *Handler) AcceptOffer(c *gin.Context) {
	ctx := c.Request.Context()
	cg, err := h.caregiverFor(ctx, mustIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var (
		app   *database.ShiftApplication
		shift *database.Shift
	)
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if shift, err = lockOpenShift(tx, c.Param("id")); err != nil {
			return err
		}
		if app, err = findApplication(tx, shift.ID, cg.ID); err != nil {
			return err
		}
		if app == nil {
			return apierror.NotFound("No offer found for this shift")
		}
		to, err := workflow.Applications.Next(app.Status, workflow.AppAccept)
		if err != nil {
			return err
		}

		var accepted int64
		if err := tx.Model(&database.ShiftApplication{}).
			Where("shift_id = ? AND status = ? AND id <> ?", shift.ID, workflow.AppAccepted, app.ID).
			Count(&accepted).Error; err != nil {
			return err
		}
		if accepted > 0 {
			return apierror.Conflict("Another caregiver has already accepted this shift")
		}

		var booked []database.Shift
		if err := tx.Where("caregiver_id = ? AND status IN ?", cg.ID,
			[]workflow.ShiftStatus{workflow.ShiftAssigned, workflow.ShiftInProgress}).
			Where("start_time < ? AND end_time > ?", shift.EndTime, shift.StartTime).
			Find(&booked).Error; err != nil {
			return err
		}
		for _, b := range booked {
			if scheduler.Overlap(b.StartTime, b.EndTime, shift.StartTime, shift.EndTime) {
				return apierror.Conflict("You already have a shift during this time")
			}
		}

		now := time.Now().UTC()
		if err := transition(tx, &database.ShiftApplication{}, "application", app.ID, app.Status, to,
			map[string]any{"accepted_at": now}); err != nil {
			return err
		}
		app.Status, app.AcceptedAt = to, &now
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notifyOperator(c, shift.HomeID, "application.accepted", "Offer accepted",
		"A caregiver accepted your shift offer. Confirm to book them.",
		map[string]any{"shiftId": shift.ID, "applicationId": app.ID, "caregiverId": cg.ID})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": app})
}

// RejectApplication rejects one application on a managed shift
func (h *Handler) RejectApplication(c *gin.Context) {
	ctx := c.Request.Context()
	shift, err := h.loadManagedShift(ctx, mustIdentity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var app database.ShiftApplication
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(shift, "id = ?", shift.ID).Error; err != nil {
			return notFoundOr(err, "Shift not found")
		}
		if err := tx.First(&app, "id = ? AND shift_id = ?", c.Param("applicationId"), shift.ID).Error; err != nil {
			return notFoundOr(err, "Application not found")
		}
		if app.Status == workflow.AppAccepted && shift.Status != workflow.ShiftOpen {
			return apierror.Conflict("The shift is already confirmed; cancel it instead")
		}
		to, err := workflow.Applications.Next(app.Status, workflow.AppReject)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := transition(tx, &database.ShiftApplication{}, "application", app.ID, app.Status, to,
			map[string]any{"rejected_at": now}); err != nil {
			return err
		}
		app.Status, app.RejectedAt = to, &now
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.notifyCaregiver(c, app.CaregiverID, "application.rejected", "Application update",
		"Your application for a shift was not selected.",
		map[string]any{"shiftId": shift.ID, "applicationId": app.ID})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": app})
}

// ConfirmShift books the caregiver whose acceptance is on file
func (h *Handler) ConfirmShift(c *gin.Context) {
	var req struct {
		CaregiverID string `json:"caregiverId"`
	}
	if err := bindOptional(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	shift, err := h.loadManagedShift(ctx, mustIdentity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var (
		app  database.ShiftApplication
		hire database.Hire
	)
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current database.Shift
		if err := database.ForUpdate(tx).First(&current, "id = ?", shift.ID).Error; err != nil {
			return err
		}
		to, err := workflow.Shifts.Next(current.Status, workflow.ShiftConfirm)
		if err != nil {
			return err
		}

		if err := tx.Where("shift_id = ? AND status = ?", shift.ID, workflow.AppAccepted).First(&app).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierror.Conflict("No accepted application to confirm")
			}
			return err
		}
		if req.CaregiverID != "" && req.CaregiverID != app.CaregiverID {
			return apierror.NotFound("No accepted application for that caregiver")
		}

		if err := transition(tx, &database.Shift{}, "shift", current.ID, current.Status, to,
			map[string]any{"caregiver_id": app.CaregiverID}); err != nil {
			return err
		}

		hire = database.Hire{
			ShiftID:     current.ID,
			CaregiverID: app.CaregiverID,
			OperatorID:  shift.Home.OperatorID,
			Status:      database.HireActive,
		}
		if err := tx.Create(&hire).Error; err != nil {
			return err
		}

		if err := tx.Model(&database.ShiftApplication{}).
			Where("shift_id = ? AND id <> ? AND status IN ?", current.ID, app.ID,
				[]workflow.ApplicationStatus{workflow.AppApplied, workflow.AppOffered}).
			Updates(map[string]any{"status": workflow.AppRejected, "rejected_at": time.Now().UTC()}).Error; err != nil {
			return err
		}

		hours := scheduler.DurationHours(current.StartTime, current.EndTime)
		if err := database.RecordHomeStat(tx, current.HomeID, time.Now(), 0, 1, hours); err != nil {
			return err
		}

		shift.Status = to
		shift.CaregiverID = &app.CaregiverID
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	data := map[string]any{"shiftId": shift.ID, "hireId": hire.ID, "caregiverId": app.CaregiverID}
	h.notifyCaregiver(c, app.CaregiverID, "shift.confirmed", "Shift confirmed",
		"You are booked for a shift.", data)
	h.notifyOperator(c, shift.HomeID, "shift.confirmed", "Shift filled",
		"A caregiver is confirmed for your shift.", data)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": shift, "hire": hire})
}
