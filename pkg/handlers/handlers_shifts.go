package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/auth"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"github.com/arnavshah/carelink-api-go/pkg/models"
	"github.com/arnavshah/carelink-api-go/pkg/realtime"
	"github.com/arnavshah/carelink-api-go/pkg/scheduler"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type createShiftRequest struct {
	HomeID     string    `json:"homeId" binding:"required"`
	StartTime  time.Time `json:"startTime" binding:"required"`
	EndTime    time.Time `json:"endTime" binding:"required,gtfield=StartTime"`
	HourlyRate float64   `json:"hourlyRate" binding:"required,gt=0"`
	Notes      string    `json:"notes" binding:"max=2000"`
}

// CreateShift posts a new OPEN shift at a home the caller manages
func (h *Handler) CreateShift(c *gin.Context) {
	id := mustIdentity(c)
	ctx := c.Request.Context()

	var req createShiftRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	var home database.Home
	if err := h.DB.WithContext(ctx).First(&home, "id = ?", req.HomeID).Error; err != nil {
		h.fail(c, notFoundOr(err, "Home not found"))
		return
	}
	if err := h.authorizeHome(ctx, id, &home); err != nil {
		h.fail(c, err)
		return
	}

	shift := database.Shift{
		HomeID:     home.ID,
		StartTime:  req.StartTime.UTC(),
		EndTime:    req.EndTime.UTC(),
		HourlyRate: req.HourlyRate,
		Notes:      req.Notes,
		Status:     workflow.ShiftOpen,
	}
	if err := h.DB.WithContext(ctx).Create(&shift).Error; err != nil {
		h.fail(c, err)
		return
	}
	metrics.Transitions.WithLabelValues("shift", string(workflow.ShiftOpen)).Inc()

	if err := database.RecordHomeStat(h.DB.WithContext(ctx), home.ID, shift.CreatedAt, 1, 0, 0); err != nil {
		h.Log.Warn("could not record home stat", zap.Error(err), zap.String("homeId", home.ID))
	}
	h.Events.Publish(ctx, realtime.OperatorChannel(home.OperatorID), "shift.created", shift)

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": shift})
}

// ListShifts returns shifts visible to the caller, filtered and paginated
func (h *Handler) ListShifts(c *gin.Context) {
	id := mustIdentity(c)
	ctx := c.Request.Context()

	limit, offset, err := paging(c, 50)
	if err != nil {
		h.fail(c, err)
		return
	}

	q := h.DB.WithContext(ctx).Model(&database.Shift{})

	statuses := splitList(c.QueryArray("status"))
	for _, s := range statuses {
		if !workflow.ShiftStatus(s).Valid() {
			h.fail(c, apierror.Field("status", fmt.Sprintf("Unknown status %q", s)))
			return
		}
	}

	homeID := c.Query("homeId")
	switch {
	case id.IsStaff():
		if homeID != "" {
			q = q.Where("home_id = ?", homeID)
		}

	case id.Role == database.RoleOperator:
		op, err := h.operatorFor(ctx, id.UserID)
		if err != nil {
			h.fail(c, err)
			return
		}
		if homeID != "" {
			var home database.Home
			if err := h.DB.WithContext(ctx).First(&home, "id = ?", homeID).Error; err != nil {
				h.fail(c, notFoundOr(err, "Home not found"))
				return
			}
			if home.OperatorID != op.ID {
				h.fail(c, apierror.Forbidden("You do not manage this home"))
				return
			}
			q = q.Where("home_id = ?", homeID)
		} else {
			q = q.Where("home_id IN (?)", h.DB.Model(&database.Home{}).Select("id").Where("operator_id = ?", op.ID))
		}

	case id.Role == database.RoleCaregiver:
		cg, err := h.caregiverFor(ctx, id.UserID)
		if err != nil {
			h.fail(c, err)
			return
		}
		if homeID != "" {
			q = q.Where("home_id = ?", homeID)
		}
		if c.Query("applications") == "mine" {
			apps := h.DB.Model(&database.ShiftApplication{}).Select("shift_id").Where("caregiver_id = ?", cg.ID)
			if appStatuses := splitList(c.QueryArray("appStatus")); len(appStatuses) > 0 {
				apps = apps.Where("status IN ?", appStatuses)
			}
			q = q.Where("id IN (?)", apps)
		} else if len(statuses) == 0 {
			q = q.Where("status = ?", workflow.ShiftOpen)
		} else {
			q = q.Where("(status = ? OR caregiver_id = ?)", workflow.ShiftOpen, cg.ID)
		}

	default:
		h.fail(c, apierror.Forbidden("Insufficient permissions"))
		return
	}

	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if v := c.Query("startDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			h.fail(c, apierror.Field("startDate", "Invalid date"))
			return
		}
		q = q.Where("start_time >= ?", t)
	}
	if v := c.Query("endDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			h.fail(c, apierror.Field("endDate", "Invalid date"))
			return
		}
		q = q.Where("start_time <= ?", t)
	}

	var (
		total  int64
		shifts []database.Shift
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return q.Session(&gorm.Session{}).WithContext(gctx).Count(&total).Error
	})
	g.Go(func() error {
		return q.Session(&gorm.Session{}).WithContext(gctx).
			Preload("Home").
			Order("start_time ASC").
			Limit(limit).Offset(offset).
			Find(&shifts).Error
	})
	if err := g.Wait(); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    shifts,
		"meta":    gin.H{"total": total, "limit": limit, "offset": offset},
	})
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", v)
}

// GetShift returns a shift with its applications
func (h *Handler) GetShift(c *gin.Context) {
	id := mustIdentity(c)
	ctx := c.Request.Context()

	var shift database.Shift
	err := h.DB.WithContext(ctx).
		Preload("Home").
		Preload("Caregiver.User").
		Preload("Applications", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Applications.Caregiver.User").
		First(&shift, "id = ?", c.Param("id")).Error
	if err != nil {
		h.fail(c, notFoundOr(err, "Shift not found"))
		return
	}

	switch {
	case id.IsStaff():
	case id.Role == database.RoleOperator:
		if err := h.authorizeHome(ctx, id, shift.Home); err != nil {
			h.fail(c, err)
			return
		}
	case id.Role == database.RoleCaregiver:
		cg, err := h.caregiverFor(ctx, id.UserID)
		if err != nil {
			h.fail(c, err)
			return
		}
		mine := shift.Applications[:0]
		for _, a := range shift.Applications {
			if a.CaregiverID == cg.ID {
				mine = append(mine, a)
			}
		}
		shift.Applications = mine
		assigned := shift.CaregiverID != nil && *shift.CaregiverID == cg.ID
		if shift.Status != workflow.ShiftOpen && !assigned && len(mine) == 0 {
			h.fail(c, apierror.Forbidden("You cannot view this shift"))
			return
		}
	default:
		h.fail(c, apierror.Forbidden("Insufficient permissions"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": shift})
}

// loadManagedShift loads a shift with its home and checks the caller manages it.
func (h *Handler) loadManagedShift(ctx context.Context, id auth.Identity, shiftID string) (*database.Shift, error) {
	var shift database.Shift
	if err := h.DB.WithContext(ctx).Preload("Home").First(&shift, "id = ?", shiftID).Error; err != nil {
		return nil, notFoundOr(err, "Shift not found")
	}
	if err := h.authorizeHome(ctx, id, shift.Home); err != nil {
		return nil, err
	}
	return &shift, nil
}

// ShiftCandidates ranks caregivers for an open shift by availability and load
func (h *Handler) ShiftCandidates(c *gin.Context) {
	ctx := c.Request.Context()
	shift, err := h.loadManagedShift(ctx, mustIdentity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if shift.Status != workflow.ShiftOpen {
		h.fail(c, apierror.Conflict("Candidates are only available for open shifts"))
		return
	}

	var caregivers []database.Caregiver
	err = h.DB.WithContext(ctx).
		Joins("JOIN users ON users.id = caregivers.user_id").
		Where("users.status = ?", database.UserActive).
		Preload("User").
		Find(&caregivers).Error
	if err != nil {
		h.fail(c, err)
		return
	}

	// Hours count over the ISO week of the shift; the query also covers
	// anything overlapping a shift that crosses the week boundary.
	weekStart, weekEnd := scheduler.WeekBounds(shift.StartTime)
	from, to := weekStart, weekEnd
	if shift.StartTime.Before(from) {
		from = shift.StartTime
	}
	if shift.EndTime.After(to) {
		to = shift.EndTime
	}
	var booked []database.Shift
	err = h.DB.WithContext(ctx).
		Where("caregiver_id IS NOT NULL AND status IN ?", []workflow.ShiftStatus{workflow.ShiftAssigned, workflow.ShiftInProgress, workflow.ShiftCompleted}).
		Where("start_time < ? AND end_time > ?", to, from).
		Find(&booked).Error
	if err != nil {
		h.fail(c, err)
		return
	}

	cgs := make(map[string]*models.Caregiver, len(caregivers))
	for _, cg := range caregivers {
		name := ""
		if cg.User != nil {
			name = cg.User.FullName()
		}
		cgs[cg.ID] = &models.Caregiver{ID: cg.ID, Name: name, MaxHours: cg.MaxWeeklyHours}
	}
	shifts := map[string]*models.Shift{
		shift.ID: {ID: shift.ID, Start: shift.StartTime, End: shift.EndTime},
	}
	var assignments []models.Assignment
	for _, b := range booked {
		shifts[b.ID] = &models.Shift{ID: b.ID, Start: b.StartTime, End: b.EndTime}
		assignments = append(assignments, models.Assignment{ShiftID: b.ID, CaregiverID: *b.CaregiverID})
	}

	s := scheduler.NewScheduler(cgs, shifts)
	s.WindowStart, s.WindowEnd = weekStart, weekEnd
	s.Prefill(assignments)
	ranked := s.Rank(shift.ID)

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"data":          ranked,
		"conflicts":     s.Conflicts,
		"fairnessScore": s.CalculateFairnessScore(),
	})
}

// CancelShift cancels a shift that has not finished
func (h *Handler) CancelShift(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"max=1000"`
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

	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current database.Shift
		if err := database.ForUpdate(tx).First(&current, "id = ?", shift.ID).Error; err != nil {
			return err
		}
		to, err := workflow.Shifts.Next(current.Status, workflow.ShiftCancel)
		if err != nil {
			return err
		}
		notes := current.Notes
		if req.Reason != "" {
			notes = strings.TrimSpace(notes + "\n[Cancelled] " + req.Reason)
		}
		if err := transition(tx, &database.Shift{}, "shift", current.ID, current.Status, to, map[string]any{"notes": notes}); err != nil {
			return err
		}
		*shift = current
		shift.Status, shift.Notes = to, notes
		return tx.Model(&database.Hire{}).
			Where("shift_id = ? AND status = ?", current.ID, database.HireActive).
			Update("status", database.HireCancelled).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if shift.CaregiverID != nil {
		if userID, err := h.caregiverUser(ctx, *shift.CaregiverID); err == nil {
			h.notify(ctx, userID, database.NotifyBooking, "Shift cancelled",
				"A shift you were booked on has been cancelled.", map[string]any{"shiftId": shift.ID, "reason": req.Reason})
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": shift})
}

// CompleteShift marks an assigned or running shift as done
func (h *Handler) CompleteShift(c *gin.Context) {
	var req struct {
		Notes string `json:"notes" binding:"max=2000"`
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

	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current database.Shift
		if err := database.ForUpdate(tx).First(&current, "id = ?", shift.ID).Error; err != nil {
			return err
		}
		to, err := workflow.Shifts.Next(current.Status, workflow.ShiftComplete)
		if err != nil {
			return err
		}
		extra := map[string]any{}
		if req.Notes != "" {
			extra["notes"] = req.Notes
			current.Notes = req.Notes
		}
		if err := transition(tx, &database.Shift{}, "shift", current.ID, current.Status, to, extra); err != nil {
			return err
		}
		*shift = current
		shift.Status = to
		return tx.Model(&database.Hire{}).
			Where("shift_id = ? AND status = ?", current.ID, database.HireActive).
			Update("status", database.HireCompleted).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": shift})
}
