package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/models"
	"github.com/arnavshah/carelink-api-go/pkg/scheduler"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ListUsers lists accounts with role, status and text filters
func (h *Handler) ListUsers(c *gin.Context) {
	limit, offset, err := paging(c, 50)
	if err != nil {
		h.fail(c, err)
		return
	}

	q := h.DB.WithContext(c.Request.Context()).Model(&database.User{})
	if v := c.Query("role"); v != "" {
		q = q.Where("role = ?", strings.ToUpper(v))
	}
	if v := c.Query("status"); v != "" {
		q = q.Where("status = ?", strings.ToUpper(v))
	}
	if v := strings.TrimSpace(c.Query("q")); v != "" {
		like := "%" + strings.ToLower(v) + "%"
		q = q.Where("(LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)", like, like, like)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		h.fail(c, err)
		return
	}
	var users []database.User
	if err := q.Session(&gorm.Session{}).Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    users,
		"meta":    gin.H{"total": total, "limit": limit, "offset": offset},
	})
}

// DeleteUser soft deletes an account by flipping its status
func (h *Handler) DeleteUser(c *gin.Context) {
	ctx := c.Request.Context()
	target := c.Param("id")
	if target == mustIdentity(c).UserID {
		h.fail(c, apierror.BadRequest("You cannot delete your own account"))
		return
	}

	var user database.User
	if err := h.DB.WithContext(ctx).First(&user, "id = ?", target).Error; err != nil {
		h.fail(c, notFoundOr(err, "User not found"))
		return
	}
	if user.Status == database.UserDeleted {
		h.fail(c, apierror.Conflict("User is already deleted"))
		return
	}

	res := h.DB.WithContext(ctx).Model(&database.User{}).
		Where("id = ? AND status <> ?", user.ID, database.UserDeleted).
		Update("status", database.UserDeleted)
	if res.Error != nil {
		h.fail(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		h.fail(c, apierror.Conflict("User is already deleted"))
		return
	}
	h.Log.Info("user deleted", zap.String("userId", user.ID), zap.String("by", mustIdentity(c).UserID))
	user.Status = database.UserDeleted
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

type countRow struct {
	Name  string
	Count int64
}

func countBy(db *gorm.DB, model any, column string) (map[string]int64, error) {
	var rows []countRow
	if err := db.Model(model).Select(column + " AS name, COUNT(*) AS count").Group(column).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Count
	}
	return out, nil
}

// AdminMetrics returns platform counts by role and status
func (h *Handler) AdminMetrics(c *gin.Context) {
	db := h.DB.WithContext(c.Request.Context())

	var usersByRole, usersByStatus, shiftsByStatus, paymentsByStatus, inquiriesByStatus map[string]int64
	var g errgroup.Group
	g.Go(func() (err error) {
		usersByRole, err = countBy(db, &database.User{}, "role")
		return err
	})
	g.Go(func() (err error) {
		usersByStatus, err = countBy(db, &database.User{}, "status")
		return err
	})
	g.Go(func() (err error) {
		shiftsByStatus, err = countBy(db, &database.Shift{}, "status")
		return err
	})
	g.Go(func() (err error) {
		paymentsByStatus, err = countBy(db, &database.Payment{}, "status")
		return err
	})
	g.Go(func() (err error) {
		inquiriesByStatus, err = countBy(db, &database.Inquiry{}, "status")
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"users":     gin.H{"byRole": usersByRole, "byStatus": usersByStatus},
			"shifts":    gin.H{"byStatus": shiftsByStatus},
			"payments":  gin.H{"byStatus": paymentsByStatus},
			"inquiries": gin.H{"byStatus": inquiriesByStatus},
		},
	})
}

// CaregiverHours reports booked hours per caregiver and how evenly they are spread
func (h *Handler) CaregiverHours(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	if v := c.Query("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			h.fail(c, apierror.Field("from", "Invalid date"))
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			h.fail(c, apierror.Field("to", "Invalid date"))
			return
		}
		to = t
	}
	if !to.After(from) {
		h.fail(c, apierror.Field("to", "to must be after from"))
		return
	}

	ctx := c.Request.Context()
	var caregivers []database.Caregiver
	if err := h.DB.WithContext(ctx).
		Joins("JOIN users ON users.id = caregivers.user_id").
		Where("users.status = ?", database.UserActive).
		Preload("User").
		Find(&caregivers).Error; err != nil {
		h.fail(c, err)
		return
	}

	var shifts []database.Shift
	if err := h.DB.WithContext(ctx).
		Where("caregiver_id IS NOT NULL AND status IN ?",
			[]workflow.ShiftStatus{workflow.ShiftAssigned, workflow.ShiftInProgress, workflow.ShiftCompleted}).
		Where("start_time >= ? AND start_time < ?", from, to).
		Find(&shifts).Error; err != nil {
		h.fail(c, err)
		return
	}

	rows := make(map[string]*models.CaregiverHours, len(caregivers))
	for _, cg := range caregivers {
		name := ""
		if cg.User != nil {
			name = cg.User.FullName()
		}
		rows[cg.ID] = &models.CaregiverHours{CaregiverID: cg.ID, Name: name}
	}
	for _, s := range shifts {
		row, ok := rows[*s.CaregiverID]
		if !ok {
			continue
		}
		row.Shifts++
		row.Hours += scheduler.DurationHours(s.StartTime, s.EndTime)
	}

	report := make([]models.CaregiverHours, 0, len(rows))
	hours := make([]float64, 0, len(rows))
	for _, r := range rows {
		report = append(report, *r)
		hours = append(hours, r.Hours)
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].Hours != report[j].Hours {
			return report[i].Hours > report[j].Hours
		}
		return report[i].CaregiverID < report[j].CaregiverID
	})

	if c.Query("format") == "csv" {
		out, err := gocsv.MarshalBytes(&report)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="caregiver-hours.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", out)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"data":          report,
		"fairnessScore": scheduler.FairnessScore(hours),
		"from":          from,
		"to":            to,
	})
}
