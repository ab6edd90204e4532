package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
)

func (h *Handler) homeStats(c *gin.Context) ([]database.HomeDailyStat, error) {
	days := 30
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			return nil, apierror.Field("days", "Must be between 1 and 365")
		}
		days = n
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	q := h.DB.WithContext(c.Request.Context()).Where("date >= ?", since)
	if homeID := c.Query("homeId"); homeID != "" {
		q = q.Where("home_id = ?", homeID)
	}
	var stats []database.HomeDailyStat
	err := q.Order("date desc").Order("home_id").Find(&stats).Error
	return stats, err
}

// HomeReport returns per-home daily activity with totals
func (h *Handler) HomeReport(c *gin.Context) {
	stats, err := h.homeStats(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var posted, filled int
	var hours float64
	for _, s := range stats {
		posted += s.ShiftsPosted
		filled += s.ShiftsFilled
		hours += s.HoursFilled
	}
	fillRate := 0.0
	if posted > 0 {
		fillRate = float64(filled) / float64(posted)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": stats,
		"totals": gin.H{
			"shiftsPosted": posted,
			"shiftsFilled": filled,
			"hoursFilled":  hours,
			"fillRate":     fillRate,
		},
	})
}

// HomeReportExport returns the same history as CSV
func (h *Handler) HomeReportExport(c *gin.Context) {
	stats, err := h.homeStats(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	out, err := gocsv.MarshalBytes(&stats)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="home-report.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", out)
}
