package handlers

import (
	"net/http"

	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/logger"
	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// Version is reported by the banner route.
const Version = "1.0.0"

// NewRouter wires every route onto a new gin engine
func NewRouter(h *Handler) *gin.Engine {
	registerValidation()

	r := gin.New()
	r.Use(logger.Recovery(h.Log), logger.Middleware(h.Log), metrics.Middleware())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "CareLink API",
			"version": Version,
		})
	})
	r.GET("/healthz", h.Health)
	r.GET("/metrics", metrics.Handler())

	managers := []database.Role{database.RoleOperator, database.RoleAdmin, database.RoleStaff}
	rl := h.Config.RateLimit

	api := r.Group("/api")
	api.POST("/webhooks/payouts", h.PayoutWebhook)

	// Unauthenticated routes are limited per client IP
	public := api.Group("/auth", h.RateLimit("login", rl.LoginLimit))
	{
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
		public.POST("/logout", h.Logout)
	}

	authed := api.Group("", h.AuthMiddleware(), h.RateLimit("api", rl.Limit))
	authed.GET("/auth/me", h.Me)
	authed.GET("/events", h.StreamEvents)

	operator := authed.Group("/operator")
	{
		operator.POST("/homes", h.RequireRoles(database.RoleOperator), h.CreateHome)
		operator.GET("/homes", h.RequireRoles(database.RoleOperator), h.ListHomes)
		operator.GET("/leads", h.RequireRoles(managers...), h.OperatorLeads)
		operator.GET("/leads/export", h.RequireRoles(managers...), h.ExportLeads)
	}

	shifts := authed.Group("/shifts")
	{
		shifts.POST("", h.RequireRoles(managers...), h.CreateShift)
		shifts.GET("", h.ListShifts)
		shifts.GET("/:id", h.GetShift)
		shifts.GET("/:id/candidates", h.RequireRoles(managers...), h.ShiftCandidates)
		shifts.POST("/:id/applications", h.RequireRoles(database.RoleCaregiver), h.ApplyToShift)
		shifts.DELETE("/:id/applications", h.RequireRoles(database.RoleCaregiver), h.WithdrawApplication)
		shifts.POST("/:id/applications/:applicationId/reject", h.RequireRoles(managers...), h.RejectApplication)
		shifts.POST("/:id/offer", h.RequireRoles(managers...), h.OfferShift)
		shifts.POST("/:id/accept", h.RequireRoles(database.RoleCaregiver), h.AcceptOffer)
		shifts.POST("/:id/confirm", h.RequireRoles(managers...), h.ConfirmShift)
		shifts.POST("/:id/cancel", h.RequireRoles(managers...), h.CancelShift)
		shifts.POST("/:id/complete", h.RequireRoles(managers...), h.CompleteShift)
	}

	timesheets := authed.Group("/timesheets")
	{
		timesheets.GET("", h.ListTimesheets)
		timesheets.POST("/start", h.RequireRoles(database.RoleCaregiver), h.StartTimesheet)
		timesheets.POST("/end", h.RequireRoles(database.RoleCaregiver), h.EndTimesheet)
		timesheets.POST("/:id/approve", h.RequireRoles(managers...), h.ApproveTimesheet)
		timesheets.POST("/:id/pay", h.RequireRoles(managers...), h.PayTimesheet)
	}
	authed.PUT("/caregiver/payout-account", h.RequireRoles(database.RoleCaregiver), h.SetPayoutAccount)
	authed.PATCH("/caregiver/profile", h.RequireRoles(database.RoleCaregiver), h.UpdateCaregiverProfile)

	inquiries := authed.Group("/inquiries")
	{
		inquiries.POST("", h.RequireRoles(database.RoleFamily), h.CreateInquiry)
		inquiries.GET("/:id", h.GetInquiry)
		inquiries.PATCH("/:id", h.RequireRoles(managers...), h.PatchInquiry)
	}
	authed.GET("/family/inquiries", h.RequireRoles(database.RoleFamily), h.FamilyInquiries)

	notifications := authed.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.POST("/read-all", h.MarkAllNotificationsRead)
		notifications.POST("/:id/read", h.MarkNotificationRead)
	}

	admin := authed.Group("/admin", h.RequireRoles(database.RoleAdmin))
	{
		admin.GET("/users", h.ListUsers)
		admin.DELETE("/users/:id", h.DeleteUser)
		admin.GET("/metrics", h.AdminMetrics)
		admin.GET("/inquiries", h.AdminInquiries)
		admin.GET("/reports/homes", h.HomeReport)
		admin.GET("/reports/homes/export", h.HomeReportExport)
		admin.GET("/reports/caregiver-hours", h.CaregiverHours)
	}

	return r
}
