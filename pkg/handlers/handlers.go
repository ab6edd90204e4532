package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/auth"
	"github.com/arnavshah/carelink-api-go/pkg/config"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"github.com/arnavshah/carelink-api-go/pkg/payout"
	"github.com/arnavshah/carelink-api-go/pkg/ratelimit"
	"github.com/arnavshah/carelink-api-go/pkg/realtime"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	DB      *gorm.DB
	Auth    *auth.Authenticator
	Hub     *realtime.Hub
	Events  realtime.Publisher
	Payouts payout.Provider
	Limiter ratelimit.Limiter
	Log     *zap.Logger
	Config  *config.Config
}

// fail renders err using the shared error taxonomy and aborts the chain.
func (h *Handler) fail(c *gin.Context, err error) {
	apiErr := apierror.From(err)
	if apiErr.Status >= http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(apiErr.Status, apiErr.Body(h.Config.IsDevelopment()))
}

// bind decodes the JSON body into req, returning a 400 on failure.
func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return apierror.FromBinding(err)
	}
	return nil
}

// bindOptional is bind for endpoints whose body may be empty.
func bindOptional(c *gin.Context, req any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return bind(c, req)
}

func identity(c *gin.Context) (auth.Identity, bool) {
	return auth.IdentityFrom(c.Request.Context())
}

// mustIdentity is only used behind AuthMiddleware.
func mustIdentity(c *gin.Context) auth.Identity {
	id, _ := identity(c)
	return id
}

// notFoundOr turns a missing row into a 404 with msg.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierror.NotFound(msg)
	}
	return err
}

func bearerToken(c *gin.Context, cookieName string) string {
	token := c.GetHeader("Authorization")
	if len(token) > 7 && strings.EqualFold(token[:7], "Bearer ") {
		return token[7:]
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware resolves the session token into a request-scoped identity
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c, h.Config.Auth.CookieName)
		if token == "" {
			h.fail(c, apierror.Unauthorized("Authentication required"))
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			h.fail(c, apierror.Unauthorized("Invalid token"))
			return
		}

		var user database.User
		if err := h.DB.WithContext(c.Request.Context()).First(&user, "id = ?", claims.Subject).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				h.fail(c, apierror.Unauthorized("Invalid token"))
				return
			}
			h.fail(c, err)
			return
		}
		if user.Status != database.UserActive {
			h.fail(c, apierror.Unauthorized("Account is not active"))
			return
		}

		id := auth.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Set("userID", user.ID)
		c.Next()
	}
}

// RequireRoles answers 403 unless the caller has one of roles
func (h *Handler) RequireRoles(roles ...database.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			h.fail(c, apierror.Unauthorized(""))
			return
		}
		if !id.HasRole(roles...) {
			h.fail(c, apierror.Forbidden("Insufficient permissions"))
			return
		}
		c.Next()
	}
}

// RateLimit refuses callers over limit requests per configured window.
// Authenticated callers are keyed by user, others by client IP.
func (h *Handler) RateLimit(bucket string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		key := bucket + ":ip:" + c.ClientIP()
		if id, ok := identity(c); ok {
			key = bucket + ":user:" + id.UserID
		}

		res, err := h.Limiter.Allow(c.Request.Context(), key, limit, h.Config.RateLimit.Window)
		if err != nil {
			h.Log.Warn("rate limiter unavailable", zap.Error(err), zap.String("bucket", bucket))
			c.Next()
			return
		}
		if !res.Allowed {
			metrics.RateLimited.WithLabelValues(bucket).Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			h.fail(c, apierror.TooManyRequests())
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}

// Health pings the database
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// operatorFor loads the operator profile of userID or answers 403.
func (h *Handler) operatorFor(ctx context.Context, userID string) (*database.Operator, error) {
	var op database.Operator
	if err := h.DB.WithContext(ctx).First(&op, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.Forbidden("User is not registered as an operator")
		}
		return nil, err
	}
	return &op, nil
}

// caregiverFor loads the caregiver profile of userID or answers 403.
func (h *Handler) caregiverFor(ctx context.Context, userID string) (*database.Caregiver, error) {
	var cg database.Caregiver
	if err := h.DB.WithContext(ctx).First(&cg, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.Forbidden("User is not registered as a caregiver")
		}
		return nil, err
	}
	return &cg, nil
}

// authorizeHome allows admin and staff everywhere and operators on their own homes.
func (h *Handler) authorizeHome(ctx context.Context, id auth.Identity, home *database.Home) error {
	if id.IsStaff() {
		return nil
	}
	if id.Role != database.RoleOperator {
		return apierror.Forbidden("Insufficient permissions")
	}
	op, err := h.operatorFor(ctx, id.UserID)
	if err != nil {
		return err
	}
	if home.OperatorID != op.ID {
		return apierror.Forbidden("You do not manage this home")
	}
	return nil
}

// homeOwner returns the operator id and operator user id for a home.
func (h *Handler) homeOwner(ctx context.Context, homeID string) (operatorID, userID string, err error) {
	var row struct {
		OperatorID string
		UserID     string
	}
	err = h.DB.WithContext(ctx).
		Table("homes").
		Select("homes.operator_id AS operator_id, operators.user_id AS user_id").
		Joins("JOIN operators ON operators.id = homes.operator_id").
		Where("homes.id = ?", homeID).
		Take(&row).Error
	return row.OperatorID, row.UserID, err
}

// caregiverUser returns the user id behind a caregiver profile.
func (h *Handler) caregiverUser(ctx context.Context, caregiverID string) (string, error) {
	var cg database.Caregiver
	if err := h.DB.WithContext(ctx).Select("id", "user_id").First(&cg, "id = ?", caregiverID).Error; err != nil {
		return "", err
	}
	return cg.UserID, nil
}

// paging reads limit/offset with the given default and a hard cap of 100.
func paging(c *gin.Context, def int) (limit, offset int, err error) {
	limit, offset = def, 0
	if v := c.Query("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 || n > 100 {
			return 0, 0, apierror.Field("limit", "Must be between 1 and 100")
		}
		limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, apierror.Field("offset", "Must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}

// splitList accepts both repeated parameters and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
