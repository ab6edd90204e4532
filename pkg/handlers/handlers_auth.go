package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/auth"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type registerRequest struct {
	Email       string        `json:"email" binding:"required,email"`
	Password    string        `json:"password" binding:"required,min=8"`
	FirstName   string        `json:"firstName" binding:"required"`
	LastName    string        `json:"lastName"`
	Role        database.Role `json:"role" binding:"required,oneof=FAMILY CAREGIVER OPERATOR DISCHARGE_PLANNER"`
	CompanyName string        `json:"companyName" binding:"required_if=Role OPERATOR"`
}

// Register creates a user and the profile for its role
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var count int64
	if err := h.DB.WithContext(ctx).Model(&database.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		h.fail(c, err)
		return
	}
	if count > 0 {
		h.fail(c, apierror.Conflict("An account with this email already exists"))
		return
	}

	hash, err := h.Auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	user := database.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		Status:       database.UserActive,
	}
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		switch req.Role {
		case database.RoleOperator:
			return tx.Create(&database.Operator{UserID: user.ID, CompanyName: req.CompanyName}).Error
		case database.RoleCaregiver:
			return tx.Create(&database.Caregiver{UserID: user.ID}).Error
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	token, err := h.Auth.CreateToken(&user)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Log.Info("user registered", zap.String("userId", user.ID), zap.String("role", string(user.Role)))
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": user, "access_token": token, "token_type": "bearer"})
}

// Login exchanges credentials for a session token and cookie
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()

	var user database.User
	if err := h.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.fail(c, apierror.Unauthorized("Invalid credentials"))
			return
		}
		h.fail(c, err)
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		h.fail(c, apierror.Unauthorized("Invalid credentials"))
		return
	}
	if user.Status != database.UserActive {
		h.fail(c, apierror.Unauthorized("Account is not active"))
		return
	}

	token, err := h.Auth.CreateToken(&user)
	if err != nil {
		h.fail(c, err)
		return
	}

	now := time.Now().UTC()
	if err := h.DB.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		h.Log.Warn("could not record login time", zap.Error(err), zap.String("userId", user.ID))
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Config.Auth.CookieName, token, int(h.Auth.TTL().Seconds()), "/", "", h.Config.Auth.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer", "user": user})
}

// Logout clears the session cookie
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Config.Auth.CookieName, "", -1, "/", "", h.Config.Auth.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me returns the caller with the ids of their role profiles
func (h *Handler) Me(c *gin.Context) {
	id := mustIdentity(c)
	ctx := c.Request.Context()

	var user database.User
	if err := h.DB.WithContext(ctx).First(&user, "id = ?", id.UserID).Error; err != nil {
		h.fail(c, err)
		return
	}

	profile := gin.H{}
	switch user.Role {
	case database.RoleOperator:
		if op, err := h.operatorFor(ctx, user.ID); err == nil {
			profile["operatorId"] = op.ID
		}
	case database.RoleCaregiver:
		if cg, err := h.caregiverFor(ctx, user.ID); err == nil {
			profile["caregiverId"] = cg.ID
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user, "profile": profile})
}

type caregiverProfileRequest struct {
	HourlyRate     *float64 `json:"hourlyRate" binding:"omitempty,gte=0,lte=1000"`
	MaxWeeklyHours *float64 `json:"maxWeeklyHours" binding:"omitempty,gte=0,lte=168"`
}

// UpdateCaregiverProfile sets the caller's rate and weekly hour cap. A cap of 0 means none.
func (h *Handler) UpdateCaregiverProfile(c *gin.Context) {
	var req caregiverProfileRequest
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

	updates := map[string]any{}
	if req.HourlyRate != nil {
		updates["hourly_rate"] = *req.HourlyRate
		cg.HourlyRate = *req.HourlyRate
	}
	if req.MaxWeeklyHours != nil {
		updates["max_weekly_hours"] = *req.MaxWeeklyHours
		cg.MaxWeeklyHours = *req.MaxWeeklyHours
	}
	if len(updates) == 0 {
		h.fail(c, apierror.BadRequest("Nothing to update"))
		return
	}
	if err := h.DB.WithContext(ctx).Model(&database.Caregiver{}).Where("id = ?", cg.ID).Updates(updates).Error; err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": cg})
}
