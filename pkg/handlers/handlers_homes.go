package handlers

import (
	"net/http"

	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/gin-gonic/gin"
)

type homeRequest struct {
	Name     string `json:"name" binding:"required,max=200"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Capacity int    `json:"capacity" binding:"gte=0"`
}

// CreateHome adds a home owned by the calling operator
func (h *Handler) CreateHome(c *gin.Context) {
	ctx := c.Request.Context()
	op, err := h.operatorFor(ctx, mustIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req homeRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	home := database.Home{
		OperatorID: op.ID,
		Name:       req.Name,
		Address:    req.Address,
		City:       req.City,
		State:      req.State,
		Zip:        req.Zip,
		Capacity:   req.Capacity,
	}
	if err := h.DB.WithContext(ctx).Create(&home).Error; err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": home})
}

// ListHomes returns the calling operator's homes
func (h *Handler) ListHomes(c *gin.Context) {
	ctx := c.Request.Context()
	op, err := h.operatorFor(ctx, mustIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var homes []database.Home
	if err := h.DB.WithContext(ctx).Where("operator_id = ?", op.ID).Order("name").Find(&homes).Error; err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": homes})
}
