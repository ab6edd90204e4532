package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/auth"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/realtime"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// notify persists a notification and publishes it to the user's channel.
// Failures are logged and never surface to the caller.
func (h *Handler) notify(ctx context.Context, userID string, typ database.NotificationType, title, message string, data map[string]any) {
	n := database.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		Data:    data,
	}
	if err := h.DB.WithContext(ctx).Create(&n).Error; err != nil {
		h.Log.Warn("could not store notification", zap.Error(err), zap.String("userId", userID))
		return
	}
	h.Events.Publish(ctx, realtime.UserChannel(userID), "notification", n)
}

// ListNotifications returns the caller's notifications, newest first
func (h *Handler) ListNotifications(c *gin.Context) {
	id := mustIdentity(c)
	ctx := c.Request.Context()

	limit, _, err := paging(c, 20)
	if err != nil {
		h.fail(c, err)
		return
	}

	q := h.DB.WithContext(ctx).Where("user_id = ?", id.UserID)
	if unread, _ := strconv.ParseBool(c.Query("unread")); unread {
		q = q.Where("read_at IS NULL")
	}

	var items []database.Notification
	if err := q.Order("created_at DESC").Limit(limit).Find(&items).Error; err != nil {
		h.fail(c, err)
		return
	}

	var unreadCount int64
	if err := h.DB.WithContext(ctx).Model(&database.Notification{}).
		Where("user_id = ? AND read_at IS NULL", id.UserID).
		Count(&unreadCount).Error; err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": items, "unreadCount": unreadCount})
}

// MarkNotificationRead marks one of the caller's notifications as read
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id := mustIdentity(c)
	ctx := c.Request.Context()

	var n database.Notification
	if err := h.DB.WithContext(ctx).First(&n, "id = ? AND user_id = ?", c.Param("id"), id.UserID).Error; err != nil {
		h.fail(c, notFoundOr(err, "Notification not found"))
		return
	}
	if n.ReadAt == nil {
		now := time.Now().UTC()
		if err := h.DB.WithContext(ctx).Model(&n).Update("read_at", now).Error; err != nil {
			h.fail(c, err)
			return
		}
		n.ReadAt = &now
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": n})
}

// MarkAllNotificationsRead marks every unread notification of the caller
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	id := mustIdentity(c)
	res := h.DB.WithContext(c.Request.Context()).
		Model(&database.Notification{}).
		Where("user_id = ? AND read_at IS NULL", id.UserID).
		Update("read_at", time.Now().UTC())
	if res.Error != nil {
		h.fail(c, res.Error)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": res.RowsAffected})
}

// allowedChannels lists the channels id may subscribe to. Admin may use any.
func (h *Handler) allowedChannels(ctx context.Context, id auth.Identity) (map[string]bool, error) {
	allowed := map[string]bool{
		realtime.UserChannel(id.UserID):   true,
		realtime.FamilyChannel(id.UserID): true,
	}
	switch id.Role {
	case database.RoleOperator:
		op, err := h.operatorFor(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		allowed[realtime.OperatorChannel(op.ID)] = true
	case database.RoleCaregiver:
		cg, err := h.caregiverFor(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		allowed[realtime.CaregiverChannel(cg.ID)] = true
	}
	return allowed, nil
}

// StreamEvents streams real-time events for the requested channels as SSE
func (h *Handler) StreamEvents(c *gin.Context) {
	id := mustIdentity(c)
	ctx := c.Request.Context()

	channels := splitList(c.QueryArray("channel"))
	if len(channels) == 0 {
		channels = []string{realtime.UserChannel(id.UserID)}
	}
	if !id.HasRole(database.RoleAdmin) {
		allowed, err := h.allowedChannels(ctx, id)
		if err != nil {
			h.fail(c, err)
			return
		}
		for _, ch := range channels {
			if !allowed[ch] {
				h.fail(c, apierror.Forbidden(fmt.Sprintf("Not allowed to subscribe to %s", ch)))
				return
			}
		}
	}

	sub := h.Hub.Subscribe(channels...)
	defer sub.Close()

	heartbeat := h.Config.Realtime.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"channels": channels})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}
