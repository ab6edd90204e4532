package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"github.com/arnavshah/carelink-api-go/pkg/realtime"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
	"gorm.io/gorm"
)

type createInquiryRequest struct {
	HomeID            string           `json:"homeId" binding:"required"`
	ContactName       string           `json:"contactName" binding:"required,max=200"`
	ContactEmail      string           `json:"contactEmail" binding:"required,email"`
	ContactPhone      string           `json:"contactPhone" binding:"max=50"`
	CareRecipientName string           `json:"careRecipientName" binding:"max=200"`
	CareNeeds         string           `json:"careNeeds" binding:"max=2000"`
	Message           string           `json:"message" binding:"max=5000"`
	Urgency           database.Urgency `json:"urgency" binding:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Source            string           `json:"source" binding:"max=100"`
}

// CreateInquiry opens a NEW lead from a family to a home
func (h *Handler) CreateInquiry(c *gin.Context) {
	var req createInquiryRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	id := mustIdentity(c)

	var home database.Home
	if err := h.DB.WithContext(ctx).First(&home, "id = ?", req.HomeID).Error; err != nil {
		h.fail(c, notFoundOr(err, "Home not found"))
		return
	}

	urgency := req.Urgency
	if urgency == "" {
		urgency = database.UrgencyMedium
	}
	inq := database.Inquiry{
		FamilyUserID:      id.UserID,
		HomeID:            home.ID,
		ContactName:       req.ContactName,
		ContactEmail:      strings.ToLower(strings.TrimSpace(req.ContactEmail)),
		ContactPhone:      req.ContactPhone,
		CareRecipientName: req.CareRecipientName,
		CareNeeds:         req.CareNeeds,
		Message:           req.Message,
		Urgency:           urgency,
		Source:            req.Source,
		Status:            workflow.InquiryNew,
	}
	if err := h.DB.WithContext(ctx).Create(&inq).Error; err != nil {
		h.fail(c, err)
		return
	}
	metrics.Transitions.WithLabelValues("inquiry", string(workflow.InquiryNew)).Inc()

	h.notifyOperator(c, home.ID, "inquiry.created", "New inquiry",
		fmt.Sprintf("%s sent an inquiry about %s.", inq.ContactName, home.Name),
		map[string]any{"inquiryId": inq.ID, "homeId": home.ID, "urgency": inq.Urgency})
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": inq})
}

// loadInquiry loads an inquiry the caller may see: its family, the operator of its home, or staff.
func (h *Handler) loadInquiry(c *gin.Context) (*database.Inquiry, error) {
	ctx := c.Request.Context()
	id := mustIdentity(c)

	var inq database.Inquiry
	if err := h.DB.WithContext(ctx).Preload("Home").First(&inq, "id = ?", c.Param("id")).Error; err != nil {
		return nil, notFoundOr(err, "Inquiry not found")
	}
	switch {
	case id.IsStaff():
	case id.Role == database.RoleFamily:
		if inq.FamilyUserID != id.UserID {
			return nil, apierror.Forbidden("You cannot view this inquiry")
		}
	case id.Role == database.RoleOperator:
		if err := h.authorizeHome(ctx, id, inq.Home); err != nil {
			return nil, err
		}
	default:
		return nil, apierror.Forbidden("Insufficient permissions")
	}
	return &inq, nil
}

// GetInquiry returns one inquiry
func (h *Handler) GetInquiry(c *gin.Context) {
	inq, err := h.loadInquiry(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": inq})
}

type patchInquiryRequest struct {
	Status   *workflow.InquiryStatus `json:"status"`
	Urgency  *database.Urgency       `json:"urgency" binding:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Notes    *string                 `json:"notes" binding:"omitempty,max=5000"`
	TourDate *time.Time              `json:"tourDate"`
}

// PatchInquiry moves an inquiry along the pipeline and updates its notes
func (h *Handler) PatchInquiry(c *gin.Context) {
	var req patchInquiryRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if id := mustIdentity(c); id.Role == database.RoleFamily {
		h.fail(c, apierror.Forbidden("Insufficient permissions"))
		return
	}
	inq, err := h.loadInquiry(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		h.fail(c, apierror.Field("status", fmt.Sprintf("Unknown status %q", *req.Status)))
		return
	}

	updates := map[string]any{}
	if req.Notes != nil {
		updates["operator_notes"] = *req.Notes
		inq.OperatorNotes = *req.Notes
	}
	if req.Urgency != nil {
		updates["urgency"] = *req.Urgency
		inq.Urgency = *req.Urgency
	}
	if req.TourDate != nil {
		t := req.TourDate.UTC()
		updates["tour_date"] = t
		inq.TourDate = &t
	}

	ctx := c.Request.Context()
	statusChanged := req.Status != nil && *req.Status != inq.Status
	if statusChanged {
		to, err := workflow.Inquiries.Next(inq.Status, workflow.InquiryEvent(*req.Status))
		if err != nil {
			h.fail(c, err)
			return
		}
		if to == workflow.InquiryTourScheduled && inq.TourDate == nil {
			h.fail(c, apierror.Field("tourDate", "Required when scheduling a tour"))
			return
		}
		if err := transition(h.DB.WithContext(ctx), &database.Inquiry{}, "inquiry", inq.ID, inq.Status, to, updates); err != nil {
			h.fail(c, err)
			return
		}
		inq.Status = to
	} else if len(updates) > 0 {
		if err := h.DB.WithContext(ctx).Model(&database.Inquiry{}).Where("id = ?", inq.ID).Updates(updates).Error; err != nil {
			h.fail(c, err)
			return
		}
	}

	data := map[string]any{"inquiryId": inq.ID, "status": inq.Status}
	if inq.TourDate != nil {
		data["tourDate"] = inq.TourDate
	}
	h.Events.Publish(ctx, realtime.FamilyChannel(inq.FamilyUserID), "inquiry.updated", data)
	if statusChanged {
		h.notify(ctx, inq.FamilyUserID, database.NotifyInquiry, "Inquiry update",
			fmt.Sprintf("Your inquiry is now %s.", strings.ReplaceAll(strings.ToLower(string(inq.Status)), "_", " ")), data)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": inq})
}

// FamilyInquiries lists the calling family's inquiries
func (h *Handler) FamilyInquiries(c *gin.Context) {
	var items []database.Inquiry
	err := h.DB.WithContext(c.Request.Context()).
		Preload("Home").
		Where("family_user_id = ?", mustIdentity(c).UserID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": items})
}

var leadSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"status":    "status",
	"urgency":   "urgency",
}

// leadQuery applies the lead filters and sort. Operators are scoped to their homes.
func (h *Handler) leadQuery(c *gin.Context, scoped bool) (*gorm.DB, error) {
	ctx := c.Request.Context()
	q := h.DB.WithContext(ctx).Model(&database.Inquiry{})

	if scoped {
		op, err := h.operatorFor(ctx, mustIdentity(c).UserID)
		if err != nil {
			return nil, err
		}
		q = q.Where("home_id IN (?)", h.DB.Model(&database.Home{}).Select("id").Where("operator_id = ?", op.ID))
	}

	if statuses := splitList(c.QueryArray("status")); len(statuses) > 0 {
		for _, s := range statuses {
			if !workflow.InquiryStatus(s).Valid() {
				return nil, apierror.Field("status", fmt.Sprintf("Unknown status %q", s))
			}
		}
		q = q.Where("status IN ?", statuses)
	}
	if v := c.Query("homeId"); v != "" {
		q = q.Where("home_id = ?", v)
	}
	if v := c.Query("urgency"); v != "" {
		q = q.Where("urgency = ?", strings.ToUpper(v))
	}
	if v := strings.TrimSpace(c.Query("q")); v != "" {
		like := "%" + strings.ToLower(v) + "%"
		q = q.Where("(LOWER(contact_name) LIKE ? OR LOWER(contact_email) LIKE ?)", like, like)
	}

	col, ok := leadSortColumns[c.DefaultQuery("sortBy", "createdAt")]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(c.Query("sortOrder"), "asc") {
		dir = "ASC"
	}
	switch col {
	case "created_at":
		return q.Order(col + " " + dir), nil
	case "urgency":
		col = database.UrgencyRankSQL()
	}
	return q.Order(col + " " + dir).Order("created_at DESC"), nil
}

func (h *Handler) listLeads(c *gin.Context, scoped bool) {
	q, err := h.leadQuery(c, scoped)
	if err != nil {
		h.fail(c, err)
		return
	}
	page := 1
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(c, apierror.Field("page", "Must be a positive integer"))
			return
		}
		page = n
	}
	limit, _, err := paging(c, 20)
	if err != nil {
		h.fail(c, err)
		return
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		h.fail(c, err)
		return
	}
	var leads []database.Inquiry
	if err := q.Session(&gorm.Session{}).Preload("Home").Limit(limit).Offset((page - 1) * limit).Find(&leads).Error; err != nil {
		h.fail(c, err)
		return
	}

	pages := int(math.Ceil(float64(total) / float64(limit)))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"leads": leads,
			"pagination": gin.H{
				"total":       total,
				"pages":       pages,
				"currentPage": page,
				"limit":       limit,
				"hasMore":     page < pages,
			},
		},
	})
}

// OperatorLeads lists leads for the calling operator's homes
func (h *Handler) OperatorLeads(c *gin.Context) {
	h.listLeads(c, !mustIdentity(c).IsStaff())
}

// AdminInquiries lists every lead
func (h *Handler) AdminInquiries(c *gin.Context) {
	h.listLeads(c, false)
}

type leadRow struct {
	ID                string `csv:"id"`
	CreatedAt         string `csv:"created_at"`
	Home              string `csv:"home"`
	ContactName       string `csv:"contact_name"`
	ContactEmail      string `csv:"contact_email"`
	ContactPhone      string `csv:"contact_phone"`
	CareRecipientName string `csv:"care_recipient"`
	Urgency           string `csv:"urgency"`
	Status            string `csv:"status"`
	Source            string `csv:"source"`
	TourDate          string `csv:"tour_date"`
}

// ExportLeads returns the filtered leads as CSV
func (h *Handler) ExportLeads(c *gin.Context) {
	q, err := h.leadQuery(c, !mustIdentity(c).IsStaff())
	if err != nil {
		h.fail(c, err)
		return
	}
	var leads []database.Inquiry
	if err := q.Preload("Home").Limit(10000).Find(&leads).Error; err != nil {
		h.fail(c, err)
		return
	}

	rows := make([]leadRow, 0, len(leads))
	for _, l := range leads {
		row := leadRow{
			ID:                l.ID,
			CreatedAt:         l.CreatedAt.UTC().Format(time.RFC3339),
			ContactName:       l.ContactName,
			ContactEmail:      l.ContactEmail,
			ContactPhone:      l.ContactPhone,
			CareRecipientName: l.CareRecipientName,
			Urgency:           string(l.Urgency),
			Status:            string(l.Status),
			Source:            l.Source,
		}
		if l.Home != nil {
			row.Home = l.Home.Name
		}
		if l.TourDate != nil {
			row.TourDate = l.TourDate.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		h.fail(c, err)
		return
	}
	filename := fmt.Sprintf("leads-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", out)
}
