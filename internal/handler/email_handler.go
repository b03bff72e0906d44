package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pressroom/internal/ingest"
	"pressroom/internal/model"
	"pressroom/internal/workflow"
)

// EmailHandler exposes the workflow engine over HTTP. It owns the mapping
// from typed engine errors to status codes; expected failures come back as
// structured 4xx responses, faults as opaque 5xx ones.
type EmailHandler struct {
	engine *workflow.Engine
	ingest *ingest.Service
	logger *zap.Logger
}

func NewEmailHandler(engine *workflow.Engine, ingestSvc *ingest.Service, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{engine: engine, ingest: ingestSvc, logger: logger}
}

type ingestRequest struct {
	Sender      string     `json:"sender" binding:"required"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	ReceivedAt  *time.Time `json:"received_at"`
	AutoProcess bool       `json:"auto_process"`
}

func (h *EmailHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := ingest.InboundEmail{
		Sender:      req.Sender,
		Subject:     req.Subject,
		Body:        req.Body,
		AutoProcess: req.AutoProcess,
	}
	if req.ReceivedAt != nil {
		in.ReceivedAt = *req.ReceivedAt
	}

	rec, isNew, err := h.ingest.Ingest(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !isNew {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"email": rec, "is_new": isNew})
}

func (h *EmailHandler) List(c *gin.Context) {
	actor := identityFrom(c)

	var f workflow.ListFilter
	if v := c.Query("stage"); v != "" {
		stage := model.WorkflowStage(v)
		if !stage.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage " + v})
			return
		}
		f.Stage = &stage
	}
	if v := c.Query("priority"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !model.Priority(n).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be 1, 2 or 3"})
			return
		}
		p := model.Priority(n)
		f.Priority = &p
	}
	if v := c.Query("assigned_to"); v != "" {
		f.AssignedTo = &v
	}
	if v := c.Query("auto_process"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "auto_process must be a boolean"})
			return
		}
		f.AutoProcess = &b
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, err := h.engine.List(c.Request.Context(), actor, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": records, "total": total})
}

func (h *EmailHandler) Get(c *gin.Context) {
	actor := identityFrom(c)

	rec, history, err := h.engine.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec, "history": history})
}

func (h *EmailHandler) Analyze(c *gin.Context) {
	actor := identityFrom(c)

	rec, err := h.engine.Analyze(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec})
}

type approveRequest struct {
	Rating        int                   `json:"rating" binding:"required"`
	Notes         string                `json:"notes"`
	Modifications *model.GeneratedDraft `json:"modifications"`
}

func (h *EmailHandler) Approve(c *gin.Context) {
	actor := identityFrom(c)

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.engine.ApproveContent(c.Request.Context(), actor, c.Param("id"), workflow.ApproveInput{
		Rating:        req.Rating,
		Notes:         req.Notes,
		Modifications: req.Modifications,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec})
}

type prepareRequest struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Category        string   `json:"category"`
	Tags            []string `json:"tags"`
	MetaDescription string   `json:"meta_description"`
}

func (h *EmailHandler) Prepare(c *gin.Context) {
	actor := identityFrom(c)

	var req prepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.engine.PreparePublish(c.Request.Context(), actor, c.Param("id"), workflow.PrepareInput{
		Title:           req.Title,
		Body:            req.Body,
		Category:        req.Category,
		Tags:            req.Tags,
		MetaDescription: req.MetaDescription,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec})
}

func (h *EmailHandler) Publish(c *gin.Context) {
	actor := identityFrom(c)

	rec, err := h.engine.Publish(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec, "published_reference": rec.PublishedRef})
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *EmailHandler) Reject(c *gin.Context) {
	actor := identityFrom(c)

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.engine.Reject(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec})
}

func (h *EmailHandler) Archive(c *gin.Context) {
	actor := identityFrom(c)

	rec, err := h.engine.Archive(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec})
}

type priorityRequest struct {
	Priority int `json:"priority" binding:"required"`
}

func (h *EmailHandler) UpdatePriority(c *gin.Context) {
	actor := identityFrom(c)

	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.engine.UpdatePriority(c.Request.Context(), actor, c.Param("id"), model.Priority(req.Priority))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec})
}

type assignRequest struct {
	Assignee string `json:"assignee" binding:"required"`
}

func (h *EmailHandler) Assign(c *gin.Context) {
	actor := identityFrom(c)

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.engine.Assign(c.Request.Context(), actor, c.Param("id"), req.Assignee)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": rec})
}

func (h *EmailHandler) DashboardStats(c *gin.Context) {
	actor := identityFrom(c)

	counts, err := h.engine.DashboardStats(c.Request.Context(), actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stages": counts})
}

func (h *EmailHandler) respondError(c *gin.Context, err error) {
	var invalid *workflow.InvalidTransitionError
	var forbidden *workflow.ForbiddenError
	var validation *workflow.ValidationError
	var collaborator *workflow.CollaboratorError

	switch {
	case errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{
			"error":         invalid.Error(),
			"current_stage": invalid.Current,
		})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": forbidden.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &collaborator):
		c.JSON(http.StatusBadGateway, gin.H{"error": "external service unavailable, the action was not applied"})
	default:
		h.logger.Error("Unhandled workflow error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
