package retention

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flagkeeper/retention-api/internal/handler"
	"github.com/flagkeeper/retention-api/internal/middleware"
	"github.com/flagkeeper/retention-api/internal/service/cleanup"
	"github.com/flagkeeper/retention-api/internal/service/retention"
)

type Handler struct {
	retention *retention.Service
	cleanup   *cleanup.Service
}

func NewHandler(retentionSvc *retention.Service, cleanupSvc *cleanup.Service) *Handler {
	return &Handler{
		retention: retentionSvc,
		cleanup:   cleanupSvc,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	admin := r.Group("/retention")
	admin.Use(auth.RequirePermission(middleware.PermAdministerRetention))
	{
		admin.GET("/flags", h.ListFlags)
		admin.GET("/flags/:flag_id", h.GetPolicy)
		admin.PUT("/flags/:flag_id", h.SavePolicy)
		admin.POST("/cleanup/run", h.RunCleanup)
	}
}

// ListFlags returns every registered flag type with its effective
// retention settings.
func (h *Handler) ListFlags(c *gin.Context) {
	flags, err := h.retention.ListFlagsWithSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(flags))
}

func (h *Handler) GetPolicy(c *gin.Context) {
	policy, err := h.retention.GetSettings(c.Request.Context(), c.Param("flag_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(policy))
}

type savePolicyRequest struct {
	RetentionDays *int `json:"retention_days" binding:"required,min=0"`
	AutoClear     bool `json:"auto_clear"`
}

func (h *Handler) SavePolicy(c *gin.Context) {
	var req savePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request: "+err.Error()))
		return
	}

	err := h.retention.SaveSettings(c.Request.Context(), c.Param("flag_id"), *req.RetentionDays, req.AutoClear)
	if err != nil {
		if errors.Is(err, retention.ErrInvalidPolicyValue) {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	policy, err := h.retention.GetSettings(c.Request.Context(), c.Param("flag_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(policy))
}

// RunCleanup triggers one cleanup tick on demand, outside the worker's
// schedule. It shares the tick logic and the batch budget with cron
// runs.
func (h *Handler) RunCleanup(c *gin.Context) {
	result, err := h.cleanup.RunTick(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}
