package clearer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flagkeeper/retention-api/internal/handler"
	"github.com/flagkeeper/retention-api/internal/middleware"
	"github.com/flagkeeper/retention-api/internal/service/clearer"
)

type Handler struct {
	service *clearer.Service
}

func NewHandler(service *clearer.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	flags := r.Group("/flags")
	{
		flags.GET("/stats", auth.RequirePermission(middleware.PermAdministerRetention), h.GetStats)
		flags.DELETE("/:flag_id/flaggings", auth.RequirePermission(middleware.PermClearAllFlags), h.ClearFlagType)
	}

	users := r.Group("/users")
	{
		users.GET("/:user_id/flags/counts", h.GetUserCounts)
		users.DELETE("/:user_id/flags", h.ClearUserFlags)
	}
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.CountsByFlag(c.Request.Context(), c.Query("flag_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

// ClearFlagType is the admin bulk clear: every flagging of the type is
// removed regardless of age, owner, or the access allow-list.
func (h *Handler) ClearFlagType(c *gin.Context) {
	deleted, err := h.service.ClearAllByType(c.Request.Context(), c.Param("flag_id"))
	if err != nil {
		if errors.Is(err, clearer.ErrDeletionFailed) {
			c.JSON(http.StatusBadGateway, handler.NewErrorResponse("deletion failed, no records were removed"))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, clearedResponse(deleted))
}

func (h *Handler) GetUserCounts(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user_id"))
		return
	}

	if !h.mayActOnUser(c, userID) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("cannot view another user's flags"))
		return
	}

	counts, err := h.service.CountsByUser(c.Request.Context(), userID, c.Query("flag_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(counts))
}

// ClearUserFlags removes the user's flaggings, optionally scoped with
// ?flag_id=. Callers may clear their own flags; clearing another
// user's requires the clear-all permission.
func (h *Handler) ClearUserFlags(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user_id"))
		return
	}

	if !h.mayActOnUser(c, userID) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("cannot clear another user's flags"))
		return
	}

	deleted, err := h.service.ClearUserFlags(c.Request.Context(), userID, c.Query("flag_id"))
	if err != nil {
		switch {
		case errors.Is(err, clearer.ErrUserClearingDisabled):
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("user clearing is disabled"))
		case errors.Is(err, clearer.ErrFlagAccessDenied):
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		case errors.Is(err, clearer.ErrDeletionFailed):
			c.JSON(http.StatusBadGateway, handler.NewErrorResponse("deletion failed, no records were removed"))
		default:
			c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, clearedResponse(deleted))
}

// mayActOnUser allows users with the clear-own permission to act on
// themselves and users with clear-all to act on anyone.
func (h *Handler) mayActOnUser(c *gin.Context, userID uuid.UUID) bool {
	if middleware.HasPermission(c, middleware.PermClearAllFlags) {
		return true
	}
	if !middleware.HasPermission(c, middleware.PermClearOwnFlags) {
		return false
	}
	return c.GetString(middleware.ContextUserID) == userID.String()
}

func clearedResponse(deleted int64) *handler.Response {
	if deleted == 0 {
		return handler.NewSuccessResponseWithMessage("no items to clear", gin.H{"deleted": deleted})
	}
	return handler.NewSuccessResponseWithMessage(
		fmt.Sprintf("cleared %d items", deleted), gin.H{"deleted": deleted})
}
