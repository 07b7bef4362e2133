package institution

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/handler"
	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/service/institution"
	"github.com/jwalitptl/citizen-registry/pkg/httputil"
)

type Handler struct {
	svc  institution.Servicer
	gate *middleware.AuthMiddleware
}

func NewHandler(svc institution.Servicer, gate *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, gate: gate}
}

type CreateAPIKeyRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	institutions := r.Group("/institutions")
	{
		institutions.POST("", h.gate.Authorize(authz.InstitutionCreate), h.Create)
		institutions.GET("", h.gate.Authorize(authz.InstitutionList), h.List)
		institutions.GET("/type/:type", h.gate.Authorize(authz.InstitutionList), h.ListByType)
		institutions.GET("/:id", h.gate.Authorize(authz.InstitutionGet), h.Get)
		institutions.PUT("/:id", h.gate.Authorize(authz.InstitutionUpdate), h.Update)
		institutions.DELETE("/:id", h.gate.Authorize(authz.InstitutionDelete), h.Delete)

		institutions.GET("/:id/services", h.gate.Authorize(authz.InstitutionServices), h.Services)
		institutions.PUT("/:id/services", h.gate.Authorize(authz.InstitutionSetService), h.ReplaceServices)
		institutions.GET("/:id/statistics", h.gate.Authorize(authz.InstitutionStatistics), h.Statistics)

		institutions.POST("/:id/api-keys", h.gate.Authorize(authz.InstitutionAPIKeys), h.CreateAPIKey)
		institutions.GET("/:id/api-keys", h.gate.Authorize(authz.InstitutionAPIKeys), h.ListAPIKeys)
		institutions.DELETE("/:id/api-keys/:keyId", h.gate.Authorize(authz.InstitutionAPIKeys), h.DeactivateAPIKey)
	}
}

func (h *Handler) Create(c *gin.Context) {
	doc, err := handler.BindDocument(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	view, err := h.svc.Create(c.Request.Context(), doc)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondCreated(c, view)
}

func (h *Handler) List(c *gin.Context) {
	h.list(c, &model.InstitutionFilter{Type: c.Query("type")})
}

func (h *Handler) ListByType(c *gin.Context) {
	h.list(c, &model.InstitutionFilter{Type: c.Param("type")})
}

func (h *Handler) list(c *gin.Context, filter *model.InstitutionFilter) {
	institutions, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, institutions)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	view, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) Update(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	patch, err := handler.BindDocument(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	view, err := h.svc.Update(c.Request.Context(), id, patch)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "institution deleted")
}

func (h *Handler) Services(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	services, err := h.svc.Services(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, services)
}

func (h *Handler) ReplaceServices(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	doc, err := handler.BindDocument(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	services, err := h.svc.ReplaceServices(c.Request.Context(), id, doc)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, services)
}

func (h *Handler) Statistics(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	stats, err := h.svc.Statistics(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, stats)
}

func (h *Handler) CreateAPIKey(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req CreateAPIKeyRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	issued, err := h.svc.CreateAPIKey(c.Request.Context(), id, req.Permissions)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondCreated(c, issued)
}

func (h *Handler) ListAPIKeys(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	keys, err := h.svc.ListAPIKeys(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, keys)
}

func (h *Handler) DeactivateAPIKey(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	keyID, err := handler.PathID(c, "keyId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.svc.DeactivateAPIKey(c.Request.Context(), id, keyID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "api key deactivated")
}
