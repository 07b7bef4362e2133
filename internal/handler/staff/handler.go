package staff

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/handler"
	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/service/staff"
	"github.com/jwalitptl/citizen-registry/pkg/httputil"
)

type Handler struct {
	svc  staff.Servicer
	gate *middleware.AuthMiddleware
}

func NewHandler(svc staff.Servicer, gate *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, gate: gate}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	members := r.Group("/staff")
	{
		members.POST("", h.gate.Authorize(authz.StaffCreate), h.Create)
		members.GET("", h.gate.Authorize(authz.StaffList), h.List)
		members.GET("/role/:role", h.gate.Authorize(authz.StaffList), h.ListByRole)
		members.GET("/institution/:id", h.gate.Authorize(authz.StaffList), h.ListByInstitution)
		members.GET("/:id", h.gate.Authorize(authz.StaffGet), h.Get)
		members.PUT("/:id", h.gate.Authorize(authz.StaffUpdate), h.Update)
		members.DELETE("/:id", h.gate.Authorize(authz.StaffDelete), h.Delete)
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
	institutionID, err := handler.QueryID(c, "institution")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.list(c, &model.StaffFilter{Role: c.Query("role"), InstitutionID: institutionID})
}

func (h *Handler) ListByRole(c *gin.Context) {
	h.list(c, &model.StaffFilter{Role: c.Param("role")})
}

func (h *Handler) ListByInstitution(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.list(c, &model.StaffFilter{InstitutionID: &id})
}

func (h *Handler) list(c *gin.Context, filter *model.StaffFilter) {
	members, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, members)
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
	httputil.RespondWithMessage(c, "staff member deleted")
}
