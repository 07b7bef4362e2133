package demande

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/handler"
	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/service"
	"github.com/jwalitptl/citizen-registry/internal/service/demande"
	"github.com/jwalitptl/citizen-registry/pkg/httputil"
)

type Handler struct {
	svc  demande.Servicer
	gate *middleware.AuthMiddleware
}

func NewHandler(svc demande.Servicer, gate *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, gate: gate}
}

type AssignRequest struct {
	AdminID string `json:"adminId" binding:"required"`
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	demandes := r.Group("/demandes")
	{
		demandes.POST("", h.gate.Authorize(authz.DemandeCreate), h.Create)
		demandes.GET("", h.gate.Authorize(authz.DemandeList), h.List)
		demandes.GET("/mine", h.gate.Authorize(authz.DemandeMine), h.ListMine)
		demandes.GET("/status/:status", h.gate.Authorize(authz.DemandeList), h.ListByStatus)
		demandes.GET("/citizen/:id", h.gate.Authorize(authz.DemandeByCitizen), h.ListByCitizen)
		demandes.GET("/institution/:id", h.gate.Authorize(authz.DemandeByInstitution), h.ListByInstitution)
		demandes.GET("/:id", h.gate.Authorize(authz.DemandeGet), h.Get)
		demandes.PUT("/:id", h.gate.Authorize(authz.DemandeUpdate), h.Update)
		demandes.DELETE("/:id", h.gate.Authorize(authz.DemandeDelete), h.Delete)

		demandes.POST("/:id/assign", h.gate.Authorize(authz.DemandeAssign), h.Assign)
		demandes.POST("/:id/complete", h.gate.Authorize(authz.DemandeResolve), h.resolve(h.svc.Complete))
		demandes.POST("/:id/reject", h.gate.Authorize(authz.DemandeResolve), h.resolve(h.svc.Reject))
	}
}

func (h *Handler) Create(c *gin.Context) {
	doc, err := handler.BindDocument(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	view, err := h.svc.Create(c.Request.Context(), doc, middleware.IdentityFrom(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondCreated(c, view)
}

func (h *Handler) List(c *gin.Context) {
	filter := &model.DemandeFilter{Status: c.Query("status")}
	var err error
	if filter.CitizenID, err = handler.QueryID(c, "citizen"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.InstitutionID, err = handler.QueryID(c, "institution"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.list(c, filter)
}

func (h *Handler) ListMine(c *gin.Context) {
	subject := middleware.IdentityFrom(c).Subject
	h.list(c, &model.DemandeFilter{CitizenID: &subject})
}

func (h *Handler) ListByStatus(c *gin.Context) {
	h.list(c, &model.DemandeFilter{Status: c.Param("status")})
}

func (h *Handler) ListByCitizen(c *gin.Context) {
	h.listBy(c, func(id uuid.UUID) *model.DemandeFilter {
		return &model.DemandeFilter{CitizenID: &id}
	})
}

func (h *Handler) ListByInstitution(c *gin.Context) {
	h.listBy(c, func(id uuid.UUID) *model.DemandeFilter {
		return &model.DemandeFilter{InstitutionID: &id}
	})
}

func (h *Handler) listBy(c *gin.Context, filter func(uuid.UUID) *model.DemandeFilter) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.list(c, filter(id))
}

func (h *Handler) list(c *gin.Context, filter *model.DemandeFilter) {
	demandes, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, demandes)
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
	if err := handler.RequireOwner(c, view.CitizenID); err != nil {
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
	httputil.RespondWithMessage(c, "request deleted")
}

func (h *Handler) Assign(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req AssignRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	adminID, err := service.ParseID("adminId", req.AdminID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	view, err := h.svc.Assign(c.Request.Context(), id, adminID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) resolve(fn func(ctx context.Context, id uuid.UUID) (*model.DemandeView, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := handler.PathID(c, "id")
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		view, err := fn(c.Request.Context(), id)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		httputil.RespondWithSuccess(c, view)
	}
}
