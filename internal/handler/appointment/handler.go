package appointment

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/handler"
	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/service/appointment"
	"github.com/jwalitptl/citizen-registry/pkg/httputil"
)

type Handler struct {
	svc  appointment.Servicer
	gate *middleware.AuthMiddleware
}

func NewHandler(svc appointment.Servicer, gate *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, gate: gate}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.gate.Authorize(authz.AppointmentCreate), h.Create)
		appointments.GET("", h.gate.Authorize(authz.AppointmentList), h.List)
		appointments.GET("/type/:type", h.gate.Authorize(authz.AppointmentList), h.ListByType)
		appointments.GET("/status/:status", h.gate.Authorize(authz.AppointmentList), h.ListByStatus)
		appointments.GET("/staff/:id", h.gate.Authorize(authz.AppointmentList), h.ListByStaff)
		appointments.GET("/institution/:id", h.gate.Authorize(authz.AppointmentByInstitution), h.ListByInstitution)
		appointments.GET("/citizen/:id", h.gate.Authorize(authz.AppointmentByCitizen), h.ListByCitizen)
		appointments.GET("/:id", h.gate.Authorize(authz.AppointmentGet), h.Get)
		appointments.PUT("/:id", h.gate.Authorize(authz.AppointmentUpdate), h.Update)
		appointments.DELETE("/:id", h.gate.Authorize(authz.AppointmentDelete), h.Delete)

		appointments.POST("/:id/confirm", h.gate.Authorize(authz.AppointmentConfirm), h.transition(model.AppointmentStatusConfirmed))
		appointments.POST("/:id/complete", h.gate.Authorize(authz.AppointmentComplete), h.transition(model.AppointmentStatusCompleted))
		appointments.POST("/:id/cancel", h.gate.Authorize(authz.AppointmentCancel), h.transition(model.AppointmentStatusCancelled))
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
	filter := &model.AppointmentFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
	}
	var err error
	if filter.InstitutionID, err = handler.QueryID(c, "institution"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.CitizenID, err = handler.QueryID(c, "citizen"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.StaffID, err = handler.QueryID(c, "staff"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.list(c, filter)
}

func (h *Handler) ListByType(c *gin.Context) {
	h.list(c, &model.AppointmentFilter{Type: c.Param("type")})
}

func (h *Handler) ListByStatus(c *gin.Context) {
	h.list(c, &model.AppointmentFilter{Status: c.Param("status")})
}

func (h *Handler) ListByStaff(c *gin.Context) {
	h.listBy(c, func(id uuid.UUID) *model.AppointmentFilter {
		return &model.AppointmentFilter{StaffID: &id}
	})
}

func (h *Handler) ListByInstitution(c *gin.Context) {
	h.listBy(c, func(id uuid.UUID) *model.AppointmentFilter {
		return &model.AppointmentFilter{InstitutionID: &id}
	})
}

func (h *Handler) ListByCitizen(c *gin.Context) {
	h.listBy(c, func(id uuid.UUID) *model.AppointmentFilter {
		return &model.AppointmentFilter{CitizenID: &id}
	})
}

func (h *Handler) listBy(c *gin.Context, filter func(uuid.UUID) *model.AppointmentFilter) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.list(c, filter(id))
}

func (h *Handler) list(c *gin.Context, filter *model.AppointmentFilter) {
	appointments, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) Get(c *gin.Context) {
	view, ok := h.owned(c)
	if !ok {
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
	httputil.RespondWithMessage(c, "appointment deleted")
}

func (h *Handler) transition(to model.AppointmentStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := h.owned(c)
		if !ok {
			return
		}

		view, err := h.svc.Transition(c.Request.Context(), current.ID, to)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		httputil.RespondWithSuccess(c, view)
	}
}

// owned loads the appointment named by :id and enforces citizen ownership.
func (h *Handler) owned(c *gin.Context) (*model.AppointmentView, bool) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return nil, false
	}

	view, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return nil, false
	}
	if err := handler.RequireOwner(c, view.CitizenID); err != nil {
		httputil.RespondWithError(c, err)
		return nil, false
	}
	return view, true
}
