package citizen

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/handler"
	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/internal/model"
	authsvc "github.com/jwalitptl/citizen-registry/internal/service/auth"
	"github.com/jwalitptl/citizen-registry/internal/service/citizen"
	"github.com/jwalitptl/citizen-registry/pkg/httputil"
)

type Handler struct {
	svc  citizen.Servicer
	auth authsvc.Servicer
	gate *middleware.AuthMiddleware
}

func NewHandler(svc citizen.Servicer, auth authsvc.Servicer, gate *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth, gate: gate}
}

// Registration is returned by self-registration.
type Registration struct {
	Citizen *model.CitizenView `json:"citizen"`
	*model.TokenPair
}

func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/citizens", h.Register)
	r.POST("/register/citizens", h.Register)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	citizens := r.Group("/citizens")
	{
		citizens.GET("", h.gate.Authorize(authz.CitizenList), h.List)
		citizens.GET("/bloodtype/:bloodType", h.gate.Authorize(authz.CitizenByBloodType), h.ListByBloodType)
		citizens.GET("/allergy/:allergy", h.gate.Authorize(authz.CitizenByAllergy), h.ListByAllergy)
		citizens.GET("/:id", h.gate.Authorize(authz.CitizenGet), h.Get)
		citizens.PUT("/:id", h.gate.Authorize(authz.CitizenUpdate), h.Update)
		citizens.DELETE("/:id", h.gate.Authorize(authz.CitizenDelete), h.Delete)
		citizens.GET("/:id/emergency", h.gate.Authorize(authz.CitizenEmergency), h.Emergency)
	}
}

func (h *Handler) Register(c *gin.Context) {
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

	tokens, err := h.auth.IssueTokens(c.Request.Context(), authsvc.CitizenIdentity(view.Citizen))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondCreated(c, &Registration{Citizen: view, TokenPair: tokens})
}

func (h *Handler) List(c *gin.Context) {
	h.list(c, &model.CitizenFilter{
		BloodType: c.Query("bloodType"),
		Allergy:   c.Query("allergy"),
	})
}

func (h *Handler) ListByBloodType(c *gin.Context) {
	h.list(c, &model.CitizenFilter{BloodType: c.Param("bloodType")})
}

func (h *Handler) ListByAllergy(c *gin.Context) {
	h.list(c, &model.CitizenFilter{Allergy: c.Param("allergy")})
}

func (h *Handler) list(c *gin.Context, filter *model.CitizenFilter) {
	citizens, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, citizens)
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
	httputil.RespondWithMessage(c, "citizen deleted")
}

func (h *Handler) Emergency(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	view, err := h.svc.Emergency(c.Request.Context(), id, middleware.IdentityFrom(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}
