package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/handler"
	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/service/auth"
	"github.com/jwalitptl/citizen-registry/pkg/httputil"
)

type Handler struct {
	svc        auth.Servicer
	gate       *middleware.AuthMiddleware
	loginLimit gin.HandlerFunc
}

// NewHandler wires the login endpoints behind loginLimit.
func NewHandler(svc auth.Servicer, gate *middleware.AuthMiddleware, loginLimit gin.HandlerFunc) *Handler {
	if loginLimit == nil {
		loginLimit = func(c *gin.Context) { c.Next() }
	}
	return &Handler{svc: svc, gate: gate, loginLimit: loginLimit}
}

type CitizenLogin struct {
	Citizen *model.Citizen `json:"citizen"`
	*model.TokenPair
}

type PrincipalLogin struct {
	Identity *model.Identity `json:"identity"`
	*model.TokenPair
}

func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	login := r.Group("/login", h.loginLimit)
	{
		login.POST("/citizens", h.LoginCitizen)
		login.POST("/staff", h.LoginStaff)
		login.POST("/institutions", h.LoginInstitution)
	}
	r.POST("/auth/refresh", h.loginLimit, h.Refresh)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/logout", h.gate.Authorize(authz.Logout), h.Logout)
}

func (h *Handler) LoginCitizen(c *gin.Context) {
	var req model.LoginRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	citizen, tokens, err := h.svc.LoginCitizen(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, &CitizenLogin{Citizen: citizen, TokenPair: tokens})
}

func (h *Handler) LoginStaff(c *gin.Context) {
	var req model.LoginRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	identity, tokens, err := h.svc.LoginStaff(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, &PrincipalLogin{Identity: identity, TokenPair: tokens})
}

func (h *Handler) LoginInstitution(c *gin.Context) {
	var req model.APIKeyLoginRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	identity, tokens, err := h.svc.LoginInstitution(c.Request.Context(), req.APIKey)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, &PrincipalLogin{Identity: identity, TokenPair: tokens})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req model.RefreshTokenRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	tokens, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Logout(c *gin.Context) {
	var req model.RefreshTokenRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.svc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "logged out")
}
