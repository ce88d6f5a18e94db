package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
	"github.com/noah-isme/sma-adp-portal/pkg/response"
)

type sessionService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.Session, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.UserIdentity, error)
	Current() (models.Session, bool)
}

type redirectNotices interface {
	Consume() (reason string, at time.Time, ok bool)
}

// SessionHandler wires the agent's session endpoints to the session service.
type SessionHandler struct {
	service   sessionService
	redirects redirectNotices
	variant   string
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc sessionService, redirects redirectNotices, variant string) *SessionHandler {
	return &SessionHandler{service: svc, redirects: redirects, variant: variant}
}

// Login godoc
// @Summary Sign in
// @Description Authenticate against the enrollment API and establish the agent session
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /session/login [post]
func (h *SessionHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	session, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, h.view(session), nil)
}

// Logout godoc
// @Summary Sign out
// @Description Revoke the refresh token upstream (best effort) and clear the agent session
// @Tags Session
// @Produce json
// @Success 204
// @Router /session/logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.service.Logout(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Current godoc
// @Summary Session state
// @Description Report whether the agent holds a session; a pending termination carries a login redirect
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session [get]
func (h *SessionHandler) Current(c *gin.Context) {
	var view models.SessionView
	if session, ok := h.service.Current(); ok {
		view = h.view(&session)
	} else {
		view = models.SessionView{Variant: h.variant}
	}

	var meta map[string]interface{}
	if h.redirects != nil {
		if reason, at, ok := h.redirects.Consume(); ok && !view.Authenticated {
			view.Redirect = response.LoginRoute
			view.Reason = reason
			meta = map[string]interface{}{response.MetaRedirect: response.LoginRoute, "terminatedAt": at}
		}
	}
	response.JSON(c, http.StatusOK, view, nil, meta)
}

// Me godoc
// @Summary Current user
// @Description Fetch the signed-in user from the enrollment API
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /session/me [get]
func (h *SessionHandler) Me(c *gin.Context) {
	user, err := h.service.Me(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

func (h *SessionHandler) view(session *models.Session) models.SessionView {
	return models.SessionView{Authenticated: true, Variant: h.variant, User: session.User}
}
