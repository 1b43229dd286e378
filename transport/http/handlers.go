package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/service"
)

// Machine-readable reason codes carried in error responses.
const (
	ReasonInvalidInput        = "invalid_input"
	ReasonNotFound            = "not_found"
	ReasonConflict            = "conflict"
	ReasonExpired             = "expired"
	ReasonUnauthenticated     = "unauthenticated"
	ReasonVerificationFailed  = "verification_failed"
	ReasonVerifierUnavailable = "verifier_unavailable"
	ReasonInternal            = "internal"
)

// AuthHandlers contains HTTP handlers for the handshake endpoints.
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// respondError maps service sentinels to a 4xx/5xx status with a stable
// reason code.
func respondError(c *gin.Context, err error) {
	var status int
	var reason string

	switch {
	case errors.Is(err, core.ErrInvalidInput):
		status, reason = http.StatusBadRequest, ReasonInvalidInput
	case errors.Is(err, core.ErrNotFound):
		status, reason = http.StatusBadRequest, ReasonNotFound
	case errors.Is(err, core.ErrConflict):
		status, reason = http.StatusBadRequest, ReasonConflict
	case errors.Is(err, core.ErrExpired):
		status, reason = http.StatusBadRequest, ReasonExpired
	case errors.Is(err, core.ErrUnauthenticated):
		status, reason = http.StatusUnauthorized, ReasonUnauthenticated
	case errors.Is(err, core.ErrVerificationFailed):
		status, reason = http.StatusUnauthorized, ReasonVerificationFailed
	case errors.Is(err, core.ErrVerifierUnavailable):
		status, reason = http.StatusServiceUnavailable, ReasonVerifierUnavailable
	default:
		status, reason = http.StatusInternalServerError, ReasonInternal
	}

	c.JSON(status, gin.H{"error": reason})
}

// Start handles POST /auth/start: issue a challenge and tell the client
// where the signer should deliver its assertion.
func (h *AuthHandlers) Start(c *gin.Context) {
	grant, err := h.authService.StartChallenge(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challengeId":    grant.ChallengeID,
		"callbackTarget": grant.CallbackURL,
		"expiresInMs":    grant.ExpiresInMs,
	})
}

// Callback handles POST /auth/callback. The callback-proof middleware has
// already verified the signer's assertion; this handler only transitions the
// challenge. The signer needs nothing back beyond success or failure.
func (h *AuthHandlers) Callback(c *gin.Context) {
	challengeID := c.GetString(ctxCallbackChallengeID)
	identityKey := c.GetString(ctxCallbackIdentity)

	if err := h.authService.CompleteChallenge(c.Request.Context(), challengeID, identityKey); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "signature verified"})
}

// Status handles GET /auth/status/:challengeId, the polling endpoint.
func (h *AuthHandlers) Status(c *gin.Context) {
	res, err := h.authService.ResolveStatus(c.Request.Context(), c.Param("challengeId"))
	if err != nil {
		respondError(c, err)
		return
	}

	switch res.Status {
	case service.StatusSuccess:
		c.JSON(http.StatusOK, gin.H{
			"status":   service.StatusSuccess,
			"token":    res.Token,
			"identity": res.IdentityKey,
		})
	default:
		c.JSON(http.StatusOK, gin.H{"status": res.Status})
	}
}

// AutoRegister handles POST /auto-register: find-or-create registration by
// identity key, used by the desktop wallet on first contact.
func (h *AuthHandlers) AutoRegister(c *gin.Context) {
	var req struct {
		IdentityKey string `json:"identityKey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ReasonInvalidInput})
		return
	}

	id, err := h.authService.RegisterIdentity(c.Request.Context(), req.IdentityKey)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"identity":     id.PublicKey,
		"registeredAt": id.RegisteredAt.Format(time.RFC3339),
	})
}

// VerifyKey handles POST /verify-key: report whether an identity key is
// registered without authenticating the caller.
func (h *AuthHandlers) VerifyKey(c *gin.Context) {
	var req struct {
		IdentityKey string `json:"identityKey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ReasonInvalidInput})
		return
	}

	verified, err := h.authService.VerifyKey(c.Request.Context(), req.IdentityKey)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": verified})
}

// Profile returns the registered record for the authenticated identity.
func (h *AuthHandlers) Profile(c *gin.Context) {
	id := identityFromContext(c)
	if id == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": ReasonInternal})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity":     id.PublicKey,
		"registeredAt": id.RegisteredAt.Format(time.RFC3339),
		"lastActiveAt": id.LastActiveAt.Format(time.RFC3339),
	})
}

// Authorize is a lightweight probe for clients to confirm their envelope
// construction works.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	id := identityFromContext(c)
	if id == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": ReasonInternal})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"identity":   id.PublicKey,
	})
}
