package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/service"
)

// Context keys used to pass verified data from middleware to handlers.
const (
	ctxCallbackChallengeID = "callbackChallengeID"
	ctxCallbackIdentity    = "callbackIdentity"
	ctxIdentity            = "authIdentity"
)

// identityFromContext returns the identity the gate attached, or nil.
func identityFromContext(c *gin.Context) *core.Identity {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return nil
	}
	id, ok := v.(*core.Identity)
	if !ok {
		return nil
	}
	return id
}

// CallbackProofMiddleware verifies the external signer's assertion before
// the callback handler runs. A request whose proof does not verify never
// reaches the completion logic.
func CallbackProofMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ChallengeID string `json:"challengeId" binding:"required"`
			IdentityKey string `json:"identityKey" binding:"required"`
			Signature   string `json:"signature" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ReasonInvalidInput})
			return
		}

		err := authService.VerifyCallbackProof(c.Request.Context(), req.ChallengeID, req.IdentityKey, req.Signature)
		if err != nil {
			abortWithAuthError(c, err)
			return
		}

		c.Set(ctxCallbackChallengeID, req.ChallengeID)
		c.Set(ctxCallbackIdentity, req.IdentityKey)
		c.Next()
	}
}

// AuthMiddleware is the authentication gate for protected routes: it
// reconstructs the signed envelope from request headers and rejects anything
// that does not verify before business logic runs.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce := c.GetHeader(core.HeaderNonce)
		tsStr := c.GetHeader(core.HeaderTimestamp)
		signature := c.GetHeader(core.HeaderSignature)
		identityKey := c.GetHeader(core.HeaderIdentityKey)

		if nonce == "" || tsStr == "" || signature == "" || identityKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ReasonUnauthenticated})
			return
		}

		ts, err := core.ParseEnvelopeTimestamp(tsStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ReasonUnauthenticated})
			return
		}

		// the signature covers the body, so consume and restore it
		var body []byte
		if c.Request.Body != nil {
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ReasonInvalidInput})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		env := &core.Envelope{
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			Body:        body,
			Nonce:       nonce,
			Timestamp:   ts,
			Signature:   signature,
			IdentityKey: identityKey,
		}

		id, err := authService.Authenticate(c.Request.Context(), env)
		if err != nil {
			abortWithAuthError(c, err)
			return
		}

		c.Set(ctxIdentity, id)
		c.Next()
	}
}

// abortWithAuthError maps authentication failures onto their status and
// reason code, keeping verifier outages distinct from rejections.
func abortWithAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrVerifierUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": ReasonVerifierUnavailable})
	case errors.Is(err, core.ErrVerificationFailed):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ReasonVerificationFailed})
	case errors.Is(err, core.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ReasonInvalidInput})
	default:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ReasonUnauthenticated})
	}
}

// RequestLogger logs each request with zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
