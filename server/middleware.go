package server

import (
	"net/http"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/needle360/messaging/server/response"
)

// Authorize verifies the bearer credential against the identity issuer
// and stores the resolved user on the context. Every protected route
// goes through here; per-resource participant checks stay in the stores.
func (s *Server) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := getTokenFromHeader(c)
		if accessToken == "" {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.New("unauthorized", http.StatusUnauthorized))
			return
		}

		user, apiErr := s.IdentityVerifier.VerifyToken(accessToken)
		if apiErr != nil {
			respondAndAbort(c, "", apiErr.Status, nil, apiErr)
			return
		}

		c.Set("user", user)
		c.Set("userID", user.ID)
		c.Set("userRole", user.Role)
		c.Next()
	}
}

// requireRelayToken guards the domain event ingest endpoint with the
// shared secret the order/payment services present.
func (s *Server) requireRelayToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := getTokenFromHeader(c)
		if s.Config.EventRelayToken == "" || token != s.Config.EventRelayToken {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.New("unauthorized", http.StatusUnauthorized))
			return
		}
		c.Next()
	}
}

func limitRateForMessageSend(store ratelimit.Store) gin.HandlerFunc {
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			respondAndAbort(c, "too many messages", http.StatusTooManyRequests, nil,
				errs.New("too many messages", http.StatusTooManyRequests))
		},
		KeyFunc: func(c *gin.Context) string {
			if id, ok := currentUserID(c); ok {
				return id.String()
			}
			return c.ClientIP()
		},
	})
}

// currentUserID pulls the authenticated identity set by Authorize.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get("userID")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func currentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// respondAndAbort calls response.JSON and aborts the Context
func respondAndAbort(c *gin.Context, message string, status int, data interface{}, e *errs.Error) {
	response.JSON(c, message, status, data, e)
	c.Abort()
}

// getTokenFromHeader returns the token string in the authorization header
func getTokenFromHeader(c *gin.Context) string {
	authHeader := c.Request.Header.Get("Authorization")
	if len(authHeader) > 8 {
		return authHeader[7:]
	}
	return ""
}
