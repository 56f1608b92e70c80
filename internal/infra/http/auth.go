package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// headerAuthenticator is implemented by authenticators that read the caller
// identity from a trusted gateway header instead of the bearer token.
type headerAuthenticator interface {
	Header() string
}

// subject resolves the caller. An empty result means unauthenticated; the
// pipeline turns that into its own 401.
func (s *Server) subject(c *gin.Context) string {
	if s.authenticator == nil {
		return ""
	}
	credential := extractBearerToken(c.GetHeader("Authorization"))
	if h, ok := s.authenticator.(headerAuthenticator); ok {
		credential = strings.TrimSpace(c.GetHeader(h.Header()))
	}
	if credential == "" {
		return ""
	}
	principal, err := s.authenticator.Authenticate(c.Request.Context(), credential)
	if err != nil {
		s.log.Info("caller authentication failed", zap.Error(err))
		return ""
	}
	return principal.Subject
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}
