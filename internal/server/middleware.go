package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/dojo/internal/auth"
	"github.com/smallbiznis/dojo/internal/errs"
	obscontext "github.com/smallbiznis/dojo/internal/observability/context"
	"github.com/smallbiznis/dojo/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextUserIDKey  = "user_id"
	contextIsAdminKey = "is_admin"
	bearerPrefix      = "bearer "
)

// BearerAuth verifies the identity provider's access token and stores the
// principal on the request context.
func (s *Server) BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, errs.ErrUnauthenticated)
			return
		}

		principal, err := s.verifier.Verify(token)
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("bearer token rejected", zap.Error(err))
			AbortWithError(c, errs.ErrUnauthenticated)
			return
		}

		ctx := auth.WithPrincipal(c.Request.Context(), principal)
		ctx = obscontext.WithActorID(ctx, principal.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, principal.ID)
		c.Next()
	}
}

// RequireAdmin lets the request through only for callers holding the admin
// role in the policy store.
func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, errs.ErrUnauthenticated)
			return
		}

		isAdmin, err := s.authzSvc.IsAdmin(c.Request.Context(), principal)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !isAdmin {
			AbortWithError(c, errs.ErrPermissionDenied)
			return
		}

		c.Set(contextIsAdminKey, true)
		c.Next()
	}
}

func principalFromGin(c *gin.Context) (auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok {
		return auth.Principal{}, errs.ErrUnauthenticated
	}
	return principal, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
