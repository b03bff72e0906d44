package handler

import (
	"github.com/gin-gonic/gin"

	authz "pressroom/internal/auth"
)

const identityKey = "identity"

// identityFrom returns the authenticated identity set by the auth middleware.
// Handlers behind the middleware can assume it is present.
func identityFrom(c *gin.Context) authz.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(authz.Identity)
	return id
}

// optionalIdentity is for routes that are public but behave differently when
// a valid token is attached.
func optionalIdentity(c *gin.Context) (authz.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return authz.Identity{}, false
	}
	id, ok := v.(authz.Identity)
	return id, ok
}

// SetIdentity stores the identity on the request context for downstream
// handlers.
func SetIdentity(c *gin.Context, id authz.Identity) {
	c.Set(identityKey, id)
}
