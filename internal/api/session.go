package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ownerCookie is the per-browser session identifier. It scopes jobs to the
// client that created them and drives refresh-clears-data eviction.
const ownerCookie = "client_id"

func ownerKey(c *gin.Context) (string, bool) {
	key, err := c.Cookie(ownerCookie)
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

func (a *API) setOwnerCookie(c *gin.Context, key string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ownerCookie, key, maxAge, "/", "", false, true)
}

func newOwnerKey() string { return uuid.NewString() }
