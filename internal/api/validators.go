package api

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/ernie/trinity-link/internal/domain"
)

// maxIdentityLen bounds path identities; GUIDs are 32 chars, snowflakes under 20
const maxIdentityLen = 64

// parseLimit parses and validates a limit parameter with default and max values
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// parseOffset parses and validates an offset parameter
func parseOffset(r *http.Request) int {
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return 0
}

// parseIdentity reads an identity from the URL path
func parseIdentity(r *http.Request, param string) (domain.Identity, bool) {
	id := r.PathValue(param)
	if id == "" || len(id) > maxIdentityLen || strings.IndexFunc(id, unicode.IsSpace) != -1 {
		return "", false
	}
	return domain.Identity(id), true
}
