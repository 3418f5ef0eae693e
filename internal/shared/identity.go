package shared

import (
	"net/http"
	"strconv"
)

// UserID extracts the acting user's identifier from the request. The engine
// treats it as an opaque audit stamp; authentication happens upstream.
func UserID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return id
}
