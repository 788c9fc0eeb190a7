package http

import "net/http"

// NotFoundHandler is the catch-all for routes outside the API surface. It
// answers with the same JSON error envelope every handler uses.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
}
