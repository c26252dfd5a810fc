package server

import (
	"net/http"
	"strings"
)

// jobRoutes maps the action segment of /api/jobs/{name}/{action}
type jobRoutes map[string]http.HandlerFunc

// splitJobPath extracts name and action from /api/jobs/{name}/{action}
func splitJobPath(path string) (name, action string, ok bool) {
	rest, found := strings.CutPrefix(path, "/api/jobs/")
	if !found {
		return "", "", false
	}
	name, action, found = strings.Cut(strings.Trim(rest, "/"), "/")
	if !found || name == "" || action == "" || strings.Contains(action, "/") {
		return "", "", false
	}
	return name, action, true
}

// dispatch runs the handler for the request's action, reporting whether one matched
func (routes jobRoutes) dispatch(w http.ResponseWriter, r *http.Request) bool {
	_, action, ok := splitJobPath(r.URL.Path)
	if !ok {
		return false
	}
	handler, ok := routes[action]
	if !ok {
		return false
	}
	handler(w, r)
	return true
}
