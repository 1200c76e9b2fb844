package server

import (
	"net/http"
	"strings"
	"sync"
)

// HandlerFunc handles a matched route. params holds the values bound to
// ":name" segments of the registered pattern.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string)

// RouteKey is used to uniquely identify a route
type RouteKey struct {
	Method  string
	Pattern string
}

// Router dispatches requests to handlers registered under method + pattern.
// Patterns like "/collection/:id" bind path segments to named parameters.
type Router struct {
	handlers    map[RouteKey]HandlerFunc
	exactRoutes map[RouteKey]bool
	mu          sync.RWMutex
}

func NewRouter() *Router {
	return &Router{
		handlers:    make(map[RouteKey]HandlerFunc),
		exactRoutes: make(map[RouteKey]bool),
	}
}

// Handle registers a handler. Patterns without ":" segments are exact routes.
func (rt *Router) Handle(method, pattern string, handler HandlerFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Pattern: pattern}
	rt.handlers[key] = handler
	rt.exactRoutes[key] = !strings.Contains(pattern, ":")
}

// ServeHTTP finds the handler for the request path. An unknown path is 404;
// a known path with the wrong method is 405.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler, params, found := rt.match(r.Method, r.URL.Path)
	if !found {
		if rt.pathKnown(r.URL.Path) {
			JSONError(w, "method_not_allowed", "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		JSONError(w, "not_found", "No such route", http.StatusNotFound)
		return
	}
	handler(w, r, params)
}

func (rt *Router) match(method, path string) (HandlerFunc, map[string]string, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	// Try exact match first
	key := RouteKey{Method: strings.ToUpper(method), Pattern: path}
	if handler, ok := rt.handlers[key]; ok && rt.exactRoutes[key] {
		return handler, nil, true
	}

	// Then pattern matching
	for routeKey, handler := range rt.handlers {
		if routeKey.Method != strings.ToUpper(method) || rt.exactRoutes[routeKey] {
			continue
		}
		if params, ok := matchPath(routeKey.Pattern, path); ok {
			return handler, params, true
		}
	}

	return nil, nil, false
}

func (rt *Router) pathKnown(path string) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	for routeKey := range rt.handlers {
		if routeKey.Pattern == path {
			return true
		}
		if !rt.exactRoutes[routeKey] {
			if _, ok := matchPath(routeKey.Pattern, path); ok {
				return true
			}
		}
	}
	return false
}

// matchPath does simple pattern matching for routes, binding ":name"
// segments. "/collection/:id" matches "/collection/42" with {"id": "42"}.
func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i := range patternParts {
		if strings.HasPrefix(patternParts[i], ":") {
			if pathParts[i] == "" {
				return nil, false
			}
			params[patternParts[i][1:]] = pathParts[i]
			continue
		}
		if patternParts[i] != pathParts[i] {
			return nil, false
		}
	}

	return params, true
}
