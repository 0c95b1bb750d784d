// Package navigation resolves assessment route ids to client paths and
// delivers navigation requests to whatever is driving the attempt.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrUnknownRoute = errors.New("unknown route")

// Navigator moves the client to a route id.
type Navigator interface {
	Navigate(ctx context.Context, routeID string) error
}

// Target is a resolved navigation request.
type Target struct {
	Route string `json:"route"`
	Path  string `json:"path"`
}

// Routes maps route ids to client paths.
type Routes map[string]string

// DefaultRoutes are used when configuration does not override them.
func DefaultRoutes() Routes {
	return Routes{
		"assessments":                "/assessments",
		"assessment-results":         "/assessments/results",
		"surgical-readiness-results": "/surgery/readiness/results",
	}
}

// ParseRoutes reads "id=/path" pairs on top of the defaults.
func ParseRoutes(pairs []string) (Routes, error) {
	routes := DefaultRoutes()
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, path, ok := strings.Cut(pair, "=")
		id, path = strings.TrimSpace(id), strings.TrimSpace(path)
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("route %q: want id=/path", pair)
		}
		routes[id] = path
	}
	return routes, nil
}

// Resolve returns the path for a route id. An empty id resolves to nothing.
func (r Routes) Resolve(routeID string) (Target, error) {
	if routeID == "" {
		return Target{}, fmt.Errorf("%w: empty route id", ErrUnknownRoute)
	}
	path, ok := r[routeID]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownRoute, routeID)
	}
	return Target{Route: routeID, Path: path}, nil
}

// Recorder remembers the last navigation so a request handler can return it.
type Recorder struct {
	routes Routes

	mu     sync.Mutex
	target *Target
}

func NewRecorder(routes Routes) *Recorder {
	return &Recorder{routes: routes}
}

func (r *Recorder) Navigate(_ context.Context, routeID string) error {
	target, err := r.routes.Resolve(routeID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.target = &target
	r.mu.Unlock()
	return nil
}

// Target returns the recorded navigation, if any.
func (r *Recorder) Target() *Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target == nil {
		return nil
	}
	t := *r.target
	return &t
}
