package notifier

import (
	"context"
	"errors"
	"strings"
)

var ErrNoRoute = errors.New("no sink for destination")

// Route sends destinations starting with Prefix to Sink.
type Route struct {
	Prefix string
	Sink   Sink
}

// Router is a Sink that picks a platform sink by destination prefix.
// The first matching route wins; unmatched destinations go to the fallback.
// A matching route with a nil Sink (platform disabled) fails with ErrNoRoute.
type Router struct {
	routes   []Route
	fallback Sink
}

func NewRouter(fallback Sink, routes ...Route) *Router {
	return &Router{routes: routes, fallback: fallback}
}

func (r *Router) Send(ctx context.Context, destination, text string) error {
	for _, rt := range r.routes {
		if !strings.HasPrefix(destination, rt.Prefix) {
			continue
		}
		if rt.Sink == nil {
			return ErrNoRoute
		}
		return rt.Sink.Send(ctx, destination, text)
	}
	if r.fallback == nil {
		return ErrNoRoute
	}
	return r.fallback.Send(ctx, destination, text)
}
