package navigation

import (
	"context"

	ws "github.com/gokatarajesh/clinic-assessments/pkg/http/ws"
)

// WSNavigator pushes navigate messages to a live session.
type WSNavigator struct {
	routes Routes
	send   func(ws.Message) error
}

func NewWSNavigator(routes Routes, send func(ws.Message) error) *WSNavigator {
	return &WSNavigator{routes: routes, send: send}
}

func (n *WSNavigator) Navigate(_ context.Context, routeID string) error {
	target, err := n.routes.Resolve(routeID)
	if err != nil {
		return err
	}
	msg, err := ws.NewMessage(ws.TypeNavigate, ws.NavigatePayload{Route: target.Route, Path: target.Path})
	if err != nil {
		return err
	}
	return n.send(msg)
}
