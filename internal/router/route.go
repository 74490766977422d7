// Package router implements the request-routing state machine: it classifies
// a user request into one of three handling paths (clarify, code, answer),
// runs the bounded clarification loop, and drives the external capabilities
// that execute the chosen path.
package router

import "strings"

// Route is the terminal-path classification of a request.
type Route string

const (
	// RouteUnset means classification has not happened yet.
	RouteUnset Route = ""
	// RouteClarify means the request is too vague and needs follow-up questions.
	RouteClarify Route = "clarify"
	// RouteCode means the request requires the code-execution tool.
	RouteCode Route = "code"
	// RouteAnswer means the request can be answered directly.
	RouteAnswer Route = "answer"
)

// ParseRoute maps raw classifier output onto the closed route set.
// Returns RouteUnset when the output matches none of the known routes;
// the orchestrator applies its fallback rule in that case.
func ParseRoute(raw string) Route {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "CLARIFY"):
		return RouteClarify
	case strings.Contains(upper, "CODE"):
		return RouteCode
	case strings.Contains(upper, "ANSWER"):
		return RouteAnswer
	default:
		return RouteUnset
	}
}

// Valid reports whether r is one of the three terminal routes.
func (r Route) Valid() bool {
	return r == RouteClarify || r == RouteCode || r == RouteAnswer
}
