package routeshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRoutes(t *testing.T) {
	routes := DefaultRoutes()
	assert.Len(t, routes, 10)
	assert.Len(t, PublicRoutes(routes), 2)
	assert.Len(t, ProtectedRoutes(routes), 8)

	names := make(map[string]bool)
	for _, r := range routes {
		assert.False(t, names[r.Name], "duplicate route %s", r.Name)
		names[r.Name] = true
		assert.Equal(t, byte('/'), r.Path[0])
	}
}

func TestDefaultRoutesReturnsCopy(t *testing.T) {
	routes := DefaultRoutes()
	routes[0].Name = "changed"
	assert.Equal(t, "login", DefaultRoutes()[0].Name)
}

func TestPublicRoutesKeepOrder(t *testing.T) {
	routes := []Route{
		{Name: "a", Path: "/a"},
		{Name: "b", Path: "/b", Public: true},
		{Name: "c", Path: "/c"},
		{Name: "d", Path: "/d", Public: true},
	}
	assert.Equal(t, []Route{routes[1], routes[3]}, PublicRoutes(routes))
	assert.Equal(t, []Route{routes[0], routes[2]}, ProtectedRoutes(routes))
}

func TestErrorAborted(t *testing.T) {
	assert.ErrorIs(t, newError(CodeServerTimeout, "x", nil), ErrAborted)
	assert.NotErrorIs(t, newError(CodeNavigation, "x", nil), ErrAborted)
	assert.Equal(t, "CAPTURE_FAILED: no image", newError(CodeCapture, "no image", nil).Error())
}
