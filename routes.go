package routeshot

// Route is a single application page to capture.
type Route struct {
	Name   string // output filename stem
	Path   string // URL path relative to the base URL
	Public bool   // reachable without logging in
}

// defaultRoutes lists the application's pages, public ones first.
var defaultRoutes = []Route{
	{Name: "login", Path: "/login", Public: true},
	{Name: "register", Path: "/register", Public: true},
	{Name: "dashboard", Path: "/dashboard"},
	{Name: "create_project", Path: "/projects/create"},
	{Name: "analytics", Path: "/analytics"},
	{Name: "evaluations", Path: "/evaluations"},
	{Name: "user_management", Path: "/users"},
	{Name: "profile", Path: "/profile"},
	{Name: "settings", Path: "/settings"},
	{Name: "approvals", Path: "/approvals"},
}

// DefaultRoutes returns a copy of the built-in route catalog.
func DefaultRoutes() []Route {
	routes := make([]Route, len(defaultRoutes))
	copy(routes, defaultRoutes)
	return routes
}

// PublicRoutes returns the routes that need no login, in catalog order.
func PublicRoutes(routes []Route) []Route {
	return filterRoutes(routes, true)
}

// ProtectedRoutes returns the routes behind the login wall, in catalog order.
func ProtectedRoutes(routes []Route) []Route {
	return filterRoutes(routes, false)
}

func filterRoutes(routes []Route, public bool) []Route {
	var out []Route
	for _, r := range routes {
		if r.Public == public {
			out = append(out, r)
		}
	}
	return out
}
