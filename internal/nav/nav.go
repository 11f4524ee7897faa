// Package nav is the client route table: which screen a path shows, whether
// it needs a signed-in user, and where each wizard step leads next.
package nav

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

const (
	Home                   = "home"
	Dashboard              = "dashboard"
	PostCargo              = "post-cargo"
	FindDrivers            = "find-drivers"
	DriverRegistration     = "driver-registration"
	EnterpriseRegistration = "enterprise-registration"
	Profile                = "profile"
	Tracking               = "tracking"
	Messages               = "messages"
	Settings               = "settings"
	Notifications          = "notifications"
)

type Route struct {
	Name      string `json:"name"`
	Pattern   string `json:"pattern"`
	Protected bool   `json:"protected"`
}

var Routes = []Route{
	{Name: Home, Pattern: "/"},
	{Name: Dashboard, Pattern: "/dashboard", Protected: true},
	{Name: PostCargo, Pattern: "/post-cargo", Protected: true},
	{Name: FindDrivers, Pattern: "/find-drivers/{cargoId}", Protected: true},
	{Name: DriverRegistration, Pattern: "/driver-registration"},
	{Name: EnterpriseRegistration, Pattern: "/enterprise-registration", Protected: true},
	{Name: Profile, Pattern: "/profile", Protected: true},
	{Name: Tracking, Pattern: "/tracking/{cargoId}", Protected: true},
	{Name: Messages, Pattern: "/messages", Protected: true},
	{Name: Settings, Pattern: "/settings", Protected: true},
	{Name: Notifications, Pattern: "/notifications", Protected: true},
}

var table = build()

func build() *mux.Router {
	r := mux.NewRouter()
	for _, rt := range Routes {
		r.NewRoute().Path(rt.Pattern).Name(rt.Name)
	}
	return r
}

// Match is a resolved path.
type Match struct {
	Route    Route             `json:"route"`
	Params   map[string]string `json:"params,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

// Resolve finds the route for path. Protected routes resolve to a redirect
// home when the caller is not signed in; the requested path is kept in from.
func Resolve(path string, signedIn bool) (Match, bool) {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}}
	var rm mux.RouteMatch
	if !table.Match(req, &rm) || rm.Route == nil {
		return Match{}, false
	}
	name := rm.Route.GetName()
	var rt Route
	for _, r := range Routes {
		if r.Name == name {
			rt = r
			break
		}
	}
	m := Match{Route: rt, Params: rm.Vars}
	if rt.Protected && !signedIn {
		m.Redirect = "/?" + url.Values{"from": {path}}.Encode()
	}
	return m, true
}

// Path builds the URL for a named route.
func Path(name string, pairs ...string) string {
	r := table.Get(name)
	if r == nil {
		return ""
	}
	u, err := r.URL(pairs...)
	if err != nil {
		return ""
	}
	return u.Path
}

// FindDriversFor is where a posted cargo goes next.
func FindDriversFor(cargoID string) string { return Path(FindDrivers, "cargoId", cargoID) }

// TrackingFor is where a paid booking goes next.
func TrackingFor(cargoID string) string { return Path(Tracking, "cargoId", cargoID) }
