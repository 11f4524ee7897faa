package nav

import "testing"

func TestResolve(t *testing.T) {
	m, ok := Resolve("/find-drivers/abc-123", true)
	if !ok || m.Route.Name != FindDrivers || m.Params["cargoId"] != "abc-123" || m.Redirect != "" {
		t.Fatalf("unexpected match %+v %v", m, ok)
	}
	m, ok = Resolve("/driver-registration", false)
	if !ok || m.Route.Protected || m.Redirect != "" {
		t.Fatalf("driver registration should be public: %+v", m)
	}
	if _, ok := Resolve("/nowhere", true); ok {
		t.Fatal("unknown path resolved")
	}
}

func TestProtectedRedirectsHome(t *testing.T) {
	m, ok := Resolve("/tracking/c1", false)
	if !ok || m.Redirect != "/?from=%2Ftracking%2Fc1" {
		t.Fatalf("expected redirect home, got %+v", m)
	}
}

func TestPathBuilders(t *testing.T) {
	if got := FindDriversFor("c1"); got != "/find-drivers/c1" {
		t.Fatalf("FindDriversFor = %q", got)
	}
	if got := TrackingFor("c1"); got != "/tracking/c1" {
		t.Fatalf("TrackingFor = %q", got)
	}
	if got := Path("missing"); got != "" {
		t.Fatalf("unknown route built %q", got)
	}
}
