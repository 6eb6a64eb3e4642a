package intent

import (
	"net/url"
	"strings"
	"testing"
)

// TestRoundTrip verifies the round-trip law for paths including reserved
// query characters.
func TestRoundTrip(t *testing.T) {
	tracker := NewTracker("/signin", "return_to", "/")

	paths := []string{
		"/",
		"/admin/dashboard",
		"/search?q=hello world",
		"/a b?c=d&e=%2F",
		"/docs/path;v=1?x=1&y=2#frag",
		"/emoji/✓",
	}

	for _, p := range paths {
		signIn := tracker.SignInURL(p)
		u, err := url.Parse(signIn)
		if err != nil {
			t.Fatalf("SignInURL(%q) produced unparseable URL %q: %v", p, signIn, err)
		}
		if u.Path != "/signin" {
			t.Errorf("SignInURL(%q) path = %q, want /signin", p, u.Path)
		}
		if got := tracker.ResolveReturnTo(u.RawQuery); got != p {
			t.Errorf("round trip of %q = %q", p, got)
		}
	}
}

func TestSignInURLEncodesExactly(t *testing.T) {
	tracker := NewTracker("/signin", "return_to", "/")

	got := tracker.SignInURL("/admin/reports?from=2024&to=2025")
	want := "/signin?return_to=" + url.QueryEscape("/admin/reports?from=2024&to=2025")
	if got != want {
		t.Fatalf("SignInURL = %q, want %q", got, want)
	}
	if !strings.Contains(got, "%2Fadmin%2Freports") {
		t.Fatalf("SignInURL = %q, expected escaped path", got)
	}
}

func TestResolveReturnToFallsBackToHome(t *testing.T) {
	tracker := NewTracker("/signin", "return_to", "/home")

	tests := []struct {
		name     string
		rawQuery string
	}{
		{"missing parameter", ""},
		{"other parameters only", "foo=bar"},
		{"empty value", "return_to="},
		{"malformed percent escape", "return_to=%zz"},
		{"relative path", "return_to=admin"},
		{"protocol-relative url", "return_to=%2F%2Fevil.example"},
		{"absolute url", "return_to=https%3A%2F%2Fevil.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tracker.ResolveReturnTo(tt.rawQuery); got != "/home" {
				t.Errorf("ResolveReturnTo(%q) = %q, want /home", tt.rawQuery, got)
			}
		})
	}
}

func TestNewTrackerDefaults(t *testing.T) {
	tracker := NewTracker("", "", "")
	if tracker.SignInPath() != DefaultSignInPath {
		t.Errorf("SignInPath = %q, want %q", tracker.SignInPath(), DefaultSignInPath)
	}
	if tracker.Home() != DefaultHome {
		t.Errorf("Home = %q, want %q", tracker.Home(), DefaultHome)
	}
	if got := tracker.SignInURL("/x"); got != "/signin?return_to=%2Fx" {
		t.Errorf("SignInURL(/x) = %q", got)
	}
}
