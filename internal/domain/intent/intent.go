// Package intent implements redirect-intent preservation: carrying the
// originally requested path through a sign-in redirect so the user returns
// to their intended page after authenticating.
package intent

import (
	"net/url"
	"strings"
)

// Default values applied by NewTracker for empty fields.
const (
	DefaultSignInPath = "/signin"
	DefaultParam      = "return_to"
	DefaultHome       = "/"
)

// Tracker encodes and decodes the return-to contract.
// For all valid paths P: ResolveReturnTo(query of SignInURL(P)) == P.
type Tracker struct {
	signInPath string
	param      string
	home       string
}

// NewTracker creates a tracker. Empty arguments fall back to the defaults.
func NewTracker(signInPath, param, home string) *Tracker {
	if signInPath == "" {
		signInPath = DefaultSignInPath
	}
	if param == "" {
		param = DefaultParam
	}
	if home == "" {
		home = DefaultHome
	}
	return &Tracker{signInPath: signInPath, param: param, home: home}
}

// SignInPath returns the configured sign-in route.
func (t *Tracker) SignInPath() string { return t.signInPath }

// Home returns the configured default home path.
func (t *Tracker) Home() string { return t.home }

// SignInURL returns the sign-in route with the original path carried as an
// escaped query parameter.
func (t *Tracker) SignInURL(path string) string {
	return t.signInPath + "?" + t.param + "=" + url.QueryEscape(path)
}

// ResolveReturnTo extracts and decodes the return-to parameter from a raw
// query string. A missing or malformed parameter resolves to the default
// home path; navigation must never hard-fail on a bad query parameter.
// Only absolute same-site paths are accepted: the decoded value must start
// with a single "/" so the parameter cannot be abused as an open redirect.
func (t *Tracker) ResolveReturnTo(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return t.home
	}
	target := values.Get(t.param)
	if target == "" {
		return t.home
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return t.home
	}
	return target
}
