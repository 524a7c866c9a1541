package browser

import (
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/engagekit/engagekit/internal/platform"
)

// loginPaths are URL fragments that platforms redirect to when a session
// is missing or has been invalidated server-side.
var loginPaths = []string{
	"/accounts/login",
	"/login",
	"/uas/login",
	"/i/flow/login",
	"/checkpoint",
	"/authwall",
	"/signin",
}

// authWalled reports whether the page has landed on a login or challenge
// surface instead of the requested content. It checks the current URL first,
// then probes for the platform's login form marker with a short timeout.
func authWalled(page *rod.Page, adapter *platform.Adapter) bool {
	info, err := page.Info()
	if err == nil && info.URL != "" {
		lower := strings.ToLower(info.URL)
		for _, p := range loginPaths {
			if strings.Contains(lower, p) {
				return true
			}
		}
	}

	marker, err := adapter.Locator(platform.LocatorLoginMarker)
	if err != nil {
		return false
	}

	result, err := page.Eval(`(sel) => document.querySelector(sel) !== null`, marker)
	if err != nil || result.Value.Nil() {
		return false
	}
	return result.Value.Bool()
}

// waitAuthWallSettled gives client-side redirects a moment to land before
// the auth wall check runs. Platforms frequently render the requested page
// for a frame and then bounce to login from script.
func waitAuthWallSettled(page *rod.Page) {
	_ = page.WaitIdle(2 * time.Second)
}
