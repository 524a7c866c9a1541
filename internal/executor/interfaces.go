package executor

import (
	"context"
	"errors"
)

// ErrAuthWall is returned by Surface.Navigate when the platform redirected to
// a login or challenge page instead of serving the requested content.
var ErrAuthWall = errors.New("authentication required")

// Browser provides per-platform page surfaces. The production implementation
// lives in internal/browser; tests substitute fakes.
type Browser interface {
	// Surface returns the page surface for a platform, creating the browser
	// context and restoring any stored session on first use.
	Surface(ctx context.Context, platform string) (Surface, error)

	// SaveSession captures the platform's current cookies and local storage.
	SaveSession(ctx context.Context, platform string) error
}

// Surface is a single platform's page, already session-restored.
type Surface interface {
	// Navigate loads the URL and waits for the page to settle. Returns
	// ErrAuthWall when the platform bounced to a login surface.
	Navigate(ctx context.Context, url string) error

	// Element waits for the selector to appear and returns a handle to it.
	Element(ctx context.Context, selector string) (Element, error)

	// Exists probes for the selector without waiting.
	Exists(selector string) bool
}

// Element is an interactable DOM element handle.
type Element interface {
	// Click performs a trusted input click with interactability checks.
	Click() error

	// ForceClick scrolls the element into view and invokes its native click
	// activation, bypassing hit testing and overlay checks.
	ForceClick() error

	// DispatchClick fires a synthetic mouse event sequence at the element.
	// Last resort for targets whose handlers ignore native activation.
	DispatchClick() error

	Input(text string) error
	Clear() error
	PressEnter() error
	Text() (string, error)
}
