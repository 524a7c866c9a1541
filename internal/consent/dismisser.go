// Package consent dismisses cookie consent banners before the page is used.
package consent

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Consent button selectors, ordered by specificity. Social platforms mostly
// run OneTrust or their own prompt markup.
var consentButtonSelectors = []string{
	// OneTrust
	`button#onetrust-accept-btn-handler`,
	`button[id*="onetrust-accept"]`,
	`#accept-recommended-btn-handler`,

	// Instagram / Facebook cookie dialog
	`button[data-cookiebanner="accept_button"]`,
	`div[role="dialog"] button[tabindex="0"]:first-of-type`,

	// LinkedIn guest cookie prompt
	`button.artdeco-global-alert-action--primary`,
	`button[action-type="ACCEPT"]`,

	// X cookie bar
	`div[data-testid="BottomBar"] div[role="button"]:first-of-type`,

	// Generic patterns
	`button[data-testid="cookie-policy-dialog-accept-button"]`,
	`button[aria-label*="Accept"]`,
	`button.cookie-accept`,
	`button.accept-cookies`,
	`button#accept-cookies`,
}

// acceptTexts are matched against button text when no selector hits.
var acceptTexts = []string{
	"Allow all cookies",
	"Accept All",
	"Accept all",
	"Accept Cookies",
	"I Accept",
	"Got it",
	"Allow All",
	"Agree",
}

// Dismisser clears consent banners that would otherwise intercept clicks.
type Dismisser struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewDismisser creates a consent dismisser with a short probe timeout.
func NewDismisser(logger *slog.Logger) *Dismisser {
	return &Dismisser{
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

// Dismiss attempts to clear any consent banner on the page. Returns true when
// something was dismissed.
func (d *Dismisser) Dismiss(ctx context.Context, page *rod.Page) bool {
	// Give late-rendering banners a moment to appear.
	time.Sleep(500 * time.Millisecond)

	for _, selector := range consentButtonSelectors {
		if d.tryClickSelector(ctx, page, selector) {
			return true
		}
	}

	return d.tryClickByText(ctx, page)
}

func (d *Dismisser) tryClickSelector(ctx context.Context, page *rod.Page, selector string) bool {
	result, err := page.Eval(`(sel) => document.querySelector(sel) !== null`, selector)
	if err != nil || result.Value.Nil() || !result.Value.Bool() {
		return false
	}

	elem, err := page.Timeout(d.timeout).Element(selector)
	if err != nil {
		return false
	}

	visible, err := elem.Visible()
	if err != nil || !visible {
		return false
	}

	if err := elem.Click(proto.InputMouseButtonLeft, 1); err != nil {
		d.logger.Debug("failed to click consent button", "selector", selector, "error", err)
		return false
	}

	d.logger.Info("dismissed consent banner", "selector", selector)
	time.Sleep(300 * time.Millisecond)
	return true
}

func (d *Dismisser) tryClickByText(ctx context.Context, page *rod.Page) bool {
	js := `(text) => {
		const clickable = [...document.querySelectorAll('button, div[role="button"]')];
		for (const el of clickable) {
			if (el.textContent.trim() === text) {
				const rect = el.getBoundingClientRect();
				if (rect.width > 0 && rect.height > 0) {
					el.click();
					return true;
				}
			}
		}
		return false;
	}`

	for _, text := range acceptTexts {
		result, err := page.Timeout(d.timeout).Eval(js, text)
		if err != nil || result.Value.Nil() {
			continue
		}
		if result.Value.Bool() {
			d.logger.Info("dismissed consent banner", "method", "text_search", "text", text)
			time.Sleep(300 * time.Millisecond)
			return true
		}
	}
	return false
}
