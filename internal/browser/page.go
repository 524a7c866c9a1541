package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/engagekit/engagekit/internal/config"
	"github.com/engagekit/engagekit/internal/consent"
	"github.com/engagekit/engagekit/internal/executor"
	"github.com/engagekit/engagekit/internal/platform"
)

// Page wraps a rod page for one platform and implements executor.Surface.
type Page struct {
	page    *rod.Page
	adapter *platform.Adapter
	cfg     *config.Config
	consent *consent.Dismisser
	logger  *slog.Logger
}

// Navigate loads the URL, waiting for the load event and then for network
// activity to settle. A single retry with the simpler load-only wait covers
// pages whose long-polling keeps the network busy forever.
func (p *Page) Navigate(ctx context.Context, url string) error {
	rp := p.page.Context(ctx)

	if err := p.load(rp, url, true); err != nil {
		p.logger.Debug("navigation settle failed, retrying with load-only wait", "url", url, "error", err)
		if err := p.load(rp, url, false); err != nil {
			return fmt.Errorf("navigating to %s: %w", url, err)
		}
	}

	p.consent.Dismiss(ctx, rp)

	pause(p.cfg.PostLoadPauseMin, p.cfg.PostLoadPauseMax)

	waitAuthWallSettled(rp)
	if authWalled(rp, p.adapter) {
		return executor.ErrAuthWall
	}
	return nil
}

func (p *Page) load(rp *rod.Page, url string, settle bool) error {
	tp := rp.Timeout(p.cfg.NavigateTimeout)
	if err := tp.Navigate(url); err != nil {
		return err
	}
	if err := tp.WaitLoad(); err != nil {
		return err
	}
	if settle {
		return rp.WaitIdle(3 * time.Second)
	}
	return nil
}

// Element waits up to the configured element timeout for the selector.
func (p *Page) Element(ctx context.Context, selector string) (executor.Element, error) {
	elem, err := p.page.Context(ctx).Timeout(p.cfg.ElementTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("locating %q: %w", selector, err)
	}
	return &elemHandle{elem: elem}, nil
}

// Exists probes for the selector in the current document without waiting.
func (p *Page) Exists(selector string) bool {
	result, err := p.page.Eval(`(sel) => document.querySelector(sel) !== null`, selector)
	if err != nil || result.Value.Nil() {
		return false
	}
	return result.Value.Bool()
}

type elemHandle struct {
	elem *rod.Element
}

func (e *elemHandle) Click() error {
	return e.elem.Click(proto.InputMouseButtonLeft, 1)
}

func (e *elemHandle) ForceClick() error {
	_, err := e.elem.Eval(`() => { this.scrollIntoView({block: 'center', inline: 'center'}); this.click(); }`)
	return err
}

func (e *elemHandle) DispatchClick() error {
	_, err := e.elem.Eval(`() => {
		const opts = { bubbles: true, cancelable: true, view: window };
		this.dispatchEvent(new MouseEvent('mousedown', opts));
		this.dispatchEvent(new MouseEvent('mouseup', opts));
		this.dispatchEvent(new MouseEvent('click', opts));
	}`)
	return err
}

func (e *elemHandle) Input(text string) error {
	return e.elem.Input(text)
}

func (e *elemHandle) Clear() error {
	if err := e.elem.SelectAllText(); err != nil {
		return err
	}
	return e.elem.Type(input.Backspace)
}

func (e *elemHandle) PressEnter() error {
	return e.elem.Type(input.Enter)
}

func (e *elemHandle) Text() (string, error) {
	return e.elem.Text()
}
