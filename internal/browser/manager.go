// Package browser manages the headless browser and its per-platform contexts.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/engagekit/engagekit/internal/config"
	"github.com/engagekit/engagekit/internal/consent"
	"github.com/engagekit/engagekit/internal/executor"
	"github.com/engagekit/engagekit/internal/models"
	"github.com/engagekit/engagekit/internal/platform"
	"github.com/engagekit/engagekit/internal/session"
)

var (
	// ErrNotStarted is returned when a page is requested before Start.
	ErrNotStarted = errors.New("browser not started")
	// ErrClosed is returned when trying to use a closed manager.
	ErrClosed = errors.New("browser manager is closed")
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// platformContext is one platform's isolated browser context and its page.
// Its mu serializes creation and session saves, so one platform's cold
// start never blocks Surface calls for another.
type platformContext struct {
	mu        sync.Mutex
	adapter   *platform.Adapter
	page      *Page
	restored  bool
	ready     bool
	createdAt time.Time
}

// Manager owns a single browser process and one isolated context per
// platform. Contexts are created lazily and keep their session warm for the
// life of the process.
type Manager struct {
	mu       sync.Mutex
	cfg      *config.Config
	registry *platform.Registry
	sessions *session.Store
	logger   *slog.Logger
	consent  *consent.Dismisser

	browser  *rod.Browser
	contexts map[string]*platformContext
	closed   bool
}

// NewManager creates a Manager. Call Start before requesting pages.
func NewManager(cfg *config.Config, registry *platform.Registry, sessions *session.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		registry: registry,
		sessions: sessions,
		logger:   logger,
		consent:  consent.NewDismisser(logger),
		contexts: make(map[string]*platformContext),
	}
}

// Start launches the browser process and connects to it.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return ErrClosed
	}
	if m.browser != nil {
		return nil
	}

	l := launcher.New()
	if m.cfg.ChromePath != "" {
		l = l.Bin(m.cfg.ChromePath)
	}

	l = l.
		Headless(m.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-plugins-discovery").
		Set("disable-background-networking").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connecting to browser: %w", err)
	}

	m.browser = browser
	m.logger.Info("browser started", "headless", m.cfg.Headless)
	return nil
}

// Running reports whether the browser process is up and responding.
func (m *Manager) Running() bool {
	m.mu.Lock()
	b := m.browser
	closed := m.closed
	m.mu.Unlock()

	if b == nil || closed {
		return false
	}
	defer func() { recover() }()
	_, err := b.Pages()
	return err == nil
}

// Surface returns the page surface for a platform, creating its context and
// restoring any stored session on first use.
func (m *Manager) Surface(ctx context.Context, platformName string) (executor.Surface, error) {
	pc, err := m.ensureContext(ctx, platformName)
	if err != nil {
		return nil, err
	}
	return pc.page, nil
}

func (m *Manager) ensureContext(ctx context.Context, platformName string) (*platformContext, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.browser == nil {
		m.mu.Unlock()
		return nil, ErrNotStarted
	}
	pc, ok := m.contexts[platformName]
	if !ok {
		adapter, err := m.registry.Get(platformName)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		pc = &platformContext{adapter: adapter}
		m.contexts[platformName] = pc
	}
	browser := m.browser
	m.mu.Unlock()

	// The slow path (incognito context, first navigation, consent sweep)
	// runs under the per-platform lock only.
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.ready {
		return pc, nil
	}
	if err := m.initContext(ctx, browser, pc); err != nil {
		return nil, err
	}
	pc.ready = true
	pc.createdAt = time.Now()
	m.logger.Info("platform context ready",
		"platform", platformName,
		"session_restored", pc.restored)
	return pc, nil
}

// initContext builds the platform's page inside pc. Called with pc.mu held;
// a failure leaves pc not ready so the next Surface call retries.
func (m *Manager) initContext(ctx context.Context, browser *rod.Browser, pc *platformContext) error {
	platformName := pc.adapter.Name

	inc, err := browser.Incognito()
	if err != nil {
		return fmt.Errorf("creating browser context for %s: %w", platformName, err)
	}

	page, err := newStealthPage(inc)
	if err != nil {
		return fmt.Errorf("creating page for %s: %w", platformName, err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      userAgent,
		AcceptLanguage: "en-US,en;q=0.9",
	}); err != nil {
		m.logger.Warn("failed to set user agent", "platform", platformName, "error", err)
	}

	sess, err := m.sessions.Load(platformName)
	switch {
	case err == nil:
		if err := applyCookies(page, sess.Cookies); err != nil {
			m.logger.Warn("failed to restore cookies", "platform", platformName, "error", err)
		} else {
			pc.restored = true
		}
	case errors.Is(err, session.ErrNotFound):
		m.logger.Info("no stored session", "platform", platformName)
	default:
		m.logger.Warn("failed to load session", "platform", platformName, "error", err)
	}

	// Land on the platform origin so local storage has a document to attach
	// to and the session cookies get exercised once before any action runs.
	if err := m.openHome(ctx, page, pc, sess); err != nil {
		page.Close()
		return err
	}

	pc.page = &Page{
		page:    page,
		adapter: pc.adapter,
		cfg:     m.cfg,
		consent: m.consent,
		logger:  m.logger.With("platform", platformName),
	}
	return nil
}

func (m *Manager) openHome(ctx context.Context, page *rod.Page, pc *platformContext, sess *session.Session) error {
	rp := page.Context(ctx).Timeout(m.cfg.NavigateTimeout)
	if err := rp.Navigate(pc.adapter.BaseURL); err != nil {
		return fmt.Errorf("opening %s: %w", pc.adapter.BaseURL, err)
	}
	if err := rp.WaitLoad(); err != nil {
		return fmt.Errorf("loading %s: %w", pc.adapter.BaseURL, err)
	}

	m.consent.Dismiss(ctx, page)

	if sess != nil && len(sess.LocalStorage) > 0 {
		for k, v := range sess.LocalStorage {
			if _, err := page.Eval(`(k, v) => localStorage.setItem(k, v)`, k, v); err != nil {
				m.logger.Warn("failed to restore local storage item", "platform", pc.adapter.Name, "key", k, "error", err)
				break
			}
		}
	}

	pause(m.cfg.PostLoadPauseMin, m.cfg.PostLoadPauseMax)

	if pc.restored {
		waitAuthWallSettled(page)
		if authWalled(page, pc.adapter) {
			// The stored session file stays on disk; the operator decides
			// whether to replace it. Actions on this platform will fail
			// with an auth wall until then.
			m.logger.Warn("stored session rejected by platform", "platform", pc.adapter.Name)
			pc.restored = false
		}
	}
	return nil
}

// SaveSession captures the platform's cookies and local storage and persists
// them through the session store. Fails with session.ErrNoAuthCookie when the
// context never logged in.
func (m *Manager) SaveSession(ctx context.Context, platformName string) error {
	m.mu.Lock()
	pc, ok := m.contexts[platformName]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active context for platform %s", platformName)
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.ready {
		return fmt.Errorf("no active context for platform %s", platformName)
	}
	return m.save(ctx, platformName, pc)
}

// save persists the context's session. Called with pc.mu held.
func (m *Manager) save(ctx context.Context, platformName string, pc *platformContext) error {
	page := pc.page.page.Context(ctx)

	cookies, err := page.Cookies(nil)
	if err != nil {
		return fmt.Errorf("reading cookies for %s: %w", platformName, err)
	}

	sess := &session.Session{
		Platform:     platformName,
		Cookies:      fromProtoCookies(cookies),
		LocalStorage: readLocalStorage(page),
	}

	return m.sessions.Save(platformName, sess, pc.adapter.AuthCookie)
}

// CloseContext saves the platform's session best-effort and closes its page.
func (m *Manager) CloseContext(ctx context.Context, platformName string) error {
	m.mu.Lock()
	pc, ok := m.contexts[platformName]
	if ok {
		delete(m.contexts, platformName)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.ready {
		return nil
	}
	if err := m.save(ctx, platformName, pc); err != nil && !errors.Is(err, session.ErrNoAuthCookie) {
		m.logger.Warn("failed to save session on context close", "platform", platformName, "error", err)
	}
	if err := pc.page.page.Close(); err != nil {
		m.logger.Warn("error closing page", "platform", platformName, "error", err)
	}
	m.logger.Info("platform context closed", "platform", platformName)
	return nil
}

// Close saves all live sessions best-effort and shuts the browser down.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	contexts := m.contexts
	m.contexts = make(map[string]*platformContext)
	browser := m.browser
	m.browser = nil
	m.mu.Unlock()

	for name, pc := range contexts {
		pc.mu.Lock()
		if pc.ready {
			if err := m.save(ctx, name, pc); err != nil && !errors.Is(err, session.ErrNoAuthCookie) {
				m.logger.Warn("failed to save session on shutdown", "platform", name, "error", err)
			}
		}
		pc.mu.Unlock()
	}

	if browser != nil {
		if err := browser.Close(); err != nil {
			m.logger.Warn("error closing browser", "error", err)
		}
	}
	m.logger.Info("browser closed")
}

func applyCookies(page *rod.Page, cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		if c.SameSite != "" {
			p.SameSite = proto.NetworkCookieSameSite(c.SameSite)
		}
		params = append(params, p)
	}
	return proto.NetworkSetCookies{Cookies: params}.Call(page)
}

func fromProtoCookies(cookies []*proto.NetworkCookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

func readLocalStorage(page *rod.Page) map[string]string {
	result, err := page.Eval(`() => JSON.stringify(Object.assign({}, window.localStorage))`)
	if err != nil || result.Value.Nil() {
		return nil
	}
	var items map[string]string
	if err := json.Unmarshal([]byte(result.Value.Str()), &items); err != nil {
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

// pause sleeps for a random duration in [min, max].
func pause(min, max time.Duration) {
	if max <= min {
		time.Sleep(min)
		return
	}
	time.Sleep(min + time.Duration(rand.Int63n(int64(max-min+1))))
}
