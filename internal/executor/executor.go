// Package executor performs single social actions against a live page with
// human pacing, a click fallback ladder and a uniform result contract.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/engagekit/engagekit/internal/config"
	"github.com/engagekit/engagekit/internal/logging"
	"github.com/engagekit/engagekit/internal/models"
	"github.com/engagekit/engagekit/internal/notifier"
	"github.com/engagekit/engagekit/internal/platform"
	"github.com/engagekit/engagekit/internal/quota"
)

// Machine-readable failure reasons carried in ActionResult.Error.
const (
	ReasonRateLimited        = "rate_limited"
	ReasonAuthWall           = "auth_wall"
	ReasonNavigationFailed   = "navigation_failed"
	ReasonElementNotFound    = "element_not_found"
	ReasonClickFailed        = "click_failed"
	ReasonTypeFailed         = "type_failed"
	ReasonVerificationFailed = "verification_failed"
	ReasonUnsupported        = "unsupported_action"
)

// Fixed pauses framing text entry.
const (
	fieldFocusPause = 400 * time.Millisecond
	reviewPause     = 600 * time.Millisecond
)

// Executor runs one action at a time per platform. Callers serialize actions
// per platform; across platforms calls are independent.
type Executor struct {
	browser    Browser
	registry   *platform.Registry
	gate       *quota.Gate
	dispatcher *notifier.Dispatcher
	cfg        *config.Config
	logger     *slog.Logger
	pacer      *pacer
}

// New creates an Executor. dispatcher may be nil when notifications are off.
func New(browser Browser, registry *platform.Registry, gate *quota.Gate, dispatcher *notifier.Dispatcher, cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{
		browser:    browser,
		registry:   registry,
		gate:       gate,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		pacer:      newPacer(),
	}
}

// Execute runs one action to completion and returns its result record.
// Expected failures (quota refusal, auth wall, element trouble) land in the
// result; only malformed requests and precondition violations return an error.
func (e *Executor) Execute(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error) {
	if !req.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
	adapter, err := e.registry.Get(req.Platform)
	if err != nil {
		return nil, err
	}
	if needsText(req.Action) && req.Text == "" {
		return nil, fmt.Errorf("action %s requires text", req.Action)
	}

	ctx = logging.WithPlatform(ctx, req.Platform)
	ctx = logging.WithAction(ctx, string(req.Action))
	log := logging.FromContext(ctx, e.logger)

	result := &models.ActionResult{
		ID:        ulid.Make().String(),
		Platform:  req.Platform,
		Action:    req.Action,
		Target:    models.TruncateTarget(req.Target),
		StartedAt: time.Now(),
		Details:   map[string]string{},
	}

	status := e.gate.Check(req.Platform, req.Action)
	result.Quota = status
	if !status.Allowed {
		log.Warn("action refused by quota gate",
			"remaining", status.Remaining,
			"reset_at", status.ResetAt)
		return e.finish(ctx, req, result, ReasonRateLimited), nil
	}

	surface, err := e.browser.Surface(ctx, req.Platform)
	if err != nil {
		return nil, err
	}

	if err := surface.Navigate(ctx, req.Target); err != nil {
		if errors.Is(err, ErrAuthWall) {
			log.Warn("navigation hit an auth wall", "target", result.Target)
			return e.finish(ctx, req, result, ReasonAuthWall), nil
		}
		log.Error("navigation failed", "target", result.Target, "error", err)
		return e.finish(ctx, req, result, ReasonNavigationFailed), nil
	}

	// Reading time before the first interaction.
	e.pacer.sleep(e.cfg.ThinkPauseMin, e.cfg.ThinkPauseMax)

	reason, mutated := e.perform(ctx, surface, adapter, req, result)
	if reason != "" {
		log.Warn("action failed", "reason", reason)
		return e.finish(ctx, req, result, reason), nil
	}

	if mutated {
		e.gate.Record(req.Platform, req.Action)
	}
	result.Quota = e.gate.Check(req.Platform, req.Action)
	result.Success = true
	log.Info("action completed",
		"target", result.Target,
		"mutated", mutated,
		"remaining", result.Quota.Remaining)
	return e.finish(ctx, req, result, ""), nil
}

// perform runs the interaction-specific step sequence. It returns a failure
// reason, or "" with mutated=false when the target was already in the desired
// state.
func (e *Executor) perform(ctx context.Context, s Surface, a *platform.Adapter, req models.ActionRequest, result *models.ActionResult) (reason string, mutated bool) {
	e.captureContext(ctx, s, a, result)

	switch req.Action {
	case models.ActionLike:
		return e.doLike(ctx, s, a, result)
	case models.ActionComment, models.ActionReply:
		return e.doComment(ctx, s, a, req.Text)
	case models.ActionFollow, models.ActionConnect:
		return e.doFollow(ctx, s, a, result)
	case models.ActionUnfollow:
		return e.doUnfollow(ctx, s, a, result)
	case models.ActionMessage, models.ActionInMail:
		return e.doMessage(ctx, s, a, req.Text)
	case models.ActionProfileView, models.ActionStoryView:
		// The page visit is the whole action.
		return "", true
	default:
		return ReasonUnsupported, false
	}
}

func (e *Executor) doLike(ctx context.Context, s Surface, a *platform.Adapter, result *models.ActionResult) (string, bool) {
	likedSel, _ := a.Locator(platform.LocatorLikedState)
	if likedSel != "" && s.Exists(likedSel) {
		result.Details["already"] = "true"
		return "", false
	}

	sel, err := a.Locator(platform.LocatorLikeButton)
	if err != nil {
		return ReasonElementNotFound, false
	}
	elem, err := s.Element(ctx, sel)
	if err != nil {
		return ReasonElementNotFound, false
	}
	if err := e.clickHuman(elem); err != nil {
		return ReasonClickFailed, false
	}

	if likedSel != "" && !e.verifyAppears(s, likedSel) {
		return ReasonVerificationFailed, false
	}
	return "", true
}

func (e *Executor) doComment(ctx context.Context, s Surface, a *platform.Adapter, text string) (string, bool) {
	inputSel, err := a.Locator(platform.LocatorCommentInput)
	if err != nil {
		return ReasonElementNotFound, false
	}
	field, err := s.Element(ctx, inputSel)
	if err != nil {
		return ReasonElementNotFound, false
	}
	if err := e.clickHuman(field); err != nil {
		return ReasonClickFailed, false
	}

	if err := e.typeHuman(field, sanitizeText(text), a.ClearComposer, false); err != nil {
		return ReasonTypeFailed, false
	}

	submitSel, err := a.Locator(platform.LocatorCommentSubmit)
	if err != nil {
		return ReasonElementNotFound, false
	}
	submit, err := s.Element(ctx, submitSel)
	if err != nil {
		return ReasonElementNotFound, false
	}
	if err := e.clickHuman(submit); err != nil {
		return ReasonClickFailed, false
	}

	if !e.verifyCleared(field) {
		return ReasonVerificationFailed, false
	}
	return "", true
}

func (e *Executor) doFollow(ctx context.Context, s Surface, a *platform.Adapter, result *models.ActionResult) (string, bool) {
	followingSel, _ := a.Locator(platform.LocatorFollowingState)
	if followingSel != "" && s.Exists(followingSel) {
		result.Details["already"] = "true"
		return "", false
	}

	sel, err := a.Locator(platform.LocatorFollowButton)
	if err != nil {
		return ReasonElementNotFound, false
	}
	elem, err := s.Element(ctx, sel)
	if err != nil {
		return ReasonElementNotFound, false
	}
	if err := e.clickHuman(elem); err != nil {
		return ReasonClickFailed, false
	}

	if a.ConfirmFollow && a.ConfirmSelector != "" {
		e.pacer.sleep(e.cfg.PostLoadPauseMin, e.cfg.PostLoadPauseMax)
		if s.Exists(a.ConfirmSelector) {
			confirm, err := s.Element(ctx, a.ConfirmSelector)
			if err == nil {
				if err := e.clickHuman(confirm); err != nil {
					return ReasonClickFailed, false
				}
			}
		}
	}

	if followingSel != "" && !e.verifyAppears(s, followingSel) {
		return ReasonVerificationFailed, false
	}
	return "", true
}

func (e *Executor) doUnfollow(ctx context.Context, s Surface, a *platform.Adapter, result *models.ActionResult) (string, bool) {
	followingSel, err := a.Locator(platform.LocatorFollowingState)
	if err != nil {
		return ReasonElementNotFound, false
	}
	if !s.Exists(followingSel) {
		result.Details["already"] = "true"
		return "", false
	}

	elem, err := s.Element(ctx, followingSel)
	if err != nil {
		return ReasonElementNotFound, false
	}
	if err := e.clickHuman(elem); err != nil {
		return ReasonClickFailed, false
	}

	if a.ConfirmSelector != "" {
		e.pacer.sleep(e.cfg.PostLoadPauseMin, e.cfg.PostLoadPauseMax)
		if s.Exists(a.ConfirmSelector) {
			confirm, err := s.Element(ctx, a.ConfirmSelector)
			if err == nil {
				if err := e.clickHuman(confirm); err != nil {
					return ReasonClickFailed, false
				}
			}
		}
	}

	followSel, _ := a.Locator(platform.LocatorFollowButton)
	if followSel != "" && !e.verifyAppears(s, followSel) {
		return ReasonVerificationFailed, false
	}
	return "", true
}

func (e *Executor) doMessage(ctx context.Context, s Surface, a *platform.Adapter, text string) (string, bool) {
	inputSel, err := a.Locator(platform.LocatorMessageInput)
	if err != nil {
		return ReasonElementNotFound, false
	}
	field, err := s.Element(ctx, inputSel)
	if err != nil {
		return ReasonElementNotFound, false
	}
	if err := e.clickHuman(field); err != nil {
		return ReasonClickFailed, false
	}

	if err := e.typeHuman(field, sanitizeText(text), a.ClearComposer, a.EnterSends); err != nil {
		return ReasonTypeFailed, false
	}

	if !a.EnterSends {
		sendSel, err := a.Locator(platform.LocatorMessageSend)
		if err != nil {
			return ReasonElementNotFound, false
		}
		send, err := s.Element(ctx, sendSel)
		if err != nil {
			return ReasonElementNotFound, false
		}
		if err := e.clickHuman(send); err != nil {
			return ReasonClickFailed, false
		}
	}

	if !e.verifyCleared(field) {
		return ReasonVerificationFailed, false
	}
	return "", true
}

// clickHuman is the three-tier click ladder. Each tier runs only after the
// previous one failed; success at any tier counts the same.
func (e *Executor) clickHuman(elem Element) error {
	e.pacer.sleep(e.cfg.KeyDelayMin, e.cfg.KeyDelayMax)

	err := elem.Click()
	if err == nil {
		return nil
	}
	e.logger.Debug("standard click failed, trying forced click", "error", err)

	if ferr := elem.ForceClick(); ferr == nil {
		return nil
	}

	if derr := elem.DispatchClick(); derr == nil {
		return nil
	}
	return fmt.Errorf("all click strategies failed: %w", err)
}

// typeHuman enters text character by character with randomized per-key
// delays, framed by fixed focus and review pauses. clearFirst empties the
// field before typing; enterSubmit presses Enter after the review pause for
// composers that send on Enter.
func (e *Executor) typeHuman(elem Element, text string, clearFirst, enterSubmit bool) error {
	time.Sleep(fieldFocusPause)

	if clearFirst {
		if err := elem.Clear(); err != nil {
			return err
		}
	}

	for _, r := range text {
		if err := elem.Input(string(r)); err != nil {
			return err
		}
		e.pacer.sleep(e.cfg.KeyDelayMin, e.cfg.KeyDelayMax)
	}

	time.Sleep(reviewPause)

	if enterSubmit {
		return elem.PressEnter()
	}
	return nil
}

// verifyAppears polls for the selector after a mutation. The UI updates
// asynchronously, so a handful of short probes beats one long wait.
func (e *Executor) verifyAppears(s Surface, selector string) bool {
	for i := 0; i < 5; i++ {
		if s.Exists(selector) {
			return true
		}
		time.Sleep(400 * time.Millisecond)
	}
	return false
}

// verifyCleared checks that an input field emptied after submission.
func (e *Executor) verifyCleared(field Element) bool {
	for i := 0; i < 5; i++ {
		text, err := field.Text()
		if err != nil || text == "" {
			return true
		}
		time.Sleep(400 * time.Millisecond)
	}
	return false
}

// captureContext grabs author and text details from the page when the
// adapter knows where they live. Best effort only.
func (e *Executor) captureContext(ctx context.Context, s Surface, a *platform.Adapter, result *models.ActionResult) {
	if sel, err := a.Locator(platform.LocatorPostAuthor); err == nil && s.Exists(sel) {
		if elem, err := s.Element(ctx, sel); err == nil {
			if text, err := elem.Text(); err == nil && text != "" {
				result.Details["author"] = models.TruncateTarget(text)
			}
		}
	}
}

// finish stamps the result and hands it to the notification dispatcher.
func (e *Executor) finish(ctx context.Context, req models.ActionRequest, result *models.ActionResult, reason string) *models.ActionResult {
	result.Error = reason
	result.Success = reason == ""
	result.Duration = time.Since(result.StartedAt)
	if len(result.Details) == 0 {
		result.Details = nil
	}

	if e.dispatcher != nil && !req.NoNotify {
		e.dispatcher.Dispatch(notifier.Event{
			Event:     "action_result",
			Platform:  result.Platform,
			Action:    string(result.Action),
			Success:   result.Success,
			Target:    result.Target,
			Error:     result.Error,
			Details:   result.Details,
			Timestamp: time.Now().UTC(),
		})
	}
	return result
}

func needsText(action models.ActionType) bool {
	switch action {
	case models.ActionComment, models.ActionReply, models.ActionMessage, models.ActionInMail:
		return true
	}
	return false
}
