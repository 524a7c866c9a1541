// Package platform holds the per-platform configuration the executor is
// generic over: base URLs, UI element locators and the critical auth cookie
// used by the session save guard. It is data, not code; platform quirks live
// here so the executor never hardcodes a platform's markup.
package platform

import (
	"encoding/json"
	"fmt"
	"os"
)

// Locator keys the executor understands.
const (
	LocatorLikeButton     = "like_button"
	LocatorLikedState     = "liked_state"
	LocatorCommentInput   = "comment_input"
	LocatorCommentSubmit  = "comment_submit"
	LocatorFollowButton   = "follow_button"
	LocatorFollowingState = "following_state"
	LocatorMessageInput   = "message_input"
	LocatorMessageSend    = "message_send"
	LocatorLoginMarker    = "login_marker"
	LocatorPostAuthor     = "post_author"
	LocatorPostText       = "post_text"
)

// Adapter is the configuration value for one platform.
type Adapter struct {
	Name       string            `json:"name"`
	BaseURL    string            `json:"baseUrl"`
	AuthCookie string            `json:"authCookie"` // cookie that must be present for a session to count as authenticated
	Locators   map[string]string `json:"locators"`
	// ConfirmFollow marks platforms that pop a confirmation dialog after the
	// follow/connect click; the executor then performs a second confirm click.
	ConfirmFollow   bool   `json:"confirmFollow,omitempty"`
	ConfirmSelector string `json:"confirmSelector,omitempty"`
	// EnterSends marks message composers that submit on Enter; the executor
	// presses Enter after typing instead of clicking the send button.
	EnterSends bool `json:"enterSends,omitempty"`
	// ClearComposer clears drafted text left in a composer before typing.
	ClearComposer bool `json:"clearComposer,omitempty"`
}

// Locator returns the selector registered under key, or an error when the
// adapter has no entry for it.
func (a *Adapter) Locator(key string) (string, error) {
	sel, ok := a.Locators[key]
	if !ok || sel == "" {
		return "", fmt.Errorf("platform %s: no locator %q", a.Name, key)
	}
	return sel, nil
}

// Registry resolves platform names to adapters.
type Registry struct {
	adapters map[string]*Adapter
}

// NewRegistry creates a registry preloaded with the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]*Adapter)}
	for _, a := range builtins() {
		r.adapters[a.Name] = a
	}
	return r
}

// LoadOverrides overlays adapters from a JSON file on top of the built-ins.
// The file holds an array of Adapter values; an entry with a known name
// replaces the built-in wholesale (selectors drift, operators patch them
// without a rebuild).
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read platform config: %w", err)
	}

	var overrides []*Adapter
	if err := json.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse platform config: %w", err)
	}

	for _, a := range overrides {
		if a.Name == "" {
			return fmt.Errorf("platform config entry missing name")
		}
		r.adapters[a.Name] = a
	}
	return nil
}

// Get returns the adapter for a platform.
func (r *Registry) Get(name string) (*Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", name)
	}
	return a, nil
}

// Names returns all registered platform names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// builtins returns the default adapters. Selectors here are best-effort
// snapshots of each platform's markup; production deployments override them
// via PLATFORM_CONFIG as the sites change.
func builtins() []*Adapter {
	return []*Adapter{
		{
			Name:       "instagram",
			BaseURL:    "https://www.instagram.com",
			AuthCookie: "sessionid",
			Locators: map[string]string{
				LocatorLikeButton:     `svg[aria-label="Like"]`,
				LocatorLikedState:     `svg[aria-label="Unlike"]`,
				LocatorCommentInput:   `textarea[aria-label="Add a comment…"]`,
				LocatorCommentSubmit:  `div[role="button"]:not([aria-disabled])`,
				LocatorFollowButton:   `button:not([aria-disabled]) div:first-child`,
				LocatorFollowingState: `button svg[aria-label="Following"]`,
				LocatorMessageInput:   `div[aria-label="Message"][contenteditable="true"]`,
				LocatorMessageSend:    `div[role="button"][tabindex="0"]`,
				LocatorLoginMarker:    `input[name="username"]`,
				LocatorPostAuthor:     `header a[role="link"]`,
				LocatorPostText:       `h1`,
			},
		},
		{
			Name:       "x",
			BaseURL:    "https://x.com",
			AuthCookie: "auth_token",
			Locators: map[string]string{
				LocatorLikeButton:     `button[data-testid="like"]`,
				LocatorLikedState:     `button[data-testid="unlike"]`,
				LocatorCommentInput:   `div[data-testid="tweetTextarea_0"]`,
				LocatorCommentSubmit:  `button[data-testid="tweetButtonInline"]`,
				LocatorFollowButton:   `button[data-testid$="-follow"]`,
				LocatorFollowingState: `button[data-testid$="-unfollow"]`,
				LocatorMessageInput:   `div[data-testid="dmComposerTextInput"]`,
				LocatorMessageSend:    `button[data-testid="dmComposerSendButton"]`,
				LocatorLoginMarker:    `input[autocomplete="username"]`,
				LocatorPostAuthor:     `div[data-testid="User-Name"] a`,
				LocatorPostText:       `div[data-testid="tweetText"]`,
			},
			// The DM composer sends on Enter.
			EnterSends: true,
		},
		{
			Name:       "linkedin",
			BaseURL:    "https://www.linkedin.com",
			AuthCookie: "li_at",
			Locators: map[string]string{
				LocatorLikeButton:     `button[aria-label*="React Like"]`,
				LocatorLikedState:     `button[aria-pressed="true"][aria-label*="React Like"]`,
				LocatorCommentInput:   `div.ql-editor[contenteditable="true"]`,
				LocatorCommentSubmit:  `button.comments-comment-box__submit-button`,
				LocatorFollowButton:   `button[aria-label^="Invite"], button[aria-label^="Follow"]`,
				LocatorFollowingState: `button[aria-label^="Pending"], button[aria-label^="Following"]`,
				LocatorMessageInput:   `div.msg-form__contenteditable`,
				LocatorMessageSend:    `button.msg-form__send-button`,
				LocatorLoginMarker:    `input#session_key, input#username`,
				LocatorPostAuthor:     `span.update-components-actor__name`,
				LocatorPostText:       `div.update-components-text`,
			},
			// LinkedIn pops a "Add a note?" dialog after Connect.
			ConfirmFollow:   true,
			ConfirmSelector: `button[aria-label="Send without a note"]`,
			// The message box keeps unsent drafts across visits.
			ClearComposer: true,
		},
	}
}
