// Package models defines the shared types flowing between the executor,
// the quota gate and the HTTP surface.
package models

import "time"

// ActionType identifies a concrete action kind.
type ActionType string

// Concrete action kinds.
const (
	ActionLike        ActionType = "like"
	ActionRepost      ActionType = "repost"
	ActionProfileView ActionType = "profile_view"
	ActionStoryView   ActionType = "story_view"
	ActionComment     ActionType = "comment"
	ActionReply       ActionType = "reply"
	ActionFollow      ActionType = "follow"
	ActionUnfollow    ActionType = "unfollow"
	ActionConnect     ActionType = "connect"
	ActionMessage     ActionType = "message"
	ActionInMail      ActionType = "inmail"
)

// Family is a quota bucket grouping several action kinds under one ceiling.
type Family string

// Quota families.
const (
	FamilyLike    Family = "like"
	FamilyComment Family = "comment"
	FamilyFollow  Family = "follow"
	FamilyMessage Family = "message"
)

// familyOf maps every action kind onto its quota family. Kinds that share a
// budget deliberately collapse into one family so operators configure four
// ceilings, not eleven.
var familyOf = map[ActionType]Family{
	ActionLike:        FamilyLike,
	ActionRepost:      FamilyLike,
	ActionProfileView: FamilyLike,
	ActionStoryView:   FamilyLike,
	ActionComment:     FamilyComment,
	ActionReply:       FamilyComment,
	ActionFollow:      FamilyFollow,
	ActionUnfollow:    FamilyFollow,
	ActionConnect:     FamilyFollow,
	ActionMessage:     FamilyMessage,
	ActionInMail:      FamilyMessage,
}

// FamilyOf returns the quota family for an action kind. Unknown kinds map to
// a family of the same name so they still get the conservative default ceiling.
func (a ActionType) FamilyOf() Family {
	if f, ok := familyOf[a]; ok {
		return f
	}
	return Family(a)
}

// Valid reports whether the action kind is one the executor understands.
func (a ActionType) Valid() bool {
	_, ok := familyOf[a]
	return ok
}

// ActionRequest describes one action to perform.
type ActionRequest struct {
	Platform string     `json:"platform"`           // platform identifier, e.g. "instagram"
	Action   ActionType `json:"action"`             // action kind
	Target   string     `json:"target"`             // post URL or username
	Text     string     `json:"text,omitempty"`     // comment/message body (opaque to the core)
	NoNotify bool       `json:"noNotify,omitempty"` // suppress the automatic notification for this action
}

// QuotaStatus is the window snapshot observed at check time.
type QuotaStatus struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Total     int       `json:"total"`
	ResetAt   time.Time `json:"resetAt"`
}

// ActionResult is the uniform outcome record of one action invocation. It is
// returned to the caller, appended to the history log and fanned out to the
// notifier.
type ActionResult struct {
	ID        string            `json:"id"`
	Success   bool              `json:"success"`
	Platform  string            `json:"platform"`
	Action    ActionType        `json:"action"`
	Target    string            `json:"target"`
	Error     string            `json:"error,omitempty"`
	Quota     QuotaStatus       `json:"quota"`
	Details   map[string]string `json:"details,omitempty"`
	StartedAt time.Time         `json:"startedAt"`
	Duration  time.Duration     `json:"duration"`
}

// maxTargetRunes bounds the target field for long free-text targets.
const maxTargetRunes = 80

// TruncateTarget shortens long free-text targets for result records.
func TruncateTarget(target string) string {
	runes := []rune(target)
	if len(runes) <= maxTargetRunes {
		return target
	}
	return string(runes[:maxTargetRunes-1]) + "…"
}
