package quota

import (
	"github.com/engagekit/engagekit/internal/models"
)

// Gate is the allow/record facade the executor consults before and after
// every externally visible action. It folds concrete action kinds into their
// quota families.
type Gate struct {
	store *Store
}

// NewGate creates a gate over a store.
func NewGate(store *Store) *Gate {
	return &Gate{store: store}
}

// Check reports whether one more action of this kind is allowed right now.
func (g *Gate) Check(platform string, action models.ActionType) models.QuotaStatus {
	return g.store.Check(platform, action.FamilyOf())
}

// Record charges one action against the window. Call only after the action's
// interaction sequence has verifiably succeeded.
func (g *Gate) Record(platform string, action models.ActionType) {
	g.store.Record(platform, action.FamilyOf())
}
