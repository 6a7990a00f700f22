package memory

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"orgfinder/internal/model"
)

// Mode is the turn handling the manager decides on.
type Mode string

const (
	// ModeReuse answers from the remembered result set; only the time
	// filter is recomputed for this turn.
	ModeReuse Mode = "reuse"
	// ModeIndependent runs a fresh search that will replace memory.
	ModeIndependent Mode = "independent"
)

// Decision is the outcome of inspecting this turn's intent against the
// remembered state.
type Decision struct {
	Mode Mode

	// InheritSpatial marks an independent search that carries the
	// remembered spatial context because the turn named a new service but
	// no new place.
	InheritSpatial bool
}

// Pronouns that refer back to remembered organizations.
var referencePronouns = map[string]bool{
	"they": true, "them": true, "those": true, "these": true,
	"it": true, "that": true, "this": true, "there": true,
	"one": true, "ones": true, "place": true, "places": true,
}

var wordRe = regexp.MustCompile(`[a-zA-Z']+`)

// Manager applies the follow-up rules: when to answer from memory, when to
// search fresh, and what the fresh search inherits.
type Manager struct {
	store Store
	log   zerolog.Logger
}

func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{store: store, log: log}
}

// Load fetches the session's state, creating an empty one for new sessions.
func (m *Manager) Load(ctx context.Context, sessionID string) (*model.ConversationState, error) {
	return m.store.Load(ctx, sessionID)
}

// Decide picks the turn mode. Results are reused only when the state is
// active, the turn names no new location, and its service fragment is empty
// or purely referential ("are they open Sunday?"). A turn naming a new
// location always searches independently. A new service with no new
// location searches independently but inherits the remembered spatial
// context.
func (m *Manager) Decide(state *model.ConversationState, intent model.Intent) Decision {
	active := state.Phase == model.PhaseActive && state.Valid && len(state.LastOrganizations) > 0

	if strings.TrimSpace(intent.LocationKeywords) != "" {
		return Decision{Mode: ModeIndependent}
	}
	if active && isReferential(intent.ServiceKeywords) {
		return Decision{Mode: ModeReuse}
	}
	if active && state.LastSpatial.Resolved() {
		return Decision{Mode: ModeIndependent, InheritSpatial: true}
	}
	return Decision{Mode: ModeIndependent}
}

// isReferential reports whether the service fragment carries no new service
// signal: empty, or made only of back-reference pronouns.
func isReferential(fragment string) bool {
	words := wordRe.FindAllString(strings.ToLower(fragment), -1)
	for _, w := range words {
		if !referencePronouns[w] {
			return false
		}
	}
	return true
}

// RewritePronouns substitutes back-reference pronouns in the user's text
// with the remembered organization names, so the summarizer sees "Is the
// Free Library open Sunday?" instead of "Are they open Sunday?".
func RewritePronouns(text string, state *model.ConversationState) string {
	names := state.OrganizationNames()
	if len(names) == 0 {
		return text
	}
	replacement := strings.Join(names, " and ")
	return wordRe.ReplaceAllStringFunc(text, func(w string) string {
		switch strings.ToLower(w) {
		case "they", "them", "those", "these":
			return replacement
		default:
			return w
		}
	})
}

// CommitSuccess records a completed turn that produced results, moving the
// session to the active phase. Called only after the whole turn succeeded.
func (m *Manager) CommitSuccess(ctx context.Context, state *model.ConversationState,
	orgs []model.Organization, spatial *model.SpatialContext, service *model.ServiceFilter) error {

	state.Phase = model.PhaseActive
	state.Valid = true
	state.LastOrganizations = orgs
	state.LastSpatial = spatial
	state.LastService = service
	state.TurnIndex++
	m.log.Debug().Str("session_id", state.SessionID).Int("organizations", len(orgs)).
		Msg("conversation state committed")
	return m.store.Save(ctx, state)
}

// CommitEmpty records an independent search that found nothing even after
// expansion. The remembered results are no longer answerable-from, so the
// state is invalidated rather than left stale.
func (m *Manager) CommitEmpty(ctx context.Context, state *model.ConversationState) error {
	state.Phase = model.PhaseInvalidated
	state.Valid = false
	state.LastOrganizations = nil
	state.LastSpatial = nil
	state.LastService = nil
	state.TurnIndex++
	m.log.Debug().Str("session_id", state.SessionID).Msg("conversation state invalidated")
	return m.store.Save(ctx, state)
}

// CommitReuse bumps the turn counter after answering from memory; the
// remembered snapshot itself is untouched.
func (m *Manager) CommitReuse(ctx context.Context, state *model.ConversationState) error {
	state.TurnIndex++
	return m.store.Save(ctx, state)
}
