package model

// Intent is the fixed three-field structured output of the language-
// understanding service. Fields are free-text fragments and may be empty;
// an Intent is never mutated after extraction.
type Intent struct {
	TimeKeywords     string `json:"time_keywords"`
	ServiceKeywords  string `json:"service_keywords"`
	LocationKeywords string `json:"location_keywords"`
}

// Empty reports whether the intent carries no usable signal at all.
func (i Intent) Empty() bool {
	return i.TimeKeywords == "" && i.ServiceKeywords == "" && i.LocationKeywords == ""
}

// SpatialContext is the resolved spatial state of a search. CandidateAreas
// is ordered (nearest/primary first) and is non-empty whenever RadiusLevel
// reflects a successful resolution. Expansion strictly widens the set.
type SpatialContext struct {
	LocationPhrase string   `json:"location_phrase"`
	CandidateAreas []string `json:"candidate_areas"`
	RadiusLevel    int      `json:"radius_level"`

	// Origin is set only when the phrase was geocoded; it lets the tier
	// builder attach approximate distances.
	Origin *Coordinates `json:"origin,omitempty"`
}

// Resolved reports whether the context holds at least one candidate area.
func (s *SpatialContext) Resolved() bool {
	return s != nil && len(s.CandidateAreas) > 0
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// ServiceFilter holds normalized service tokens. "free"/"paid" attributes
// are split off into TypeTokens; everything else filters service names.
// Recomputed each turn, never stored beyond the session state snapshot.
type ServiceFilter struct {
	NameTokens []string `json:"name_tokens"`
	TypeTokens []string `json:"type_tokens"`
}

// Empty reports whether the filter would contribute no clause.
func (f ServiceFilter) Empty() bool {
	return len(f.NameTokens) == 0 && len(f.TypeTokens) == 0
}

// TimeFilter holds normalized day and hour tokens derived from the intent's
// time keywords.
type TimeFilter struct {
	DayTokens  []string `json:"day_tokens"`
	HourTokens []string `json:"hour_tokens"`
}

// Empty reports whether the filter would contribute no clause.
func (f TimeFilter) Empty() bool {
	return len(f.DayTokens) == 0 && len(f.HourTokens) == 0
}

// Organization is one matched record from the graph store. The store always
// returns the complete owned collections regardless of which filter matched;
// filters narrow which organizations qualify, never which attributes show.
type Organization struct {
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Status    string     `json:"status"`
	Locations []Location `json:"locations"`
	Services  []Service  `json:"services"`
	Hours     []DayHours `json:"hours"`
}

// Location is a physical site of an organization.
type Location struct {
	StreetAddress string  `json:"streetAddress"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	ZipCode       string  `json:"zipCode"`
	Latitude      float64 `json:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty"`
}

// Service is a named offering with a payment type ("Free" or "Paid").
type Service struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DayHours is one operating-hours entry.
type DayHours struct {
	Day   string `json:"day"`
	Hours string `json:"hours"`
}

// MemoryPhase is the conversation-memory state machine phase.
type MemoryPhase string

const (
	PhaseEmpty       MemoryPhase = "empty"
	PhaseActive      MemoryPhase = "active"
	PhaseInvalidated MemoryPhase = "invalidated"
)

// ConversationState is the per-session memory snapshot. It is owned by a
// single session and only ever mutated by the turn currently processing
// that session; updates land only after a turn completes successfully.
type ConversationState struct {
	SessionID         string          `json:"session_id"`
	Phase             MemoryPhase     `json:"phase"`
	LastOrganizations []Organization  `json:"last_organizations"`
	LastSpatial       *SpatialContext `json:"last_spatial,omitempty"`
	LastService       *ServiceFilter  `json:"last_service,omitempty"`
	TurnIndex         int             `json:"turn_index"`
	Valid             bool            `json:"valid"`
}

// NewConversationState returns the EMPTY state for a fresh session.
func NewConversationState(sessionID string) *ConversationState {
	return &ConversationState{SessionID: sessionID, Phase: PhaseEmpty}
}

// OrganizationNames lists the remembered organization names in result order.
func (s *ConversationState) OrganizationNames() []string {
	names := make([]string, 0, len(s.LastOrganizations))
	for _, org := range s.LastOrganizations {
		names = append(names, org.Name)
	}
	return names
}

// GeneratedQuery is the assembled store query: a text template with
// parameter placeholders plus the literal values, never interpolated.
// Discarded after execution.
type GeneratedQuery struct {
	Text    string         `json:"text"`
	Params  map[string]any `json:"params"`
	Clauses []string       `json:"clauses"`
}

// HasClause reports whether a clause of the given kind was emitted.
func (q GeneratedQuery) HasClause(kind string) bool {
	for _, c := range q.Clauses {
		if c == kind {
			return true
		}
	}
	return false
}

// TokenUsage captures language-model token counts when the provider
// reports them.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across calls within a turn.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
