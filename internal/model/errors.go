package model

import "errors"

// Pipeline error taxonomy. Every failure mode is one-shot with graceful
// degradation; the only bounded retry anywhere is the single radius
// expansion on zero results.
var (
	// ErrIntentParse: the language-understanding response was not an object
	// with exactly the three expected string keys. Recovered locally by
	// falling back to an all-empty Intent.
	ErrIntentParse = errors.New("intent response did not match the expected three-key shape")

	// ErrLocationUnresolved: no candidate area could be derived from the
	// location phrase. Recovered by querying without a spatial filter when
	// other filters exist.
	ErrLocationUnresolved = errors.New("location phrase resolved to no candidate areas")

	// ErrStoreUnavailable: the graph store could not be reached (timeouts
	// are treated identically). Fatal for the turn; memory stays untouched.
	ErrStoreUnavailable = errors.New("graph store unavailable")

	// ErrStoreSyntax: the store rejected the generated query. Fatal for the
	// turn; memory stays untouched.
	ErrStoreSyntax = errors.New("graph store rejected the query")

	// ErrSummarization: the summarization service failed. Recovered by
	// falling back to a plain listing of the short view.
	ErrSummarization = errors.New("summarization failed")
)

// User-facing fallback messages. The chat surface prints these verbatim;
// they deliberately avoid technical vocabulary.
const (
	MsgRephrase           = "Sorry, I couldn't understand that. Could you rephrase your question?"
	MsgLocationUnresolved = "I couldn't determine the location you mentioned. Could you name a landmark, address, or zip code?"
	MsgNoMatches          = "No matches found. Try broadening your request."
	MsgTurnFailed         = "Sorry, something went wrong while searching. Please try again in a moment."
)
