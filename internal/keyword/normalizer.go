// Package keyword turns the free-text intent fragments into normalized
// filter tokens: canonical spellings via the synonym table, a free/paid
// split for service type, and day/hour tokens for operating hours.
package keyword

import (
	"regexp"
	"strings"

	"orgfinder/internal/model"
)

// phraseGlue joins the words of a protected multi-word phrase while the
// fragment is being tokenized, so "mental health" survives as one token.
const phraseGlue = "\x1f"

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9\-'\x1f:]+`)

// Normalizer canonicalizes keyword fragments against the synonym table.
// Normalization is idempotent: canonical output fed back in comes out
// unchanged.
type Normalizer struct {
	synonyms map[string]string
	// phrases are the multi-word synonym keys and canonical values, longest
	// first, protected before token splitting.
	phrases []string
}

// NewNormalizer builds a normalizer from the synonym table.
func NewNormalizer(synonyms map[string]string) *Normalizer {
	n := &Normalizer{synonyms: make(map[string]string, len(synonyms))}
	seen := make(map[string]bool)
	addPhrase := func(s string) {
		if strings.Contains(s, " ") && !seen[s] {
			seen[s] = true
			n.phrases = append(n.phrases, s)
		}
	}
	for variant, canonical := range synonyms {
		variant = strings.ToLower(strings.TrimSpace(variant))
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		if variant == "" || canonical == "" {
			continue
		}
		n.synonyms[variant] = canonical
		addPhrase(variant)
		addPhrase(canonical)
	}
	// Longest phrase wins when one contains another.
	for i := 0; i < len(n.phrases); i++ {
		for j := i + 1; j < len(n.phrases); j++ {
			if len(n.phrases[j]) > len(n.phrases[i]) {
				n.phrases[i], n.phrases[j] = n.phrases[j], n.phrases[i]
			}
		}
	}
	return n
}

// Normalize lower-cases the fragment, splits it into tokens keeping known
// multi-word phrases and hyphenated words whole, maps each token through the
// synonym table, and drops duplicates while preserving first-seen order.
func (n *Normalizer) Normalize(fragment string) []string {
	lowered := strings.ToLower(fragment)
	for _, phrase := range n.phrases {
		if strings.Contains(lowered, phrase) {
			lowered = strings.ReplaceAll(lowered, phrase, strings.ReplaceAll(phrase, " ", phraseGlue))
		}
	}

	var out []string
	seen := make(map[string]bool)
	for _, raw := range tokenSplitRe.Split(lowered, -1) {
		token := strings.Trim(strings.ReplaceAll(raw, phraseGlue, " "), "-'")
		if token == "" {
			continue
		}
		if canonical, ok := n.synonyms[token]; ok {
			token = canonical
		}
		if !seen[token] {
			seen[token] = true
			out = append(out, token)
		}
	}
	return out
}

// stopwords that carry no filtering signal inside a service fragment.
var serviceStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "any": true, "some": true,
	"service": true, "services": true, "for": true, "with": true,
	"place": true, "places": true, "spot": true, "spots": true,
	"get": true, "find": true, "need": true, "want": true,
	"offer": true, "offers": true, "offering": true, "that": true,
	"and": true, "or": true, "of": true, "to": true, "in": true,
}

// ParseServiceFilter normalizes a service fragment and splits the payment
// attributes ("free", "paid") off into type tokens. Everything else filters
// service names.
func (n *Normalizer) ParseServiceFilter(fragment string) model.ServiceFilter {
	var f model.ServiceFilter
	for _, token := range n.Normalize(fragment) {
		switch token {
		case "free", "no-cost", "complimentary":
			f.TypeTokens = append(f.TypeTokens, "Free")
		case "paid", "fee", "fees":
			f.TypeTokens = append(f.TypeTokens, "Paid")
		default:
			if !serviceStopwords[token] {
				f.NameTokens = append(f.NameTokens, token)
			}
		}
	}
	return f
}
