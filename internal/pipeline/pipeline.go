// Package pipeline wires one user turn end to end: intent extraction,
// follow-up decision, spatial resolution, query execution with its single
// widening retry, response assembly, and the memory commit. Session state
// is only written after the turn has fully succeeded, so a cancelled or
// failed turn leaves memory exactly as it found it.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"orgfinder/internal/config"
	"orgfinder/internal/keyword"
	"orgfinder/internal/memory"
	"orgfinder/internal/model"
	"orgfinder/internal/query"
	"orgfinder/internal/response"
	"orgfinder/internal/sessionlog"
)

// Turn outcomes, recorded per turn in the session log.
const (
	OutcomeAnswered           = "answered"
	OutcomeReused             = "reused"
	OutcomeNoMatches          = "no_matches"
	OutcomeRephrase           = "rephrase"
	OutcomeLocationUnresolved = "location_unresolved"
	OutcomeFailed             = "failed"
)

// IntentExtractor produces the structured intent for a user message.
type IntentExtractor interface {
	Extract(ctx context.Context, text string) (model.Intent, model.TokenUsage, error)
}

// LocationResolver maps a location phrase to candidate areas.
type LocationResolver interface {
	Resolve(ctx context.Context, phrase string) (*model.SpatialContext, error)
}

// Searcher runs the store query, widening once on zero results.
type Searcher interface {
	Search(ctx context.Context, spatial *model.SpatialContext,
		service model.ServiceFilter, tf model.TimeFilter) (query.SearchResult, error)
}

// Answerer summarizes the tiered views into a conversational answer.
type Answerer interface {
	Summarize(ctx context.Context, question string, tiers response.Tiers) (string, model.TokenUsage, error)
}

// Result is what one processed turn hands back to the chat surface.
type Result struct {
	Answer        string
	Outcome       string
	Organizations []model.Organization
	Expanded      bool
	Usage         model.TokenUsage
}

// Pipeline processes turns for any number of sessions; all shared pieces
// are read-only or internally synchronized.
type Pipeline struct {
	extractor  IntentExtractor
	normalizer *keyword.Normalizer
	resolver   LocationResolver
	manager    *memory.Manager
	searcher   Searcher
	answerer   Answerer
	tables     *config.Tables
	recorder   *sessionlog.Recorder
	log        zerolog.Logger
}

func New(extractor IntentExtractor, normalizer *keyword.Normalizer, resolver LocationResolver,
	manager *memory.Manager, searcher Searcher, answerer Answerer,
	tables *config.Tables, recorder *sessionlog.Recorder, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		normalizer: normalizer,
		resolver:   resolver,
		manager:    manager,
		searcher:   searcher,
		answerer:   answerer,
		tables:     tables,
		recorder:   recorder,
		log:        log,
	}
}

// ProcessTurn handles one user message for one session.
func (p *Pipeline) ProcessTurn(ctx context.Context, sessionID, text string) (Result, error) {
	stages := map[string]int64{}
	record := sessionlog.TurnRecord{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		UserText:  text,
	}
	defer func() {
		record.StageMillis = stages
		if p.recorder != nil {
			p.recorder.Record(record)
		}
	}()

	state, err := p.manager.Load(ctx, sessionID)
	if err != nil {
		p.log.Error().Err(err).Str("session_id", sessionID).Msg("session state load failed")
		return p.fail(&record, err)
	}
	record.TurnIndex = state.TurnIndex

	start := time.Now()
	intent, usage, err := p.extractor.Extract(ctx, text)
	stages["extract"] = time.Since(start).Milliseconds()
	record.TokenUsage.Add(usage)
	if err != nil && !errors.Is(err, model.ErrIntentParse) {
		p.log.Error().Err(err).Msg("intent extraction failed")
		return p.fail(&record, err)
	}
	record.Intent = intent

	decision := p.manager.Decide(state, intent)

	// An empty intent is only surfaced as "please rephrase" when memory
	// cannot answer either; after a successful search it reads as a bare
	// follow-up and reuses the remembered results.
	if intent.Empty() && decision.Mode != memory.ModeReuse {
		record.Outcome = OutcomeRephrase
		record.Answer = model.MsgRephrase
		return Result{Answer: model.MsgRephrase, Outcome: OutcomeRephrase, Usage: record.TokenUsage}, nil
	}

	record.Mode = string(decision.Mode)
	record.InheritSpatial = decision.InheritSpatial
	tf := keyword.ParseTimeFilter(intent.TimeKeywords)

	if decision.Mode == memory.ModeReuse {
		return p.reuseTurn(ctx, state, text, tf, &record, stages)
	}
	return p.searchTurn(ctx, state, text, intent, decision, tf, &record, stages)
}

// reuseTurn answers a follow-up from the remembered result set; the
// snapshot itself is untouched apart from the turn counter. The new time
// constraint is applied in memory, never against the store. When it rules
// out every remembered organization, the full set is shown instead so the
// answer can say they are closed.
func (p *Pipeline) reuseTurn(ctx context.Context, state *model.ConversationState, text string,
	tf model.TimeFilter, record *sessionlog.TurnRecord, stages map[string]int64) (Result, error) {

	orgs := filterByTime(state.LastOrganizations, tf)
	if len(orgs) == 0 {
		orgs = state.LastOrganizations
	}
	record.Spatial = state.LastSpatial
	record.ResultCount = len(orgs)

	tiers := response.BuildTiers(orgs, state.LastSpatial, p.tables.ZipCentroids)
	question := memory.RewritePronouns(text, state)

	start := time.Now()
	answer, usage, err := p.answerer.Summarize(ctx, question, tiers)
	stages["summarize"] = time.Since(start).Milliseconds()
	record.TokenUsage.Add(usage)
	if err != nil {
		p.log.Warn().Err(err).Msg("summarization degraded to listing")
	}

	if err := p.manager.CommitReuse(ctx, state); err != nil {
		return p.fail(record, err)
	}
	record.TurnIndex = state.TurnIndex
	record.Outcome = OutcomeReused
	record.Answer = answer
	return Result{Answer: answer, Outcome: OutcomeReused, Organizations: orgs, Usage: record.TokenUsage}, nil
}

// searchTurn runs an independent search and replaces memory with whatever
// it finds, or invalidates memory when it finds nothing.
func (p *Pipeline) searchTurn(ctx context.Context, state *model.ConversationState, text string,
	intent model.Intent, decision memory.Decision, tf model.TimeFilter,
	record *sessionlog.TurnRecord, stages map[string]int64) (Result, error) {

	service := p.normalizer.ParseServiceFilter(intent.ServiceKeywords)

	var spatial *model.SpatialContext
	if decision.InheritSpatial {
		spatial = state.LastSpatial
	} else if strings.TrimSpace(intent.LocationKeywords) != "" {
		start := time.Now()
		resolved, err := p.resolver.Resolve(ctx, intent.LocationKeywords)
		stages["resolve"] = time.Since(start).Milliseconds()
		if err != nil {
			if !errors.Is(err, model.ErrLocationUnresolved) {
				return p.fail(record, err)
			}
			// Unresolvable place: degrade to an unscoped search when other
			// filters can still narrow it, otherwise ask for a better place.
			if service.Empty() && tf.Empty() {
				record.Outcome = OutcomeLocationUnresolved
				record.Answer = model.MsgLocationUnresolved
				return Result{Answer: model.MsgLocationUnresolved, Outcome: OutcomeLocationUnresolved,
					Usage: record.TokenUsage}, nil
			}
			p.log.Debug().Str("phrase", intent.LocationKeywords).Msg("searching without spatial filter")
		} else {
			spatial = resolved
		}
	}
	record.Spatial = spatial

	start := time.Now()
	res, err := p.searcher.Search(ctx, spatial, service, tf)
	stages["search"] = time.Since(start).Milliseconds()
	record.QueryText = res.Query.Text
	record.QueryClauses = res.Query.Clauses
	if err != nil {
		p.log.Error().Err(err).Msg("store search failed")
		return p.fail(record, err)
	}
	record.Spatial = res.Spatial
	record.ResultCount = len(res.Organizations)
	record.Expanded = res.Expanded

	if len(res.Organizations) == 0 {
		if err := p.manager.CommitEmpty(ctx, state); err != nil {
			return p.fail(record, err)
		}
		record.TurnIndex = state.TurnIndex
		record.Outcome = OutcomeNoMatches
		record.Answer = model.MsgNoMatches
		return Result{Answer: model.MsgNoMatches, Outcome: OutcomeNoMatches, Usage: record.TokenUsage}, nil
	}

	tiers := response.BuildTiers(res.Organizations, res.Spatial, p.tables.ZipCentroids)

	start = time.Now()
	answer, usage, err := p.answerer.Summarize(ctx, text, tiers)
	stages["summarize"] = time.Since(start).Milliseconds()
	record.TokenUsage.Add(usage)
	if err != nil {
		p.log.Warn().Err(err).Msg("summarization degraded to listing")
	}

	if err := p.manager.CommitSuccess(ctx, state, res.Organizations, res.Spatial, &service); err != nil {
		return p.fail(record, err)
	}
	record.TurnIndex = state.TurnIndex
	record.Outcome = OutcomeAnswered
	record.Answer = answer
	return Result{
		Answer:        answer,
		Outcome:       OutcomeAnswered,
		Organizations: res.Organizations,
		Expanded:      res.Expanded,
		Usage:         record.TokenUsage,
	}, nil
}

// filterByTime keeps the organizations whose hours satisfy the new time
// constraint: an entry for a requested day that is not closed, and hours
// text containing a requested clock time.
func filterByTime(orgs []model.Organization, tf model.TimeFilter) []model.Organization {
	if tf.Empty() {
		return orgs
	}
	var kept []model.Organization
	for _, org := range orgs {
		if matchesTime(org, tf) {
			kept = append(kept, org)
		}
	}
	return kept
}

func matchesTime(org model.Organization, tf model.TimeFilter) bool {
	if len(tf.DayTokens) > 0 {
		matched := false
		for _, entry := range org.Hours {
			for _, day := range tf.DayTokens {
				if strings.EqualFold(entry.Day, day) && !strings.EqualFold(entry.Hours, "Closed") {
					matched = true
				}
			}
		}
		if !matched {
			return false
		}
	}
	if len(tf.HourTokens) > 0 {
		for _, entry := range org.Hours {
			for _, hour := range tf.HourTokens {
				if strings.Contains(entry.Hours, hour) {
					return true
				}
			}
		}
		return false
	}
	return true
}

func (p *Pipeline) fail(record *sessionlog.TurnRecord, err error) (Result, error) {
	record.Outcome = OutcomeFailed
	record.Answer = model.MsgTurnFailed
	record.Error = err.Error()
	return Result{Answer: model.MsgTurnFailed, Outcome: OutcomeFailed, Usage: record.TokenUsage}, err
}
