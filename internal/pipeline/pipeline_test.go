package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgfinder/internal/config"
	"orgfinder/internal/keyword"
	"orgfinder/internal/memory"
	"orgfinder/internal/model"
	"orgfinder/internal/query"
	"orgfinder/internal/response"
)

type fakeExtractor struct {
	intents map[string]model.Intent
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, text string) (model.Intent, model.TokenUsage, error) {
	if f.err != nil {
		return model.Intent{}, model.TokenUsage{}, f.err
	}
	return f.intents[text], model.TokenUsage{TotalTokens: 10}, nil
}

type fakeResolver struct {
	contexts map[string]*model.SpatialContext
	calls    []string
}

func (f *fakeResolver) Resolve(_ context.Context, phrase string) (*model.SpatialContext, error) {
	f.calls = append(f.calls, phrase)
	if sc, ok := f.contexts[phrase]; ok {
		return sc, nil
	}
	return nil, model.ErrLocationUnresolved
}

type fakeSearcher struct {
	orgs     []model.Organization
	err      error
	calls    int
	lastSC   *model.SpatialContext
	lastSvc  model.ServiceFilter
	lastTime model.TimeFilter
}

func (f *fakeSearcher) Search(_ context.Context, sc *model.SpatialContext,
	svc model.ServiceFilter, tf model.TimeFilter) (query.SearchResult, error) {
	f.calls++
	f.lastSC = sc
	f.lastSvc = svc
	f.lastTime = tf
	if f.err != nil {
		return query.SearchResult{Spatial: sc}, f.err
	}
	return query.SearchResult{Organizations: f.orgs, Spatial: sc}, nil
}

type fakeAnswerer struct {
	answer    string
	err       error
	questions []string
	tiers     []response.Tiers
}

func (f *fakeAnswerer) Summarize(_ context.Context, question string, tiers response.Tiers) (string, model.TokenUsage, error) {
	f.questions = append(f.questions, question)
	f.tiers = append(f.tiers, tiers)
	if f.err != nil {
		return response.FallbackListing(tiers), model.TokenUsage{}, f.err
	}
	return f.answer, model.TokenUsage{TotalTokens: 20}, nil
}

func testTables() *config.Tables {
	return &config.Tables{
		Landmarks:    map[string]string{"city hall": "19103"},
		Synonyms:     map[string]string{"wifi": "wi-fi", "meals": "food"},
		ZipAdjacency: map[string][]string{"19103": {"19106"}},
		ZipCentroids: map[string]model.Coordinates{"19103": {Lat: 39.9523, Lon: -75.1740}},
	}
}

func libraryOrg() model.Organization {
	return model.Organization{
		Name:  "Free Library of Philadelphia",
		Phone: "215-686-5322",
		Locations: []model.Location{
			{StreetAddress: "1901 Vine St", City: "Philadelphia", State: "PA", ZipCode: "19103"},
		},
		Services: []model.Service{{Name: "Wi-Fi", Type: "Free"}},
		Hours:    []model.DayHours{{Day: "Sunday", Hours: "Closed"}},
	}
}

type fixture struct {
	pipe      *Pipeline
	extractor *fakeExtractor
	resolver  *fakeResolver
	searcher  *fakeSearcher
	answerer  *fakeAnswerer
	manager   *memory.Manager
}

func newFixture() *fixture {
	f := &fixture{
		extractor: &fakeExtractor{intents: map[string]model.Intent{}},
		resolver:  &fakeResolver{contexts: map[string]*model.SpatialContext{}},
		searcher:  &fakeSearcher{},
		answerer:  &fakeAnswerer{answer: "Here you go."},
	}
	f.manager = memory.NewManager(memory.NewInMemoryStore(), zerolog.Nop())
	f.pipe = New(f.extractor, keyword.NewNormalizer(testTables().Synonyms), f.resolver,
		f.manager, f.searcher, f.answerer, testTables(), nil, zerolog.Nop())
	return f
}

func TestTurnSearchAndAnswer(t *testing.T) {
	f := newFixture()
	f.extractor.intents["where can I get free wifi near city hall?"] = model.Intent{
		ServiceKeywords:  "free wifi",
		LocationKeywords: "near city hall",
	}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{
		LocationPhrase: "near city hall",
		CandidateAreas: []string{"19103", "19106"},
	}
	f.searcher.orgs = []model.Organization{libraryOrg()}

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "where can I get free wifi near city hall?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, "Here you go.", res.Answer)
	assert.Equal(t, []string{"19103", "19106"}, f.searcher.lastSC.CandidateAreas)
	assert.Equal(t, []string{"wi-fi"}, f.searcher.lastSvc.NameTokens)
	assert.Equal(t, []string{"Free"}, f.searcher.lastSvc.TypeTokens)

	state, err := f.manager.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseActive, state.Phase)
	assert.Equal(t, []string{"Free Library of Philadelphia"}, state.OrganizationNames())
}

func TestFollowUpReusesResultsWithoutSearching(t *testing.T) {
	f := newFixture()
	f.extractor.intents["first"] = model.Intent{ServiceKeywords: "wifi", LocationKeywords: "near city hall"}
	f.extractor.intents["are they open on sunday?"] = model.Intent{
		TimeKeywords:    "sunday",
		ServiceKeywords: "they",
	}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{CandidateAreas: []string{"19103"}}
	f.searcher.orgs = []model.Organization{libraryOrg()}

	_, err := f.pipe.ProcessTurn(context.Background(), "s1", "first")
	require.NoError(t, err)
	require.Equal(t, 1, f.searcher.calls)

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "are they open on sunday?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReused, res.Outcome)
	assert.Equal(t, 1, f.searcher.calls, "follow-up must not hit the store")
	// The summarizer sees names, not pronouns.
	require.Len(t, f.answerer.questions, 2)
	assert.Contains(t, f.answerer.questions[1], "Free Library of Philadelphia")
	assert.NotContains(t, f.answerer.questions[1], "they")
}

func TestFollowUpDayFilterNarrowsRememberedResults(t *testing.T) {
	f := newFixture()
	f.extractor.intents["first"] = model.Intent{ServiceKeywords: "wifi", LocationKeywords: "near city hall"}
	f.extractor.intents["which are open on tuesday?"] = model.Intent{
		TimeKeywords:    "tuesday",
		ServiceKeywords: "those",
	}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{CandidateAreas: []string{"19103"}}
	openTuesday := libraryOrg()
	openTuesday.Hours = []model.DayHours{{Day: "Tuesday", Hours: "9:00 AM - 8:00 PM"}}
	closedTuesday := model.Organization{
		Name:  "Mighty Writers",
		Hours: []model.DayHours{{Day: "Tuesday", Hours: "Closed"}},
	}
	f.searcher.orgs = []model.Organization{openTuesday, closedTuesday}

	_, err := f.pipe.ProcessTurn(context.Background(), "s1", "first")
	require.NoError(t, err)

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "which are open on tuesday?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReused, res.Outcome)
	assert.Equal(t, 1, f.searcher.calls)
	require.Len(t, f.answerer.tiers, 2)
	reused := f.answerer.tiers[1]
	require.Len(t, reused.Short, 1)
	assert.Equal(t, "Free Library of Philadelphia", reused.Short[0].Name)
}

func TestNewServiceInheritsRememberedLocation(t *testing.T) {
	f := newFixture()
	f.extractor.intents["first"] = model.Intent{ServiceKeywords: "wifi", LocationKeywords: "near city hall"}
	f.extractor.intents["what about free meals?"] = model.Intent{ServiceKeywords: "free meals"}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{CandidateAreas: []string{"19103", "19106"}}
	f.searcher.orgs = []model.Organization{libraryOrg()}

	_, err := f.pipe.ProcessTurn(context.Background(), "s1", "first")
	require.NoError(t, err)

	f.searcher.orgs = []model.Organization{{Name: "Faith Church Pantry"}}
	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "what about free meals?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, 2, f.searcher.calls)
	// Remembered spatial context carried over, service filter replaced.
	assert.Equal(t, []string{"19103", "19106"}, f.searcher.lastSC.CandidateAreas)
	assert.Equal(t, []string{"food"}, f.searcher.lastSvc.NameTokens)
	// Only one resolver call ever happened: the inherited turn resolves nothing.
	assert.Equal(t, []string{"near city hall"}, f.resolver.calls)

	state, _ := f.manager.Load(context.Background(), "s1")
	assert.Equal(t, []string{"Faith Church Pantry"}, state.OrganizationNames())
}

func TestNewLocationReplacesMemory(t *testing.T) {
	f := newFixture()
	f.extractor.intents["first"] = model.Intent{ServiceKeywords: "wifi", LocationKeywords: "near city hall"}
	f.extractor.intents["anything near 19121?"] = model.Intent{LocationKeywords: "19121"}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{CandidateAreas: []string{"19103"}}
	f.resolver.contexts["19121"] = &model.SpatialContext{CandidateAreas: []string{"19121", "19103"}}
	f.searcher.orgs = []model.Organization{libraryOrg()}

	_, err := f.pipe.ProcessTurn(context.Background(), "s1", "first")
	require.NoError(t, err)

	f.searcher.orgs = []model.Organization{{Name: "Temple Community Garden"}}
	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "anything near 19121?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, []string{"19121", "19103"}, f.searcher.lastSC.CandidateAreas)

	state, _ := f.manager.Load(context.Background(), "s1")
	assert.Equal(t, []string{"Temple Community Garden"}, state.OrganizationNames())
	assert.Equal(t, []string{"19121", "19103"}, state.LastSpatial.CandidateAreas)
}

func TestZeroResultsInvalidateMemory(t *testing.T) {
	f := newFixture()
	f.extractor.intents["first"] = model.Intent{ServiceKeywords: "wifi", LocationKeywords: "near city hall"}
	f.extractor.intents["any pottery studios near city hall?"] = model.Intent{
		ServiceKeywords:  "pottery studios",
		LocationKeywords: "near city hall",
	}
	f.extractor.intents["are they open?"] = model.Intent{TimeKeywords: "open", ServiceKeywords: "they"}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{CandidateAreas: []string{"19103"}}
	f.searcher.orgs = []model.Organization{libraryOrg()}

	_, err := f.pipe.ProcessTurn(context.Background(), "s1", "first")
	require.NoError(t, err)

	f.searcher.orgs = nil
	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "any pottery studios near city hall?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatches, res.Outcome)
	assert.Equal(t, model.MsgNoMatches, res.Answer)

	state, _ := f.manager.Load(context.Background(), "s1")
	assert.Equal(t, model.PhaseInvalidated, state.Phase)

	// The earlier results are gone: a follow-up cannot reuse them.
	f.searcher.orgs = nil
	res, err = f.pipe.ProcessTurn(context.Background(), "s1", "are they open?")
	require.NoError(t, err)
	assert.NotEqual(t, OutcomeReused, res.Outcome)

	// An empty intent against invalidated memory gets the rephrase message.
	f.extractor.intents["hmm?"] = model.Intent{}
	res, err = f.pipe.ProcessTurn(context.Background(), "s1", "hmm?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRephrase, res.Outcome)
}

func TestEmptyIntentAfterActiveStateReusesResults(t *testing.T) {
	f := newFixture()
	f.extractor.intents["first"] = model.Intent{ServiceKeywords: "wifi", LocationKeywords: "near city hall"}
	f.extractor.intents["hmm?"] = model.Intent{}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{CandidateAreas: []string{"19103"}}
	f.searcher.orgs = []model.Organization{libraryOrg()}

	_, err := f.pipe.ProcessTurn(context.Background(), "s1", "first")
	require.NoError(t, err)

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "hmm?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReused, res.Outcome)
	assert.NotEqual(t, model.MsgRephrase, res.Answer)
	assert.Equal(t, 1, f.searcher.calls)
	assert.Equal(t, []string{"Free Library of Philadelphia"}, []string{res.Organizations[0].Name})
}

func TestEmptyIntentAsksForRephrase(t *testing.T) {
	f := newFixture()
	f.extractor.intents["gibberish"] = model.Intent{}

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "gibberish")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRephrase, res.Outcome)
	assert.Equal(t, model.MsgRephrase, res.Answer)
	assert.Equal(t, 0, f.searcher.calls)

	state, _ := f.manager.Load(context.Background(), "s1")
	assert.Equal(t, model.PhaseEmpty, state.Phase)
}

func TestUnresolvableLocationAloneAsksForPlace(t *testing.T) {
	f := newFixture()
	f.extractor.intents["near the old mill"] = model.Intent{LocationKeywords: "the old mill"}

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "near the old mill")
	require.NoError(t, err)
	assert.Equal(t, OutcomeLocationUnresolved, res.Outcome)
	assert.Equal(t, model.MsgLocationUnresolved, res.Answer)
	assert.Equal(t, 0, f.searcher.calls)
}

func TestUnresolvableLocationWithServiceSearchesUnscoped(t *testing.T) {
	f := newFixture()
	f.extractor.intents["wifi near the old mill"] = model.Intent{
		ServiceKeywords:  "wifi",
		LocationKeywords: "the old mill",
	}
	f.searcher.orgs = []model.Organization{libraryOrg()}

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "wifi near the old mill")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, 1, f.searcher.calls)
	assert.Nil(t, f.searcher.lastSC)
}

func TestStoreFailureLeavesMemoryUntouched(t *testing.T) {
	f := newFixture()
	f.extractor.intents["first"] = model.Intent{ServiceKeywords: "wifi", LocationKeywords: "near city hall"}
	f.extractor.intents["second"] = model.Intent{ServiceKeywords: "meals", LocationKeywords: "near city hall"}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{CandidateAreas: []string{"19103"}}
	f.searcher.orgs = []model.Organization{libraryOrg()}

	_, err := f.pipe.ProcessTurn(context.Background(), "s1", "first")
	require.NoError(t, err)

	f.searcher.err = model.ErrStoreUnavailable
	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "second")
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, model.MsgTurnFailed, res.Answer)

	state, _ := f.manager.Load(context.Background(), "s1")
	assert.Equal(t, model.PhaseActive, state.Phase)
	assert.Equal(t, []string{"Free Library of Philadelphia"}, state.OrganizationNames())
}

func TestExtractionFailureFailsTurn(t *testing.T) {
	f := newFixture()
	f.extractor.err = errors.New("model timeout")

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "anything")
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, model.MsgTurnFailed, res.Answer)
}

func TestSummarizationFailureDegradesToListing(t *testing.T) {
	f := newFixture()
	f.extractor.intents["first"] = model.Intent{ServiceKeywords: "wifi", LocationKeywords: "near city hall"}
	f.resolver.contexts["near city hall"] = &model.SpatialContext{CandidateAreas: []string{"19103"}}
	f.searcher.orgs = []model.Organization{libraryOrg()}
	f.answerer.err = model.ErrSummarization

	res, err := f.pipe.ProcessTurn(context.Background(), "s1", "first")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Contains(t, res.Answer, "Free Library of Philadelphia")

	// Memory still commits: the search itself succeeded.
	state, _ := f.manager.Load(context.Background(), "s1")
	assert.Equal(t, model.PhaseActive, state.Phase)
}
