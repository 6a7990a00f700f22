package query

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgfinder/internal/model"
)

type fakeStore struct {
	results [][]model.Organization
	errs    []error
	queries []model.GeneratedQuery
}

func (f *fakeStore) Run(_ context.Context, q model.GeneratedQuery) ([]model.Organization, error) {
	call := len(f.queries)
	f.queries = append(f.queries, q)
	var err error
	if call < len(f.errs) {
		err = f.errs[call]
	}
	var orgs []model.Organization
	if call < len(f.results) {
		orgs = f.results[call]
	}
	return orgs, err
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeExpander struct {
	called int
}

func (f *fakeExpander) Expand(prev *model.SpatialContext) *model.SpatialContext {
	f.called++
	widened := append(append([]string(nil), prev.CandidateAreas...), "19106")
	return &model.SpatialContext{
		LocationPhrase: prev.LocationPhrase,
		CandidateAreas: widened,
		RadiusLevel:    prev.RadiusLevel + 1,
	}
}

func level0Spatial() *model.SpatialContext {
	return &model.SpatialContext{CandidateAreas: []string{"19103"}}
}

func TestSearchResultsFirstPassNoRetry(t *testing.T) {
	store := &fakeStore{results: [][]model.Organization{{{Name: "Free Library"}}}}
	expander := &fakeExpander{}
	e := NewExecutor(store, expander, zerolog.Nop())

	res, err := e.Search(context.Background(), level0Spatial(), model.ServiceFilter{}, model.TimeFilter{})
	require.NoError(t, err)
	assert.Len(t, res.Organizations, 1)
	assert.False(t, res.Expanded)
	assert.Equal(t, 0, expander.called)
	assert.Len(t, store.queries, 1)
}

func TestSearchZeroResultsRetriesExactlyOnce(t *testing.T) {
	store := &fakeStore{results: [][]model.Organization{nil, {{Name: "Faith Church Pantry"}}}}
	expander := &fakeExpander{}
	e := NewExecutor(store, expander, zerolog.Nop())

	res, err := e.Search(context.Background(), level0Spatial(), model.ServiceFilter{}, model.TimeFilter{})
	require.NoError(t, err)
	assert.True(t, res.Expanded)
	assert.Len(t, res.Organizations, 1)
	assert.Equal(t, 1, expander.called)
	require.Len(t, store.queries, 2)
	assert.Equal(t, []string{"19103", "19106"}, store.queries[1].Params["areas"])
	assert.Equal(t, 1, res.Spatial.RadiusLevel)
}

func TestSearchZeroResultsTwiceStopsAfterRetry(t *testing.T) {
	store := &fakeStore{results: [][]model.Organization{nil, nil}}
	e := NewExecutor(store, &fakeExpander{}, zerolog.Nop())

	res, err := e.Search(context.Background(), level0Spatial(), model.ServiceFilter{}, model.TimeFilter{})
	require.NoError(t, err)
	assert.Empty(t, res.Organizations)
	assert.True(t, res.Expanded)
	assert.Len(t, store.queries, 2)
}

func TestSearchNoSpatialContextNeverRetries(t *testing.T) {
	store := &fakeStore{results: [][]model.Organization{nil}}
	expander := &fakeExpander{}
	e := NewExecutor(store, expander, zerolog.Nop())

	res, err := e.Search(context.Background(), nil,
		model.ServiceFilter{NameTokens: []string{"food"}}, model.TimeFilter{})
	require.NoError(t, err)
	assert.Empty(t, res.Organizations)
	assert.False(t, res.Expanded)
	assert.Equal(t, 0, expander.called)
	assert.Len(t, store.queries, 1)
}

func TestSearchAlreadyExpandedContextNeverRetries(t *testing.T) {
	store := &fakeStore{results: [][]model.Organization{nil}}
	expander := &fakeExpander{}
	e := NewExecutor(store, expander, zerolog.Nop())

	sc := &model.SpatialContext{CandidateAreas: []string{"19103", "19106"}, RadiusLevel: 1}
	res, err := e.Search(context.Background(), sc, model.ServiceFilter{}, model.TimeFilter{})
	require.NoError(t, err)
	assert.False(t, res.Expanded)
	assert.Equal(t, 0, expander.called)
}

func TestSearchStoreErrorPropagates(t *testing.T) {
	store := &fakeStore{errs: []error{model.ErrStoreUnavailable}}
	e := NewExecutor(store, &fakeExpander{}, zerolog.Nop())

	_, err := e.Search(context.Background(), level0Spatial(), model.ServiceFilter{}, model.TimeFilter{})
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
}

func TestClassifyStoreError(t *testing.T) {
	syntaxErr := &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "bad query"}
	assert.ErrorIs(t, classifyStoreError(syntaxErr), model.ErrStoreSyntax)

	authErr := &neo4j.Neo4jError{Code: "Neo.ClientError.Security.Unauthorized", Msg: "denied"}
	assert.ErrorIs(t, classifyStoreError(authErr), model.ErrStoreUnavailable)

	assert.ErrorIs(t, classifyStoreError(errors.New("connection refused")), model.ErrStoreUnavailable)
}
