package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"orgfinder/internal/model"
)

// Store runs generated queries against the graph database.
type Store interface {
	Run(ctx context.Context, q model.GeneratedQuery) ([]model.Organization, error)
	Ping(ctx context.Context) error
}

// Expander widens a resolved spatial context by one level.
type Expander interface {
	Expand(prev *model.SpatialContext) *model.SpatialContext
}

// Executor runs a search with at most one radius-expansion retry: if the
// first pass returns nothing and the query had a spatial clause at level 0,
// the candidate set is widened once and the query re-run. No other retry
// exists anywhere in the turn.
type Executor struct {
	store    Store
	expander Expander
	log      zerolog.Logger
}

func NewExecutor(store Store, expander Expander, log zerolog.Logger) *Executor {
	return &Executor{store: store, expander: expander, log: log}
}

// SearchResult is the outcome of one Search, including the spatial context
// actually used (widened when the retry fired).
type SearchResult struct {
	Organizations []model.Organization
	Spatial       *model.SpatialContext
	Query         model.GeneratedQuery
	Expanded      bool
}

func (e *Executor) Search(ctx context.Context, spatial *model.SpatialContext,
	service model.ServiceFilter, tf model.TimeFilter) (SearchResult, error) {

	builder := NewBuilder()
	q := builder.Build(spatial, service, tf)
	res := SearchResult{Spatial: spatial, Query: q}

	orgs, err := e.store.Run(ctx, q)
	if err != nil {
		return res, err
	}
	res.Organizations = orgs
	if len(orgs) > 0 || !spatial.Resolved() || spatial.RadiusLevel != 0 || e.expander == nil {
		return res, nil
	}

	widened := e.expander.Expand(spatial)
	if len(widened.CandidateAreas) <= len(spatial.CandidateAreas) {
		return res, nil
	}
	wq, err := RebuildWithAreas(q, widened.CandidateAreas)
	if err != nil {
		return res, nil
	}
	e.log.Debug().Int("areas", len(widened.CandidateAreas)).Msg("retrying with widened radius")

	orgs, err = e.store.Run(ctx, wq)
	if err != nil {
		return res, err
	}
	res.Organizations = orgs
	res.Spatial = widened
	res.Query = wq
	res.Expanded = true
	return res, nil
}

// Neo4jStore executes queries over the Bolt driver with read sessions.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jStore(ctx context.Context, uri, username, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create graph driver: %w", err)
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) Run(ctx context.Context, q model.GeneratedQuery) ([]model.Organization, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, q.Text, q.Params)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, classifyStoreError(err)
	}

	orgs := make([]model.Organization, 0, len(records))
	for _, record := range records {
		orgs = append(orgs, recordToOrganization(record))
	}
	return orgs, nil
}

// classifyStoreError folds driver errors into the two store sentinels:
// statement-level rejections and everything else, which is treated as the
// store being unreachable (timeouts included).
func classifyStoreError(err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && strings.HasPrefix(neoErr.Code, "Neo.ClientError.Statement") {
		return fmt.Errorf("%w: %v", model.ErrStoreSyntax, err)
	}
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}

func recordToOrganization(record *neo4j.Record) model.Organization {
	var org model.Organization
	if value, ok := record.Get("org"); ok {
		if node, ok := value.(neo4j.Node); ok {
			org.Name = stringProp(node.Props, "name")
			org.Phone = stringProp(node.Props, "phone")
			org.Status = stringProp(node.Props, "status")
		}
	}
	if value, ok := record.Get("locations"); ok {
		for _, item := range asNodeList(value) {
			org.Locations = append(org.Locations, model.Location{
				StreetAddress: stringProp(item, "streetAddress"),
				City:          stringProp(item, "city"),
				State:         stringProp(item, "state"),
				ZipCode:       stringProp(item, "zipCode"),
				Latitude:      floatProp(item, "latitude"),
				Longitude:     floatProp(item, "longitude"),
			})
		}
	}
	if value, ok := record.Get("services"); ok {
		for _, item := range asNodeList(value) {
			org.Services = append(org.Services, model.Service{
				Name: stringProp(item, "name"),
				Type: stringProp(item, "type"),
			})
		}
	}
	if value, ok := record.Get("operatingHours"); ok {
		for _, item := range asNodeList(value) {
			org.Hours = append(org.Hours, model.DayHours{
				Day:   stringProp(item, "day"),
				Hours: stringProp(item, "hours"),
			})
		}
	}
	return org
}

func asNodeList(value any) []map[string]any {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	props := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if node, ok := item.(neo4j.Node); ok {
			props = append(props, node.Props)
		}
	}
	return props
}

func stringProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}
