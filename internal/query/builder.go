// Package query assembles and executes the graph-store search. Queries are
// built from a fixed template plus optional existence clauses; every user-
// derived value travels as a parameter, never as query text.
package query

import (
	"fmt"
	"strings"

	"orgfinder/internal/model"
)

// Clause kinds recorded on a generated query.
const (
	ClauseArea        = "area"
	ClauseServiceName = "serviceName"
	ClauseServiceType = "serviceType"
	ClauseDay         = "day"
	ClauseHours       = "hours"
)

const queryHeader = "MATCH (org:Organization)\nWHERE 1=1"

// The projection is fixed: the store always returns each matched
// organization's complete collections, regardless of which clauses matched.
const queryReturn = `RETURN org,
  [(org)-[:HAS_LOCATION]->(loc) | loc] AS locations,
  [(org)-[:PROVIDES]->(svc) | svc] AS services,
  [(org)-[:HAS_HOURS]->(tm) | tm] AS operatingHours`

// Builder turns resolved filters into a parameterized store query.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build emits the query for the given filters. Empty filters contribute no
// clause; with no filters at all the query matches every organization.
func (b *Builder) Build(spatial *model.SpatialContext, service model.ServiceFilter, tf model.TimeFilter) model.GeneratedQuery {
	q := model.GeneratedQuery{Params: map[string]any{}}
	var clauses []string

	if spatial.Resolved() {
		clauses = append(clauses,
			"AND EXISTS { (org)-[:HAS_LOCATION]->(l:Location WHERE l.zipCode IN $areas) }")
		q.Params["areas"] = spatial.CandidateAreas
		q.Clauses = append(q.Clauses, ClauseArea)
	}

	if len(service.NameTokens) > 0 {
		clauses = append(clauses,
			"AND EXISTS { (org)-[:PROVIDES]->(s:Service WHERE any(tok IN $serviceNames WHERE toLower(s.name) CONTAINS tok)) }")
		q.Params["serviceNames"] = lowered(service.NameTokens)
		q.Clauses = append(q.Clauses, ClauseServiceName)
	}
	if len(service.TypeTokens) > 0 {
		clauses = append(clauses,
			"AND EXISTS { (org)-[:PROVIDES]->(st:Service WHERE st.type IN $serviceTypes) }")
		q.Params["serviceTypes"] = service.TypeTokens
		q.Clauses = append(q.Clauses, ClauseServiceType)
	}

	if len(tf.DayTokens) > 0 {
		clauses = append(clauses,
			"AND EXISTS { (org)-[:HAS_HOURS]->(t:Time WHERE t.day IN $days) }")
		q.Params["days"] = tf.DayTokens
		q.Clauses = append(q.Clauses, ClauseDay)
	}
	if len(tf.HourTokens) > 0 {
		clauses = append(clauses,
			"AND EXISTS { (org)-[:HAS_HOURS]->(th:Time WHERE any(tok IN $hours WHERE th.hours CONTAINS tok)) }")
		q.Params["hours"] = tf.HourTokens
		q.Clauses = append(q.Clauses, ClauseHours)
	}

	var sb strings.Builder
	sb.WriteString(queryHeader)
	for _, c := range clauses {
		sb.WriteString("\n  ")
		sb.WriteString(c)
	}
	sb.WriteString("\n")
	sb.WriteString(queryReturn)
	q.Text = sb.String()
	return q
}

// RebuildWithAreas swaps only the spatial parameter of an already-built
// query, for the radius-expansion retry.
func RebuildWithAreas(q model.GeneratedQuery, areas []string) (model.GeneratedQuery, error) {
	if !q.HasClause(ClauseArea) {
		return q, fmt.Errorf("query has no area clause to widen")
	}
	params := make(map[string]any, len(q.Params))
	for k, v := range q.Params {
		params[k] = v
	}
	params["areas"] = areas
	q.Params = params
	return q, nil
}

func lowered(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.ToLower(t)
	}
	return out
}
