package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/graphdesk/server/internal/agent/catalog"
	"github.com/graphdesk/server/internal/agent/model"
	"github.com/graphdesk/server/internal/agent/prompts"
	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/internal/llm"
	logx "github.com/graphdesk/server/pkg/logger"
)

var errNoIntent = errors.New("classification carries no intent")

// Query translates a complete intent/entity pair into either a read query
// or a named write action. The required-field check runs first, in code,
// without consulting the generator.
type Query struct {
	gen           llm.Generator
	cat           *catalog.Catalog
	schemaSummary string
}

func NewQuery(gen llm.Generator, cat *catalog.Catalog, schemaSummary string) *Query {
	return &Query{gen: gen, cat: cat, schemaSummary: schemaSummary}
}

// queryPlanPayload is the shape the planner model is instructed to return.
type queryPlanPayload struct {
	Query  string            `json:"query"`
	Action string            `json:"action"`
	Data   map[string]string `json:"data"`
	Links  []string          `json:"links"`
}

// PlanQuery returns a MissingField plan when any required field is absent;
// otherwise it asks the generator for a read query or write action.
func (p *Query) PlanQuery(ctx context.Context, intent string, entities map[string]string) (model.QueryPlan, error) {
	def, ok := p.cat.Lookup(intent)
	if !ok {
		return model.QueryPlan{}, fmt.Errorf("intent %q is not in the catalog", intent)
	}

	for _, field := range def.RequiredFields {
		if entities[field] == "" {
			logx.Debug().Str("intent", intent).Str("field", field).Msg("required field missing, short-circuiting")
			return model.MissingFieldPlan(field), nil
		}
	}

	prompt, err := prompts.RenderQueryPlan(ctx, p.schemaSummary, intent, entities, def.RequiredFields)
	if err != nil {
		return model.QueryPlan{}, errx.Planning(err)
	}

	raw, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		return model.QueryPlan{}, errx.Planning(err)
	}

	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return model.QueryPlan{}, errx.Planning(err)
	}

	var parsed queryPlanPayload
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return model.QueryPlan{}, errx.Planning(err)
	}

	switch {
	case parsed.Query != "":
		return model.ReadPlan(parsed.Query), nil
	case parsed.Action != "":
		data := parsed.Data
		if len(data) == 0 {
			// Planner models regularly omit the payload; the entities are
			// the payload.
			data = entities
		}
		plan := model.ActionPlan(parsed.Action, data)
		plan.Links = parsed.Links
		return plan, nil
	default:
		return model.QueryPlan{}, errx.Planning(fmt.Errorf("plan carries neither query nor action"))
	}
}
