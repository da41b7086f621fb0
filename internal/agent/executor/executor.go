package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/graphdesk/server/internal/agent/model"
	"github.com/graphdesk/server/internal/agent/planner"
	"github.com/graphdesk/server/internal/agent/prompts"
	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/internal/llm"
	"github.com/graphdesk/server/internal/store"
	logx "github.com/graphdesk/server/pkg/logger"
)

// mutationKeywords is the write blocklist applied to every AI-generated
// read query, including repaired ones. Matching is case-insensitive on the
// whole query text. This is the one hard security invariant of the system:
// no generated "read" request may mutate state.
var mutationKeywords = []string{"DELETE", "DETACH", "REMOVE", "SET", "CREATE", "MERGE"}

const (
	securityRejectedMessage  = "The planned query was rejected for security reasons."
	noResultsMessage         = "No results found."
	unsupportedActionMessage = "The planned action is not supported."
)

// Write actions the planner model may select. The model only picks among
// these; the parameterized operations themselves live in the store and
// enforce customer ownership in Cypher.
const (
	ActionCreateTicket  = "CREATE_TICKET"
	ActionProcessReturn = "PROCESS_RETURN"
)

// Executor runs a planned query or action against the entity store.
type Executor struct {
	store          store.EntityStore
	gen            llm.Generator
	repairAttempts int
}

func New(st store.EntityStore, gen llm.Generator, cfg model.ExecutorConfig) *Executor {
	attempts := cfg.RepairAttempts
	if attempts < 0 {
		attempts = 0
	}
	return &Executor{store: st, gen: gen, repairAttempts: attempts}
}

// Execute dispatches a query plan. The intent is carried along so ticket
// types can be inferred when the planner model omits them.
func (e *Executor) Execute(ctx context.Context, plan model.QueryPlan, intent string, entities map[string]string, customerID string) *model.Outcome {
	switch {
	case plan.IsMissing():
		return &model.Outcome{Err: "Missing required entity", NeededField: plan.Missing}
	case plan.IsRead():
		return e.executeRead(ctx, plan.Query, entities, customerID)
	case plan.IsAction():
		return e.executeAction(ctx, plan, intent, customerID)
	default:
		return model.ErrorOutcome(unsupportedActionMessage)
	}
}

// Blocked reports whether the query text contains a mutation keyword.
func Blocked(query string) bool {
	upper := strings.ToUpper(query)
	for _, kw := range mutationKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func (e *Executor) executeRead(ctx context.Context, query string, entities map[string]string, customerID string) *model.Outcome {
	params := make(map[string]any, len(entities)+1)
	for k, v := range entities {
		params[k] = v
	}
	params["customerId"] = customerID

	attempt := 0
	for {
		if Blocked(query) {
			logx.Security().
				Str("customerID", customerID).
				Str("query", query).
				Msg("generated query attempted a write, rejected")
			return model.ErrorOutcome(securityRejectedMessage)
		}

		rows, err := e.store.RunRead(ctx, query, params)
		if err == nil {
			if len(rows) == 0 {
				return model.ErrorOutcome(noResultsMessage)
			}
			return model.DataOutcome(rows)
		}

		if attempt >= e.repairAttempts {
			logx.Error().Err(err).Int("attempts", attempt).Msg("read query failed, repair budget exhausted")
			return model.ErrorOutcome(err.Error())
		}
		attempt++

		repaired, rerr := e.repairQuery(ctx, query, err)
		if rerr != nil {
			logx.Error().Err(rerr).Msg("query repair failed")
			return model.ErrorOutcome(err.Error())
		}
		logx.Debug().Int("attempt", attempt).Msg("retrying with repaired query")
		query = repaired
	}
}

// repairQuery feeds a failing query and its error back to the generator and
// extracts the corrected query text.
func (e *Executor) repairQuery(ctx context.Context, query string, cause error) (string, error) {
	prompt, err := prompts.RenderRepair(ctx, e.store.SchemaSummary(), query, cause.Error())
	if err != nil {
		return "", errx.Planning(err)
	}

	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", errx.Planning(err)
	}

	obj, err := planner.ExtractJSONObject(raw)
	if err != nil {
		return "", errx.Planning(err)
	}

	var parsed struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return "", errx.Planning(err)
	}
	if parsed.Query == "" {
		return "", errx.Planning(errors.New("repair carries no query"))
	}
	return parsed.Query, nil
}

func (e *Executor) executeAction(ctx context.Context, plan model.QueryPlan, intent, customerID string) *model.Outcome {
	switch plan.Action {
	case ActionCreateTicket:
		ticketType := plan.Data["type"]
		if ticketType == "" {
			// Planner models regularly drop the type; the intent name
			// carries it, e.g. REPORT_DAMAGED_ITEM -> DAMAGED_ITEM.
			ticketType = strings.TrimPrefix(intent, "REPORT_")
			logx.Debug().Str("type", ticketType).Msg("auto-inferred ticket type from intent")
		}

		ticketID, err := e.store.CreateTicket(ctx, customerID, store.TicketInput{
			OrderID:     plan.Data["orderId"],
			Type:        ticketType,
			Description: plan.Data["description"],
		})
		if err != nil {
			return actionFailure(err, "Failed to create the ticket.")
		}
		return model.DataOutcome([]map[string]any{{"success": true, "ticketId": ticketID}})

	case ActionProcessReturn:
		result, err := e.store.CreateReturn(ctx, customerID, plan.Data["orderId"], plan.Data["reason"])
		if err != nil {
			return actionFailure(err, "Failed to process the return.")
		}
		row := map[string]any{"success": true}
		for k, v := range result {
			row[k] = v
		}
		return model.DataOutcome([]map[string]any{row})

	default:
		logx.Warn().Str("action", plan.Action).Msg("planner selected an unsupported action")
		return model.ErrorOutcome(unsupportedActionMessage)
	}
}

func actionFailure(err error, fallback string) *model.Outcome {
	if errors.Is(err, errx.ErrAuthorization) {
		logx.Security().Err(err).Msg("write action failed ownership check")
		return model.ErrorOutcome(errx.ErrAuthorization.Error())
	}
	logx.Error().Err(err).Msg("write action failed")
	return model.ErrorOutcome(fallback)
}
