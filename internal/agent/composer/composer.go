package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graphdesk/server/internal/agent/model"
	"github.com/graphdesk/server/internal/agent/prompts"
	"github.com/graphdesk/server/internal/llm"
)

// Composer phrases the final reply for a turn. It calls the generator once
// with the full structured context and trusts the returned prose; the
// deterministic priority order lives in the prompt, with the context shaped
// here so only the relevant fields are present.
type Composer struct {
	gen llm.Generator
}

func New(gen llm.Generator) *Composer {
	return &Composer{gen: gen}
}

// turnContext is the structured view of a finished turn handed to the
// response model. Empty fields are omitted so the priority rules in the
// prompt fire unambiguously.
type turnContext struct {
	OriginalQuery string            `json:"originalQuery"`
	Intent        string            `json:"intent"`
	Plan          string            `json:"plan,omitempty"`
	Sentiment     model.Sentiment   `json:"sentiment,omitempty"`
	Entities      map[string]string `json:"entities,omitempty"`
	NeededEntity  string            `json:"neededEntity,omitempty"`
	EscalationID  string            `json:"escalationId,omitempty"`
	Result        []map[string]any  `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func (c *Composer) Compose(ctx context.Context, plan *model.Plan) (string, error) {
	tc := turnContext{
		OriginalQuery: plan.OriginalQuery,
		Intent:        plan.Intent,
		Plan:          plan.NarrativePlan,
		Sentiment:     plan.Sentiment,
		Entities:      plan.Entities,
		NeededEntity:  plan.NeededEntity,
		EscalationID:  plan.EscalationID,
	}
	if plan.Outcome != nil {
		if plan.Outcome.IsError() {
			tc.Error = plan.Outcome.Err
		} else {
			tc.Result = plan.Outcome.Rows
		}
	}

	encoded, err := json.Marshal(tc)
	if err != nil {
		return "", fmt.Errorf("marshal turn context: %w", err)
	}

	prompt, err := prompts.RenderRespond(ctx, string(encoded))
	if err != nil {
		return "", err
	}

	reply, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
