package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/graphdesk/server/internal/agent/model"
)

//go:embed template/classify.txt
var classifyTemplate string

//go:embed template/pending_plan.txt
var pendingPlanTemplate string

//go:embed template/queryplan.txt
var queryPlanTemplate string

//go:embed template/repair.txt
var repairTemplate string

//go:embed template/hypothesis.txt
var hypothesisTemplate string

//go:embed template/respond.txt
var respondTemplate string

//go:embed template/synthesize.txt
var synthesizeTemplate string

// render pushes the already-substituted content through the Eino prompt
// component so prompt callbacks fire, and returns the final string.
func render(ctx context.Context, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}

// RenderClassify builds the classifier prompt. Known tokens are substituted
// with a Replacer so JSON braces in the template survive untouched.
func RenderClassify(ctx context.Context, catalogListing string, history []model.Turn, prior *model.Plan, utterance string) (string, error) {
	pending := ""
	if prior != nil {
		entities, err := json.Marshal(prior.Entities)
		if err != nil {
			return "", fmt.Errorf("marshal prior entities: %w", err)
		}
		pending = strings.NewReplacer(
			"{intent}", prior.Intent,
			"{entities}", string(entities),
			"{needed}", prior.NeededEntity,
		).Replace(pendingPlanTemplate)
	}

	content := strings.NewReplacer(
		"{catalog}", catalogListing,
		"{history}", formatHistory(history),
		"{pending}", pending,
		"{query}", utterance,
	).Replace(classifyTemplate)

	return render(ctx, content)
}

// RenderQueryPlan builds the plan-generation prompt for a complete plan.
func RenderQueryPlan(ctx context.Context, schemaSummary, intent string, entities map[string]string, required []string) (string, error) {
	encoded, err := json.Marshal(entities)
	if err != nil {
		return "", fmt.Errorf("marshal entities: %w", err)
	}

	content := strings.NewReplacer(
		"{schema}", schemaSummary,
		"{intent}", intent,
		"{entities}", string(encoded),
		"{required}", strings.Join(required, ", "),
	).Replace(queryPlanTemplate)

	return render(ctx, content)
}

// RenderRepair builds the fix-this-query prompt for the retry loop.
func RenderRepair(ctx context.Context, schemaSummary, failingQuery, errMsg string) (string, error) {
	content := strings.NewReplacer(
		"{schema}", schemaSummary,
		"{query}", failingQuery,
		"{error}", errMsg,
	).Replace(repairTemplate)

	return render(ctx, content)
}

// RenderHypothesis builds the best-effort diagnostic prompt used before an
// escalation ticket is filed.
func RenderHypothesis(ctx context.Context, catalogListing, utterance string) (string, error) {
	content := strings.NewReplacer(
		"{catalog}", catalogListing,
		"{query}", utterance,
	).Replace(hypothesisTemplate)

	return render(ctx, content)
}

// RenderRespond builds the final reply prompt from the structured turn
// context.
func RenderRespond(ctx context.Context, turnContext string) (string, error) {
	content := strings.NewReplacer(
		"{context}", turnContext,
	).Replace(respondTemplate)

	return render(ctx, content)
}

// RenderSynthesize builds the learning-loop prompt that turns a resolved
// escalation into a proposed intent rule.
func RenderSynthesize(ctx context.Context, query, hypothesis, guidance string) (string, error) {
	if hypothesis == "" {
		hypothesis = "null"
	}
	content := strings.NewReplacer(
		"{query}", query,
		"{hypothesis}", hypothesis,
		"{guidance}", guidance,
	).Replace(synthesizeTemplate)

	return render(ctx, content)
}

func formatHistory(history []model.Turn) string {
	if len(history) == 0 {
		return "(no earlier turns)"
	}
	var b strings.Builder
	for _, t := range history {
		switch t.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + t.Text + ")\n")
		case model.RoleAgent:
			b.WriteString("AssistantMessage(" + t.Text + ")\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
