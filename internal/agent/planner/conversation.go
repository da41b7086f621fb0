package planner

import (
	"context"
	"encoding/json"

	"github.com/graphdesk/server/internal/agent/catalog"
	"github.com/graphdesk/server/internal/agent/model"
	"github.com/graphdesk/server/internal/agent/prompts"
	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/internal/llm"
	logx "github.com/graphdesk/server/pkg/logger"
)

// Conversation turns one user utterance, plus any pending incomplete plan
// and the rolling history, into a structured Plan.
type Conversation struct {
	gen llm.Generator
	cat *catalog.Catalog
}

func NewConversation(gen llm.Generator, cat *catalog.Catalog) *Conversation {
	return &Conversation{gen: gen, cat: cat}
}

// classification is the shape the classifier is instructed to return.
// Anything that does not fit is a turn-level planning failure.
type classification struct {
	Intent         string            `json:"intent"`
	Entities       map[string]string `json:"entities"`
	Sentiment      string            `json:"sentiment"`
	Plan           string            `json:"plan"`
	IsTaskOriented bool              `json:"isTaskOriented"`
}

// Classify runs the classifier and applies the deterministic guards: the
// catalog is the authority on intent names, entity merging follows the
// discard-on-mismatch policy, and any non-conversational intent is forced
// task-oriented regardless of what the model claimed.
func (p *Conversation) Classify(ctx context.Context, utterance string, prior *model.Plan, history []model.Turn) (*model.Plan, error) {
	prompt, err := prompts.RenderClassify(ctx, p.cat.Describe(), history, prior, utterance)
	if err != nil {
		return nil, errx.Planning(err)
	}

	raw, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, errx.Planning(err)
	}

	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, errx.Planning(err)
	}

	var parsed classification
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, errx.Planning(err)
	}
	if parsed.Intent == "" {
		return nil, errx.Planning(errNoIntent)
	}

	intent := parsed.Intent
	if !p.cat.Known(intent) {
		logx.Debug().Str("intent", intent).Msg("classifier produced an unlisted intent, treating as UNKNOWN")
		intent = model.IntentUnknown
	}

	entities := make(map[string]string)
	if prior != nil && prior.Intent == intent {
		// Continuation of the pending request: new values on top of old.
		for k, v := range prior.Entities {
			entities[k] = v
		}
	}
	for k, v := range parsed.Entities {
		if v != "" {
			entities[k] = v
		}
	}

	plan := &model.Plan{
		Intent:         intent,
		Entities:       entities,
		Sentiment:      normalizeSentiment(parsed.Sentiment),
		NarrativePlan:  parsed.Plan,
		IsTaskOriented: parsed.IsTaskOriented,
		OriginalQuery:  utterance,
	}

	if catalog.Conversational(intent) {
		// Chit-chat never runs a task, whatever the model claimed.
		plan.IsTaskOriented = false
	} else {
		// The model under-classifying a real task as chit-chat must not
		// suppress execution.
		plan.IsTaskOriented = true
	}

	logx.Debug().
		Str("intent", plan.Intent).
		Int("entities", len(plan.Entities)).
		Bool("task_oriented", plan.IsTaskOriented).
		Msg("utterance classified")

	return plan, nil
}

func normalizeSentiment(s string) model.Sentiment {
	switch model.Sentiment(s) {
	case model.SentimentPositive, model.SentimentNeutral, model.SentimentNegative:
		return model.Sentiment(s)
	default:
		return model.SentimentUnknown
	}
}
