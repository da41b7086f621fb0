package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/graphdesk/server/internal/agent/catalog"
	"github.com/graphdesk/server/internal/agent/composer"
	"github.com/graphdesk/server/internal/agent/executor"
	"github.com/graphdesk/server/internal/agent/model"
	"github.com/graphdesk/server/internal/agent/planner"
	"github.com/graphdesk/server/internal/agent/prompts"
	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/internal/llm"
	"github.com/graphdesk/server/internal/store"
	logx "github.com/graphdesk/server/pkg/logger"
)

// Fixed user-facing notices. Every failure path in the core ends in one of
// these or in composed prose; none of them ends the session.
const (
	reauthNotice = "Your session could not be verified. Please log out and sign in again."
	apology      = "Sorry, I encountered an error. Please try again."
)

// Deps bundles the collaborators a session composes into the turn loop.
type Deps struct {
	Planner      *planner.Conversation
	QueryPlanner *planner.Query
	Executor     *executor.Executor
	Composer     *composer.Composer
	Catalog      *catalog.Catalog
	Store        store.EntityStore
	History      model.HistoryRepository
	Gen          llm.Generator
	Config       model.ConversationConfig
}

// Session owns the per-connection conversation state. One connection owns
// one session exclusively; turn processing is sequential per session, so no
// locking is needed beyond what the shared collaborators provide.
type Session struct {
	deps       Deps
	id         string
	customerID string
	authorized bool

	// pending is the at-most-one incomplete plan awaiting another field.
	pending *model.Plan
}

// New creates the session for a freshly connected customer. The customer
// identity is resolved once here; a stale identifier turns every later
// message into a fixed re-authentication notice.
func New(ctx context.Context, deps Deps, customerID string) *Session {
	s := &Session{
		deps:       deps,
		id:         uuid.NewString(),
		customerID: customerID,
	}

	ok, err := deps.Store.CustomerExists(ctx, customerID)
	if err != nil {
		logx.Error().Err(err).Str("customerID", customerID).Msg("customer lookup failed on connect")
	}
	s.authorized = err == nil && ok

	if !s.authorized {
		logx.Warn().Str("customerID", customerID).Msg("session opened with unresolved customer id")
	}
	return s
}

// CustomerID returns the identity this session acts for.
func (s *Session) CustomerID() string { return s.customerID }

// HandleMessage runs one full turn and always returns a displayable reply.
func (s *Session) HandleMessage(ctx context.Context, text string) string {
	if !s.authorized {
		return reauthNotice
	}

	history, err := s.deps.History.Recent(ctx, s.id)
	if err != nil {
		logx.Error().Err(err).Str("sessionID", s.id).Msg("history load failed, continuing without context")
		history = nil
	}

	reply := s.processTurn(ctx, text, history)

	s.record(ctx, model.Turn{Role: model.RoleUser, Text: text})
	s.record(ctx, model.Turn{Role: model.RoleAgent, Text: reply})
	return reply
}

func (s *Session) processTurn(ctx context.Context, text string, history []model.Turn) string {
	plan, err := s.deps.Planner.Classify(ctx, text, s.pending, history)
	if err != nil {
		// A corrupt plan must not wedge the session.
		logx.Error().Err(err).Str("sessionID", s.id).Msg("classification failed, resetting to idle")
		s.pending = nil
		return apology
	}

	// Whatever happens next, the new plan supersedes any pending one.
	// Discard-on-mismatch: a different intent abandons the old request.
	s.pending = nil

	if plan.Intent == model.IntentUnknown && len([]rune(text)) > s.deps.Config.Escalation.MinLength {
		s.escalate(ctx, plan, text)
	}

	if plan.IsTaskOriented && plan.Intent != model.IntentUnknown {
		if done := s.runTask(ctx, plan); done != "" {
			return done
		}
	}

	reply, err := s.deps.Composer.Compose(ctx, plan)
	if err != nil {
		logx.Error().Err(err).Str("sessionID", s.id).Msg("compose failed")
		s.pending = nil
		return apology
	}
	return reply
}

// runTask plans and executes the turn's task, updating session state. It
// returns a non-empty reply only when the turn must bypass composition.
func (s *Session) runTask(ctx context.Context, plan *model.Plan) string {
	qp, err := s.deps.QueryPlanner.PlanQuery(ctx, plan.Intent, plan.Entities)
	if err != nil {
		logx.Error().Err(err).Str("intent", plan.Intent).Msg("query planning failed")
		return apology
	}

	if qp.IsMissing() {
		plan.NeededEntity = qp.Missing
		s.pending = plan
		return ""
	}

	outcome := s.deps.Executor.Execute(ctx, qp, plan.Intent, plan.Entities, s.customerID)
	plan.Outcome = outcome

	if outcome.IsError() && outcome.Err == errx.ErrAuthorization.Error() {
		return reauthNotice
	}
	return ""
}

// escalate files an ESCALATION ticket for an unclassifiable request,
// carrying the utterance and a best-effort hypothesis for the agents. Task
// execution is suppressed for the rest of the turn.
func (s *Session) escalate(ctx context.Context, plan *model.Plan, text string) {
	hypothesis := s.hypothesis(ctx, text)

	ticketID, err := Escalate(ctx, s.deps.Store, text, hypothesis, s.customerID)
	if err != nil {
		logx.Error().Err(err).Str("customerID", s.customerID).Msg("escalation ticket creation failed")
	} else {
		plan.EscalationID = ticketID
		logx.Info().Str("ticketID", ticketID).Str("customerID", s.customerID).Msg("request escalated to a human agent")
	}
	plan.IsTaskOriented = false
}

// hypothesis asks the generator why nothing matched. Best effort only; an
// escalation without analysis is still filed.
func (s *Session) hypothesis(ctx context.Context, text string) string {
	prompt, err := prompts.RenderHypothesis(ctx, s.deps.Catalog.Describe(), text)
	if err != nil {
		return ""
	}
	raw, err := s.deps.Gen.Generate(ctx, prompt)
	if err != nil {
		logx.Warn().Err(err).Msg("hypothesis generation failed")
		return ""
	}
	obj, err := planner.ExtractJSONObject(raw)
	if err != nil {
		return ""
	}
	return obj
}

func (s *Session) record(ctx context.Context, turn model.Turn) {
	if err := s.deps.History.AddTurn(ctx, s.id, turn); err != nil {
		logx.Error().Err(err).Str("sessionID", s.id).Msg("failed to record turn")
	}
}

// Close drops the session's rolling history. Called on disconnect.
func (s *Session) Close(ctx context.Context) {
	if err := s.deps.History.Clear(ctx, s.id); err != nil {
		logx.Error().Err(err).Str("sessionID", s.id).Msg("failed to clear session history")
	}
}

// Escalate creates the ESCALATION ticket used both by the chat loop and the
// dashboard boundary. The ticket is unlinked to any order; agents triage it
// from the escalations queue.
func Escalate(ctx context.Context, st store.EntityStore, text, hypothesis, customerID string) (string, error) {
	return st.CreateTicket(ctx, customerID, store.TicketInput{
		Type:        store.TicketTypeEscalation,
		Description: text,
		AIAnalysis:  hypothesis,
	})
}
