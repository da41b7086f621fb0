package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphdesk/server/internal/agent/catalog"
	"github.com/graphdesk/server/internal/agent/composer"
	"github.com/graphdesk/server/internal/agent/executor"
	"github.com/graphdesk/server/internal/agent/model"
	"github.com/graphdesk/server/internal/agent/planner"
	"github.com/graphdesk/server/internal/agent/repo"
	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/internal/store"
)

type scriptedGen struct {
	responses []string
	err       error
	calls     int
}

func (g *scriptedGen) Generate(context.Context, string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", errors.New("scripted generator exhausted")
	}
	out := g.responses[0]
	g.responses = g.responses[1:]
	return out, nil
}

type fakeStore struct {
	defs      []model.IntentDefinition
	exists    bool
	ticketID  string
	ticketErr error

	gotCustomer string
	gotTicket   *store.TicketInput
}

func (s *fakeStore) RunRead(context.Context, string, map[string]any) ([]map[string]any, error) {
	return []map[string]any{{"status": "Shipped"}}, nil
}
func (s *fakeStore) CustomerExists(context.Context, string) (bool, error) { return s.exists, nil }
func (s *fakeStore) LoadIntents(context.Context) ([]model.IntentDefinition, error) {
	return s.defs, nil
}
func (s *fakeStore) CreateTicket(_ context.Context, customerID string, in store.TicketInput) (string, error) {
	s.gotCustomer = customerID
	s.gotTicket = &in
	return s.ticketID, s.ticketErr
}
func (s *fakeStore) CreateReturn(context.Context, string, string, string) (map[string]any, error) {
	return map[string]any{"returnId": "RET-9F00AA"}, nil
}
func (s *fakeStore) SchemaSummary() string { return "test schema" }

func newDeps(t *testing.T, st *fakeStore, gen *scriptedGen) Deps {
	t.Helper()

	cat := catalog.New(st)
	require.NoError(t, cat.Reload(context.Background()))

	cfg := model.ConversationConfig{}
	cfg.History.MaxTurns = 10
	cfg.Escalation.MinLength = 15

	return Deps{
		Planner:      planner.NewConversation(gen, cat),
		QueryPlanner: planner.NewQuery(gen, cat, st.SchemaSummary()),
		Executor:     executor.New(st, gen, model.ExecutorConfig{RepairAttempts: 2}),
		Composer:     composer.New(gen),
		Catalog:      cat,
		Store:        st,
		History:      repo.NewMemoryHistoryRepository(cfg.History.MaxTurns),
		Gen:          gen,
		Config:       cfg,
	}
}

func TestMultiTurnEntityMerge(t *testing.T) {
	st := &fakeStore{
		exists:   true,
		ticketID: "TKT-A3F21C",
		defs: []model.IntentDefinition{
			{Name: "REPORT_DAMAGED_ITEM", RequiredFields: []string{"orderId", "description"}},
		},
	}
	gen := &scriptedGen{responses: []string{
		`{"intent":"REPORT_DAMAGED_ITEM","entities":{"orderId":"555"},"sentiment":"negative","plan":"file a damage ticket","isTaskOriented":true}`,
		"Which item was damaged, and what happened?",
		`{"intent":"REPORT_DAMAGED_ITEM","entities":{"description":"the box was crushed"},"sentiment":"negative","isTaskOriented":true}`,
		`{"action":"CREATE_TICKET","data":{}}`,
		"Done! Your ticket TKT-A3F21C has been filed.",
	}}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-AB12CD")

	reply := sess.HandleMessage(context.Background(), "my order 555 arrived damaged")
	assert.Equal(t, "Which item was damaged, and what happened?", reply)
	require.NotNil(t, sess.pending, "an incomplete plan waits for the next turn")
	assert.Equal(t, "description", sess.pending.NeededEntity)

	reply = sess.HandleMessage(context.Background(), "the box was crushed")
	assert.Equal(t, "Done! Your ticket TKT-A3F21C has been filed.", reply)

	require.NotNil(t, st.gotTicket)
	assert.Equal(t, "555", st.gotTicket.OrderID, "the order id from turn one survives the merge")
	assert.Equal(t, "DAMAGED_ITEM", st.gotTicket.Type)
	assert.Equal(t, "the box was crushed", st.gotTicket.Description)
	assert.Equal(t, "CUST-AB12CD", st.gotCustomer)
	assert.Nil(t, sess.pending, "a completed task leaves the session idle")
}

func TestPendingPlanDiscardedOnIntentSwitch(t *testing.T) {
	st := &fakeStore{
		exists: true,
		defs: []model.IntentDefinition{
			{Name: "REPORT_DAMAGED_ITEM", RequiredFields: []string{"orderId", "description"}},
		},
	}
	gen := &scriptedGen{responses: []string{
		`{"intent":"REPORT_DAMAGED_ITEM","entities":{"orderId":"555"},"sentiment":"negative","isTaskOriented":true}`,
		"What happened to the item?",
		`{"intent":"GREETING","entities":{},"sentiment":"positive","isTaskOriented":false}`,
		"Hello! How can I help?",
	}}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-AB12CD")

	sess.HandleMessage(context.Background(), "order 555 arrived damaged")
	require.NotNil(t, sess.pending)

	reply := sess.HandleMessage(context.Background(), "hi!")
	assert.Equal(t, "Hello! How can I help?", reply)
	assert.Nil(t, sess.pending, "changing the subject abandons the pending request")
}

func TestUnknownIntentEscalates(t *testing.T) {
	st := &fakeStore{exists: true, ticketID: "TKT-ESC9A1"}
	gen := &scriptedGen{responses: []string{
		`{"intent":"UNKNOWN","entities":{},"sentiment":"negative","isTaskOriented":false}`,
		`{"hypothesis":"No intent covers invoice corrections.","closestIntent":"NONE"}`,
		"I could not handle that myself, so I have passed it to a human agent. Your reference is TKT-ESC9A1.",
	}}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-AB12CD")

	text := "I need the VAT number corrected on my January invoice"
	reply := sess.HandleMessage(context.Background(), text)

	assert.Contains(t, reply, "TKT-ESC9A1")
	require.NotNil(t, st.gotTicket)
	assert.Equal(t, store.TicketTypeEscalation, st.gotTicket.Type)
	assert.Equal(t, text, st.gotTicket.Description)
	assert.Contains(t, st.gotTicket.AIAnalysis, "invoice corrections")
}

func TestShortUnknownUtteranceDoesNotEscalate(t *testing.T) {
	st := &fakeStore{exists: true}
	gen := &scriptedGen{responses: []string{
		`{"intent":"UNKNOWN","entities":{},"sentiment":"neutral","isTaskOriented":false}`,
		"Sorry, could you say a bit more about what you need?",
	}}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-AB12CD")

	reply := sess.HandleMessage(context.Background(), "huh?")
	assert.Equal(t, "Sorry, could you say a bit more about what you need?", reply)
	assert.Nil(t, st.gotTicket, "short confusion is clarified, not escalated")
}

func TestEscalationSurvivesHypothesisFailure(t *testing.T) {
	st := &fakeStore{exists: true, ticketID: "TKT-ESC001"}
	gen := &scriptedGen{responses: []string{
		`{"intent":"UNKNOWN","entities":{},"sentiment":"negative","isTaskOriented":false}`,
		"this is not JSON at all",
		"A human agent will follow up shortly.",
	}}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-AB12CD")

	sess.HandleMessage(context.Background(), "please merge my two loyalty accounts into one")
	require.NotNil(t, st.gotTicket)
	assert.Empty(t, st.gotTicket.AIAnalysis)
	assert.Equal(t, store.TicketTypeEscalation, st.gotTicket.Type)
}

func TestUnresolvedCustomerGetsReauthNotice(t *testing.T) {
	st := &fakeStore{exists: false}
	gen := &scriptedGen{}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-GONE")

	reply := sess.HandleMessage(context.Background(), "where is my order?")
	assert.Equal(t, reauthNotice, reply)
	assert.Zero(t, gen.calls, "no model call is made for an unverified session")
}

func TestClassificationFailureApologizesAndResets(t *testing.T) {
	st := &fakeStore{
		exists: true,
		defs: []model.IntentDefinition{
			{Name: "REPORT_DAMAGED_ITEM", RequiredFields: []string{"orderId", "description"}},
		},
	}
	gen := &scriptedGen{responses: []string{
		`{"intent":"REPORT_DAMAGED_ITEM","entities":{"orderId":"555"},"sentiment":"negative","isTaskOriented":true}`,
		"What happened to the item?",
		"complete gibberish with no braces",
	}}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-AB12CD")

	sess.HandleMessage(context.Background(), "order 555 arrived damaged")
	require.NotNil(t, sess.pending)

	reply := sess.HandleMessage(context.Background(), "the lid is cracked")
	assert.Equal(t, apology, reply)
	assert.Nil(t, sess.pending, "a failed turn never wedges the session")
}

func TestAuthorizationFailureOnActionGetsReauthNotice(t *testing.T) {
	st := &fakeStore{
		exists:    true,
		ticketErr: errx.ErrAuthorization,
		defs: []model.IntentDefinition{
			{Name: "REPORT_DAMAGED_ITEM", RequiredFields: []string{"orderId", "description"}},
		},
	}
	gen := &scriptedGen{responses: []string{
		`{"intent":"REPORT_DAMAGED_ITEM","entities":{"orderId":"555","description":"crushed"},"sentiment":"negative","isTaskOriented":true}`,
		`{"action":"CREATE_TICKET","data":{}}`,
	}}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-AB12CD")

	reply := sess.HandleMessage(context.Background(), "order 555 arrived crushed, file a ticket")
	assert.Equal(t, reauthNotice, reply)
}

func TestTurnsAreRecorded(t *testing.T) {
	st := &fakeStore{exists: true}
	gen := &scriptedGen{responses: []string{
		`{"intent":"GREETING","entities":{},"sentiment":"positive","isTaskOriented":false}`,
		"Hello!",
	}}

	deps := newDeps(t, st, gen)
	sess := New(context.Background(), deps, "CUST-AB12CD")

	sess.HandleMessage(context.Background(), "hi")

	turns, err := deps.History.Recent(context.Background(), sess.id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, model.Turn{Role: model.RoleUser, Text: "hi"}, turns[0])
	assert.Equal(t, model.RoleAgent, turns[1].Role)

	sess.Close(context.Background())
	turns, err = deps.History.Recent(context.Background(), sess.id)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestEscalationThresholdCountsRunes(t *testing.T) {
	st := &fakeStore{exists: true, ticketID: "TKT-ESC777"}
	gen := &scriptedGen{responses: []string{
		`{"intent":"UNKNOWN","entities":{},"sentiment":"neutral","isTaskOriented":false}`,
		`{"hypothesis":"unclear","closestIntent":"NONE"}`,
		"Escalated.",
	}}

	sess := New(context.Background(), newDeps(t, st, gen), "CUST-AB12CD")

	// 16 runes, multi-byte: long enough to escalate.
	text := strings.Repeat("ü", 16)
	sess.HandleMessage(context.Background(), text)
	require.NotNil(t, st.gotTicket)
}
