package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphdesk/server/internal/agent/model"
	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/internal/store"
)

type scriptedGen struct {
	responses []string
	calls     int
}

func (g *scriptedGen) Generate(context.Context, string) (string, error) {
	g.calls++
	if len(g.responses) == 0 {
		return "", errors.New("scripted generator exhausted")
	}
	out := g.responses[0]
	g.responses = g.responses[1:]
	return out, nil
}

// recordingStore scripts read results per call and records writes.
type recordingStore struct {
	readResults []readResult
	readCalls   int
	readQueries []string
	readParams  []map[string]any

	ticketID     string
	ticketErr    error
	gotCustomer  string
	gotTicket    store.TicketInput
	returnResult map[string]any
	returnErr    error
	gotOrderID   string
	gotReason    string
}

type readResult struct {
	rows []map[string]any
	err  error
}

func (s *recordingStore) RunRead(_ context.Context, query string, params map[string]any) ([]map[string]any, error) {
	s.readCalls++
	s.readQueries = append(s.readQueries, query)
	s.readParams = append(s.readParams, params)
	if len(s.readResults) == 0 {
		return nil, errors.New("scripted store exhausted")
	}
	r := s.readResults[0]
	s.readResults = s.readResults[1:]
	return r.rows, r.err
}

func (s *recordingStore) CustomerExists(context.Context, string) (bool, error) { return true, nil }
func (s *recordingStore) LoadIntents(context.Context) ([]model.IntentDefinition, error) {
	return nil, nil
}
func (s *recordingStore) CreateTicket(_ context.Context, customerID string, in store.TicketInput) (string, error) {
	s.gotCustomer = customerID
	s.gotTicket = in
	return s.ticketID, s.ticketErr
}
func (s *recordingStore) CreateReturn(_ context.Context, customerID, orderID, reason string) (map[string]any, error) {
	s.gotCustomer = customerID
	s.gotOrderID = orderID
	s.gotReason = reason
	return s.returnResult, s.returnErr
}
func (s *recordingStore) SchemaSummary() string { return "test schema" }

func newExecutor(st store.EntityStore, gen *scriptedGen, attempts int) *Executor {
	return New(st, gen, model.ExecutorConfig{RepairAttempts: attempts})
}

func TestBlocked(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"MATCH (c:Customer {customerID: $customerId}) RETURN c.name", false},
		{"MATCH (n) DETACH DELETE n", true},
		{"match (n) detach delete n", true},
		{"MATCH (o:Order) SET o.status = 'Cancelled' RETURN o", true},
		{"CREATE (t:Ticket) RETURN t", true},
		{"MERGE (i:Intent {name: 'X'}) RETURN i", true},
		{"MATCH (t:Ticket) REMOVE t.status RETURN t", true},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Blocked(tt.query), "query: %q", tt.query)
	}
}

func TestExecuteReadReturnsRows(t *testing.T) {
	rows := []map[string]any{{"status": "Shipped"}}
	st := &recordingStore{readResults: []readResult{{rows: rows}}}
	ex := newExecutor(st, &scriptedGen{}, 2)

	out := ex.Execute(context.Background(), model.ReadPlan("MATCH (o:Order) RETURN o.status AS status"),
		"CHECK_ORDER_STATUS", map[string]string{"orderId": "555"}, "CUST-AB12CD")

	require.False(t, out.IsError())
	assert.Equal(t, rows, out.Rows)
	assert.Equal(t, "555", st.readParams[0]["orderId"])
	assert.Equal(t, "CUST-AB12CD", st.readParams[0]["customerId"], "customer identity is always injected")
}

func TestExecuteReadEmptyResult(t *testing.T) {
	st := &recordingStore{readResults: []readResult{{rows: nil}}}
	ex := newExecutor(st, &scriptedGen{}, 2)

	out := ex.Execute(context.Background(), model.ReadPlan("MATCH (o:Order) RETURN o"),
		"CHECK_ORDER_STATUS", nil, "CUST-AB12CD")

	require.True(t, out.IsError())
	assert.Equal(t, "No results found.", out.Err)
}

func TestExecuteReadRejectsMutations(t *testing.T) {
	st := &recordingStore{}
	ex := newExecutor(st, &scriptedGen{}, 2)

	out := ex.Execute(context.Background(), model.ReadPlan("MATCH (n) DETACH DELETE n RETURN n"),
		"CHECK_ORDER_STATUS", nil, "CUST-AB12CD")

	require.True(t, out.IsError())
	assert.Equal(t, "The planned query was rejected for security reasons.", out.Err)
	assert.Zero(t, st.readCalls, "a blocked query must never reach the store")
}

func TestExecuteReadRepairsFailingQuery(t *testing.T) {
	st := &recordingStore{readResults: []readResult{
		{err: errors.New("Unknown function 'o.stats'")},
		{rows: []map[string]any{{"status": "Delivered"}}},
	}}
	gen := &scriptedGen{responses: []string{
		`{"query":"MATCH (o:Order {orderId: $orderId}) RETURN o.status AS status"}`,
	}}
	ex := newExecutor(st, gen, 2)

	out := ex.Execute(context.Background(), model.ReadPlan("MATCH (o:Order) RETURN o.stats"),
		"CHECK_ORDER_STATUS", map[string]string{"orderId": "555"}, "CUST-AB12CD")

	require.False(t, out.IsError())
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 2, st.readCalls)
	assert.Contains(t, st.readQueries[1], "o.status")
}

func TestExecuteReadRepairBudgetExhausted(t *testing.T) {
	st := &recordingStore{readResults: []readResult{
		{err: errors.New("syntax error near RETRUN")},
		{err: errors.New("syntax error near RETRUN")},
		{err: errors.New("syntax error near RETRUN")},
	}}
	gen := &scriptedGen{responses: []string{
		`{"query":"MATCH (o:Order) RETRUN o"}`,
		`{"query":"MATCH (o:Order) RETRUN o"}`,
	}}
	ex := newExecutor(st, gen, 2)

	out := ex.Execute(context.Background(), model.ReadPlan("MATCH (o:Order) RETRUN o"),
		"CHECK_ORDER_STATUS", nil, "CUST-AB12CD")

	require.True(t, out.IsError())
	assert.Equal(t, "syntax error near RETRUN", out.Err)
	assert.Equal(t, 2, gen.calls, "repair requests are bounded")
	assert.Equal(t, 3, st.readCalls)
}

func TestExecuteReadBlocksRepairedQueryToo(t *testing.T) {
	st := &recordingStore{readResults: []readResult{
		{err: errors.New("syntax error")},
	}}
	gen := &scriptedGen{responses: []string{
		`{"query":"MATCH (n) DETACH DELETE n"}`,
	}}
	ex := newExecutor(st, gen, 2)

	out := ex.Execute(context.Background(), model.ReadPlan("MATCH (o:Order) RETRUN o"),
		"CHECK_ORDER_STATUS", nil, "CUST-AB12CD")

	require.True(t, out.IsError())
	assert.Equal(t, "The planned query was rejected for security reasons.", out.Err)
	assert.Equal(t, 1, st.readCalls, "the repaired mutation never reaches the store")
}

func TestExecuteActionCreateTicketInfersType(t *testing.T) {
	st := &recordingStore{ticketID: "TKT-A3F21C"}
	ex := newExecutor(st, &scriptedGen{}, 2)

	plan := model.ActionPlan(ActionCreateTicket, map[string]string{
		"orderId":     "555",
		"description": "arrived crushed",
	})
	out := ex.Execute(context.Background(), plan, "REPORT_DAMAGED_ITEM", nil, "CUST-AB12CD")

	require.False(t, out.IsError())
	assert.Equal(t, "DAMAGED_ITEM", st.gotTicket.Type)
	assert.Equal(t, "555", st.gotTicket.OrderID)
	assert.Equal(t, "CUST-AB12CD", st.gotCustomer)
	assert.Equal(t, "TKT-A3F21C", out.Rows[0]["ticketId"])
	assert.Equal(t, true, out.Rows[0]["success"])
}

func TestExecuteActionCreateTicketKeepsExplicitType(t *testing.T) {
	st := &recordingStore{ticketID: "TKT-000001"}
	ex := newExecutor(st, &scriptedGen{}, 2)

	plan := model.ActionPlan(ActionCreateTicket, map[string]string{"type": "MISSING_ITEM"})
	out := ex.Execute(context.Background(), plan, "REPORT_MISSING_ITEM", nil, "CUST-AB12CD")

	require.False(t, out.IsError())
	assert.Equal(t, "MISSING_ITEM", st.gotTicket.Type)
}

func TestExecuteActionProcessReturn(t *testing.T) {
	st := &recordingStore{returnResult: map[string]any{"returnId": "RET-9F00AA", "status": "Processing"}}
	ex := newExecutor(st, &scriptedGen{}, 2)

	plan := model.ActionPlan(ActionProcessReturn, map[string]string{
		"orderId": "555",
		"reason":  "wrong size",
	})
	out := ex.Execute(context.Background(), plan, "PROCESS_RETURN", nil, "CUST-AB12CD")

	require.False(t, out.IsError())
	assert.Equal(t, "555", st.gotOrderID)
	assert.Equal(t, "wrong size", st.gotReason)
	assert.Equal(t, "RET-9F00AA", out.Rows[0]["returnId"])
	assert.Equal(t, true, out.Rows[0]["success"])
}

func TestExecuteActionAuthorizationFailure(t *testing.T) {
	st := &recordingStore{returnErr: errx.ErrAuthorization}
	ex := newExecutor(st, &scriptedGen{}, 2)

	plan := model.ActionPlan(ActionProcessReturn, map[string]string{"orderId": "555", "reason": "x"})
	out := ex.Execute(context.Background(), plan, "PROCESS_RETURN", nil, "CUST-AB12CD")

	require.True(t, out.IsError())
	assert.Equal(t, errx.ErrAuthorization.Error(), out.Err)
}

func TestExecuteActionStoreFailure(t *testing.T) {
	st := &recordingStore{ticketErr: errors.New("neo4j down")}
	ex := newExecutor(st, &scriptedGen{}, 2)

	plan := model.ActionPlan(ActionCreateTicket, map[string]string{"description": "broken"})
	out := ex.Execute(context.Background(), plan, "REPORT_DAMAGED_ITEM", nil, "CUST-AB12CD")

	require.True(t, out.IsError())
	assert.Equal(t, "Failed to create the ticket.", out.Err)
}

func TestExecuteUnsupportedAction(t *testing.T) {
	ex := newExecutor(&recordingStore{}, &scriptedGen{}, 2)

	out := ex.Execute(context.Background(), model.ActionPlan("DROP_DATABASE", nil),
		"CHECK_ORDER_STATUS", nil, "CUST-AB12CD")

	require.True(t, out.IsError())
	assert.Equal(t, "The planned action is not supported.", out.Err)
}

func TestExecuteMissingFieldPlan(t *testing.T) {
	ex := newExecutor(&recordingStore{}, &scriptedGen{}, 2)

	out := ex.Execute(context.Background(), model.MissingFieldPlan("orderId"),
		"CHECK_ORDER_STATUS", nil, "CUST-AB12CD")

	require.True(t, out.IsError())
	assert.Equal(t, "orderId", out.NeededField)
}
