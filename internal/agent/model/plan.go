package model

// IntentUnknown is the sentinel returned by the classifier when no catalog
// intent matches the utterance.
const IntentUnknown = "UNKNOWN"

// IntentEscalation is the internal intent used when the session files an
// escalation ticket. It is never offered to the generator.
const IntentEscalation = "CREATE_ESCALATION"

// IntentDefinition is one allowed intent and the data fields it requires
// before its task can run. Definitions are authored through the dashboard
// and live in the graph store; the conversation core only reads them.
type IntentDefinition struct {
	Name           string
	Description    string
	RequiredFields []string
}

// Sentiment is the classifier's coarse read of the user's mood.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentUnknown  Sentiment = "unknown"
)

// Turn is one entry of the rolling conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Plan is the structured per-turn interpretation of a user message. It is
// created fresh each turn by the conversation planner and cleared from the
// session once its task completes or irrecoverably errors.
type Plan struct {
	Intent         string
	Entities       map[string]string
	Sentiment      Sentiment
	NarrativePlan  string
	IsTaskOriented bool
	OriginalQuery  string

	// NeededEntity is set while the session waits for one more field.
	NeededEntity string
	// EscalationID is the ticket reference when this turn escalated.
	EscalationID string
	// Outcome is the store result attached after execution.
	Outcome *Outcome
}

// Complete reports whether every required field of def has a non-empty
// entry in the plan's entities. Completeness gates task execution.
func (p *Plan) Complete(def IntentDefinition) bool {
	return p.FirstMissing(def) == ""
}

// FirstMissing returns the first required field absent from the entities,
// in the definition's declared order, or "" when none is missing.
func (p *Plan) FirstMissing(def IntentDefinition) string {
	for _, f := range def.RequiredFields {
		if p.Entities[f] == "" {
			return f
		}
	}
	return ""
}

// Outcome is the result of executing a plan against the store: either data
// rows or an error message, optionally naming the field whose absence
// caused it.
type Outcome struct {
	Rows        []map[string]any
	Err         string
	NeededField string
}

// DataOutcome wraps result rows.
func DataOutcome(rows []map[string]any) *Outcome {
	return &Outcome{Rows: rows}
}

// ErrorOutcome wraps a failure message.
func ErrorOutcome(msg string) *Outcome {
	return &Outcome{Err: msg}
}

// IsError reports whether the outcome carries a failure.
func (o *Outcome) IsError() bool {
	return o != nil && o.Err != ""
}

// QueryPlan is the query planner's verdict for a complete plan: exactly one
// of a read query, a named write action, or the first missing field.
type QueryPlan struct {
	Query   string
	Action  string
	Data    map[string]string
	Links   []string
	Missing string
}

// ReadPlan wraps a read-only query string.
func ReadPlan(query string) QueryPlan {
	return QueryPlan{Query: query}
}

// ActionPlan wraps a named write action with its payload.
func ActionPlan(name string, data map[string]string) QueryPlan {
	return QueryPlan{Action: name, Data: data}
}

// MissingFieldPlan names the first required field still absent.
func MissingFieldPlan(field string) QueryPlan {
	return QueryPlan{Missing: field}
}

func (q QueryPlan) IsRead() bool    { return q.Query != "" }
func (q QueryPlan) IsAction() bool  { return q.Action != "" }
func (q QueryPlan) IsMissing() bool { return q.Missing != "" }
