package store

import (
	"context"

	"github.com/graphdesk/server/internal/agent/model"
)

// EntityStore is the contract the conversation core has with the graph
// database. The core never assumes node or relationship internals beyond
// the labels and properties it queries for.
type EntityStore interface {
	// RunRead executes a parameterized read query and returns its rows.
	RunRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// CustomerExists reports whether the customer identifier resolves to a
	// known Customer node.
	CustomerExists(ctx context.Context, customerID string) (bool, error)

	// LoadIntents fetches every intent definition with its required fields.
	LoadIntents(ctx context.Context) ([]model.IntentDefinition, error)

	// CreateTicket files a support ticket owned by the customer, linked to
	// the order when it can be matched. Returns the ticket identifier.
	CreateTicket(ctx context.Context, customerID string, in TicketInput) (string, error)

	// CreateReturn opens a return on an order the customer placed.
	CreateReturn(ctx context.Context, customerID, orderID, reason string) (map[string]any, error)

	// SchemaSummary describes the graph shape for the query planner prompt.
	SchemaSummary() string
}

// TicketInput carries the fields of a new support ticket.
type TicketInput struct {
	OrderID     string
	Type        string
	Description string
	// AIAnalysis holds the classifier's failed hypothesis for escalations,
	// shown to agents and reused by the learning loop.
	AIAnalysis string
}

// TicketTypeEscalation marks tickets created automatically when no known
// intent matched the utterance.
const TicketTypeEscalation = "ESCALATION"

// schemaSummary mirrors the live graph layout. Kept static; the shape only
// changes with a schema migration.
const schemaSummary = `This is the schema for an e-commerce post-purchase support graph database.
## Node Labels & properties: Customer(customerID, name), Order(orderId, datePlaced, status), Product(productID, name), Shipment(shipmentID, status), Ticket(ticketId, type, status), Return(returnId, reason, status).
## Relationships: (Customer)-[:PLACED]->(Order), (Order)-[:CONTAINS]->(Product), (Order)-[:FULFILLED_BY]->(Shipment), (Customer)-[:OPENED]->(Ticket), (Ticket)-[:REGARDING_ORDER]->(Order), (Order)-[:HAS_RETURN]->(Return).`
