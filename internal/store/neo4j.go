package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/graphdesk/server/internal/agent/model"
	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/pkg/ids"
	logx "github.com/graphdesk/server/pkg/logger"
)

// Graph is the Neo4j-backed entity store. Sessions are scoped per logical
// operation; the driver's pool makes concurrent use from independent chat
// connections safe.
type Graph struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewGraph(driver neo4j.DriverWithContext, database string) *Graph {
	if database == "" {
		database = "neo4j"
	}
	return &Graph{driver: driver, database: database}
}

func (g *Graph) session(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
}

func (g *Graph) SchemaSummary() string {
	return schemaSummary
}

func (g *Graph) RunRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := g.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rec.AsMap())
		}
		return rows, nil
	})
	if err != nil {
		return nil, errx.WrapNeo4j(err)
	}
	return out.([]map[string]any), nil
}

func (g *Graph) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	rows, err := g.RunRead(ctx,
		`MATCH (c:Customer {customerID: $customerId}) RETURN c.customerID AS customerId`,
		map[string]any{"customerId": customerID})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (g *Graph) LoadIntents(ctx context.Context) ([]model.IntentDefinition, error) {
	rows, err := g.RunRead(ctx, `
		MATCH (i:Intent)
		OPTIONAL MATCH (i)-[:REQUIRES_ENTITY]->(e:Entity)
		RETURN i.name AS name, i.description AS description, collect(e.name) AS fields
		ORDER BY i.name ASC`, nil)
	if err != nil {
		return nil, err
	}

	defs := make([]model.IntentDefinition, 0, len(rows))
	for _, row := range rows {
		def := model.IntentDefinition{}
		if v, ok := row["name"].(string); ok {
			def.Name = v
		}
		if v, ok := row["description"].(string); ok {
			def.Description = v
		}
		if raw, ok := row["fields"].([]any); ok {
			for _, f := range raw {
				if s, ok := f.(string); ok && s != "" {
					def.RequiredFields = append(def.RequiredFields, s)
				}
			}
		}
		if def.Name != "" {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func (g *Graph) CreateTicket(ctx context.Context, customerID string, in TicketInput) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: no customer id provided", errx.ErrAuthorization)
	}
	if in.Type == "" {
		return "", fmt.Errorf("cannot create a ticket without a type")
	}

	label := "Ticket"
	if in.Type == TicketTypeEscalation {
		label = "Escalation"
	}
	ticketID := ids.NewID(label)

	params := map[string]any{
		"customerId":  customerID,
		"orderId":     in.OrderID,
		"ticketId":    ticketID,
		"type":        in.Type,
		"description": in.Description,
		"aiAnalysis":  in.AIAnalysis,
		"now":         time.Now().UnixMilli(),
	}

	session := g.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (c:Customer {customerID: $customerId})-[:PLACED]->(o:Order {orderId: $orderId})
			CREATE (t:Ticket {ticketId: $ticketId, type: $type, description: $description,
				aiAnalysis: $aiAnalysis, status: 'Open', createdAt: $now})
			CREATE (c)-[:OPENED]->(t)
			CREATE (t)-[:REGARDING_ORDER]->(o)
			RETURN t.ticketId AS ticketId`, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return ticketID, nil
		}

		// Order missing or not owned by this customer: file the ticket
		// against the customer alone rather than dropping it.
		logx.Warn().
			Str("customerID", customerID).
			Str("orderID", in.OrderID).
			Msg("could not link ticket to order, creating unlinked ticket")

		res, err = tx.Run(ctx, `
			MATCH (c:Customer {customerID: $customerId})
			CREATE (t:Ticket {ticketId: $ticketId, type: $type, description: $description,
				aiAnalysis: $aiAnalysis, status: 'Open', createdAt: $now})
			CREATE (c)-[:OPENED]->(t)
			RETURN t.ticketId AS ticketId`, params)
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: customer %s not found", errx.ErrAuthorization, customerID)
		}
		return ticketID, nil
	})
	if err != nil {
		return "", errx.WrapNeo4j(err)
	}
	return out.(string), nil
}

func (g *Graph) CreateReturn(ctx context.Context, customerID, orderID, reason string) (map[string]any, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: no customer id provided", errx.ErrAuthorization)
	}
	if orderID == "" || reason == "" {
		return nil, fmt.Errorf("cannot process return without orderId and reason")
	}

	params := map[string]any{
		"customerId": customerID,
		"orderId":    orderID,
		"returnId":   ids.NewID("Return"),
		"reason":     reason,
		"now":        time.Now().UnixMilli(),
	}

	session := g.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (c:Customer {customerID: $customerId})-[:PLACED]->(o:Order {orderId: $orderId})
			CREATE (r:Return {returnId: $returnId, reason: $reason, status: 'Processing', createdAt: $now})
			CREATE (o)-[:HAS_RETURN]->(r)
			RETURN r.returnId AS returnId, r.status AS status`, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: order %s not found for customer %s", errx.ErrAuthorization, orderID, customerID)
		}
		return records[0].AsMap(), nil
	})
	if err != nil {
		return nil, errx.WrapNeo4j(err)
	}
	return out.(map[string]any), nil
}

var _ EntityStore = (*Graph)(nil)
