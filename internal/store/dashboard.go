package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	errx "github.com/graphdesk/server/internal/core/error"
)

// Dashboard operations back the agent-facing CRUD screens and the learning
// loop. They are not part of the conversation core's EntityStore contract.

func (g *Graph) ListTickets(ctx context.Context) ([]map[string]any, error) {
	return g.RunRead(ctx, `
		MATCH (c:Customer)-[:OPENED]->(t:Ticket)
		WHERE t.type <> $escalation
		RETURN t.ticketId AS ticketId, t.type AS type, t.description AS description,
		       t.status AS status, t.createdAt AS createdAt, c.name AS customerName
		ORDER BY t.createdAt DESC`,
		map[string]any{"escalation": TicketTypeEscalation})
}

func (g *Graph) ListEscalations(ctx context.Context) ([]map[string]any, error) {
	return g.RunRead(ctx, `
		MATCH (c:Customer)-[:OPENED]->(t:Ticket)
		WHERE t.type = $escalation
		RETURN t.ticketId AS ticketId, t.type AS type, t.description AS description,
		       t.status AS status, t.createdAt AS createdAt, c.name AS customerName,
		       t.aiAnalysis AS aiAnalysis
		ORDER BY t.createdAt DESC`,
		map[string]any{"escalation": TicketTypeEscalation})
}

func (g *Graph) ListSuggestions(ctx context.Context) ([]map[string]any, error) {
	return g.RunRead(ctx, `
		MATCH (s:Suggestion {status: 'Pre-Analyzed'})
		OPTIONAL MATCH (c:Customer {customerID: s.customerId})
		RETURN s.suggestionId AS id, s.query AS query, s.plan AS plan,
		       s.failedHypothesis AS failedHypothesis,
		       s.status AS status, s.createdAt AS createdAt, c.name AS customerName,
		       s.proposedIntent AS proposedIntent,
		       s.proposedEntities AS proposedEntities,
		       s.proposedDescription AS proposedDescription
		ORDER BY s.createdAt DESC`, nil)
}

// ResolveTicket marks a ticket resolved and returns the original query and
// failed hypothesis so the learning loop can synthesize a rule from them.
func (g *Graph) ResolveTicket(ctx context.Context, ticketID, resolutionNote string) (query, hypothesis string, err error) {
	session := g.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (t:Ticket {ticketId: $ticketId})
			SET t.status = 'Resolved', t.resolutionNote = $note
			RETURN t.description AS originalQuery, t.aiAnalysis AS aiAnalysis`,
			map[string]any{"ticketId": ticketID, "note": resolutionNote})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("ticket %s not found", ticketID)
		}
		return records[0].AsMap(), nil
	})
	if err != nil {
		return "", "", errx.WrapNeo4j(err)
	}

	row := out.(map[string]any)
	query, _ = row["originalQuery"].(string)
	hypothesis, _ = row["aiAnalysis"].(string)
	return query, hypothesis, nil
}

// SuggestionInput is a proposed rule awaiting agent review.
type SuggestionInput struct {
	Query               string
	Guidance            string
	FailedHypothesis    string
	AgentID             string
	CustomerID          string
	ProposedIntent      string
	ProposedEntities    []string
	ProposedDescription string
}

func (g *Graph) CreateSuggestion(ctx context.Context, in SuggestionInput) (string, error) {
	id := uuid.NewString()
	agentID := in.AgentID
	if agentID == "" {
		agentID = "unknown"
	}

	session := g.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			CREATE (s:Suggestion {
				suggestionId: $id,
				query: $query,
				plan: $guidance,
				failedHypothesis: $hypothesis,
				customerId: $customerId,
				status: 'Pre-Analyzed', agentId: $agentId, createdAt: $now,
				proposedIntent: $intent, proposedEntities: $entities, proposedDescription: $desc
			})`,
			map[string]any{
				"id":         id,
				"query":      in.Query,
				"guidance":   in.Guidance,
				"hypothesis": in.FailedHypothesis,
				"customerId": in.CustomerID,
				"agentId":    agentID,
				"now":        time.Now().UnixMilli(),
				"intent":     in.ProposedIntent,
				"entities":   in.ProposedEntities,
				"desc":       in.ProposedDescription,
			})
		return nil, err
	})
	if err != nil {
		return "", errx.WrapNeo4j(err)
	}
	return id, nil
}

func (g *Graph) UpdateSuggestion(ctx context.Context, id, intentName, description string, requiredFields []string) error {
	session := g.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (s:Suggestion {suggestionId: $id})
			SET s.proposedIntent = $intentName,
			    s.proposedDescription = $description,
			    s.proposedEntities = $fields`,
			map[string]any{"id": id, "intentName": intentName, "description": description, "fields": requiredFields})
		return nil, err
	})
	return errx.WrapNeo4j(err)
}

func (g *Graph) DeleteSuggestion(ctx context.Context, id string) error {
	session := g.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (s:Suggestion {suggestionId: $id}) DELETE s`,
			map[string]any{"id": id})
		return nil, err
	})
	return errx.WrapNeo4j(err)
}

// UpsertIntent merges an Intent node and rebuilds its REQUIRES_ENTITY edges.
// Used both when approving a suggestion and when editing a live intent.
func (g *Graph) UpsertIntent(ctx context.Context, name, description string, requiredFields []string) error {
	session := g.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (i:Intent {name: $name})
			ON CREATE SET i.description = $description, i.createdAt = $now
			ON MATCH SET i.description = $description`,
			map[string]any{"name": name, "description": description, "now": time.Now().UnixMilli()}); err != nil {
			return nil, err
		}

		if _, err := tx.Run(ctx, `
			MATCH (i:Intent {name: $name})-[r:REQUIRES_ENTITY]->()
			DELETE r`,
			map[string]any{"name": name}); err != nil {
			return nil, err
		}

		if len(requiredFields) > 0 {
			if _, err := tx.Run(ctx, `
				MATCH (i:Intent {name: $name})
				UNWIND $fields AS fieldName
				MERGE (e:Entity {name: fieldName})
				MERGE (i)-[:REQUIRES_ENTITY]->(e)`,
				map[string]any{"name": name, "fields": requiredFields}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return errx.WrapNeo4j(err)
}

func (g *Graph) DeleteIntent(ctx context.Context, name string) error {
	session := g.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (i:Intent {name: $name}) DETACH DELETE i`,
			map[string]any{"name": name})
		return nil, err
	})
	return errx.WrapNeo4j(err)
}
