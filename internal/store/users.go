package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/pkg/ids"
)

// User is a login account linked to a Customer profile.
type User struct {
	Email        string
	PasswordHash string
	Role         string
	CustomerID   string
	Name         string
}

const RoleCustomer = "CUSTOMER"
const RoleAgent = "AGENT"

// FindUserByEmail returns the user with its linked customer profile, or
// nil when no account exists for the email.
func (g *Graph) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	rows, err := g.RunRead(ctx, `
		MATCH (u:User {email: $email})-[:HAS_PROFILE]->(c:Customer)
		RETURN u.email AS email, u.passwordHash AS passwordHash, u.role AS role,
		       c.customerID AS customerId, c.name AS name`,
		map[string]any{"email": email})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	u := &User{}
	u.Email, _ = row["email"].(string)
	u.PasswordHash, _ = row["passwordHash"].(string)
	u.Role, _ = row["role"].(string)
	u.CustomerID, _ = row["customerId"].(string)
	u.Name, _ = row["name"].(string)
	return u, nil
}

// CreateUser creates a login account and its Customer profile in one
// transaction and returns the new customer identifier.
func (g *Graph) CreateUser(ctx context.Context, email, passwordHash, name string) (string, error) {
	customerID := ids.NewID("Customer")

	session := g.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CREATE (u:User {email: $email, passwordHash: $passwordHash, role: $role, dateCreated: $now})
			CREATE (c:Customer {customerID: $customerId, name: $name})
			CREATE (u)-[:HAS_PROFILE]->(c)
			RETURN c.customerID AS customerId`,
			map[string]any{
				"email":        email,
				"passwordHash": passwordHash,
				"role":         RoleCustomer,
				"customerId":   customerID,
				"name":         name,
				"now":          time.Now().UnixMilli(),
			})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("user creation returned no record")
		}
		return customerID, nil
	})
	if err != nil {
		return "", errx.WrapNeo4j(err)
	}
	return out.(string), nil
}
