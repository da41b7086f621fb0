package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config describes the Neo4j connection, sourced from the environment.
type Config struct {
	URI      string `split_words:"true" required:"true"`
	Username string `split_words:"true" default:"neo4j"`
	Password string `split_words:"true" required:"true"`
	Database string `split_words:"true" default:"neo4j"`
}

// New creates a driver and verifies connectivity before returning it.
func (c *Config) New(ctx context.Context) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(c.URI, neo4j.BasicAuth(c.Username, c.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	return driver, nil
}
