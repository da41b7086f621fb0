package errx

import (
	"net/http"
)

// WrapNeo4j maps graph store errors to the unified AppError type. Query
// syntax failures keep the driver error in the chain so the repair loop can
// feed the message back to the generator.
func WrapNeo4j(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, Neo4jErrorMessage)
}
