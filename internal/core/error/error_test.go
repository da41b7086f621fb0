package errx

import (
	"errors"
	"net/http"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))

	err := WrapRedis(goredis.Nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.ErrorIs(t, err, goredis.Nil)

	err = WrapRedis(errors.New("connection refused"))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestWrapNeo4jKeepsCauseInChain(t *testing.T) {
	cause := errors.New("Unknown function 'o.stats'")
	err := WrapNeo4j(cause)
	require.Error(t, err)

	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.ErrorIs(t, err, cause, "the repair loop needs the driver message")
}

func TestPlanningWrapsSentinel(t *testing.T) {
	err := Planning(errors.New("unexpected token"))
	assert.ErrorIs(t, err, ErrPlanning)
	assert.Contains(t, err.Error(), "unexpected token")
}

func TestAppErrorAs(t *testing.T) {
	err := New(errors.New("boom"), http.StatusBadGateway, Neo4jErrorMessage)

	var app *AppError
	require.True(t, errors.As(err, &app))
	assert.Equal(t, http.StatusBadGateway, app.Status)
	assert.Equal(t, Neo4jErrorMessage, app.Message)
}

func TestStatusOfDefaultsTo500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}
