package model

import "context"

// HistoryRepository persists the bounded rolling history of a chat session.
type HistoryRepository interface {
	// AddTurn appends a turn, trimming the history to its configured bound.
	AddTurn(ctx context.Context, sessionID string, turn Turn) error

	// Recent returns the retained turns, oldest first.
	Recent(ctx context.Context, sessionID string) ([]Turn, error)

	// Clear removes all history for a session.
	Clear(ctx context.Context, sessionID string) error
}
