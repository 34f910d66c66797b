package query

import (
	"context"

	"github.com/goliatone/go-authclient/core"
)

type SessionReader interface {
	HasSession() bool
	State() core.CoordinatorState
}

type SessionStatus struct {
	Authenticated bool   `json:"authenticated"`
	RefreshState  string `json:"refresh_state"`
	Pending       int    `json:"pending"`
	Episodes      int64  `json:"episodes"`
}

type SessionStatusQuery struct {
	reader SessionReader
}

func NewSessionStatusQuery(reader SessionReader) *SessionStatusQuery {
	return &SessionStatusQuery{reader: reader}
}

func (q *SessionStatusQuery) Query(_ context.Context, _ SessionStatusMessage) (SessionStatus, error) {
	if q == nil || q.reader == nil {
		return SessionStatus{}, queryDependencyError("query: session reader is required")
	}
	state := q.reader.State()
	return SessionStatus{
		Authenticated: q.reader.HasSession(),
		RefreshState:  state.State.String(),
		Pending:       state.Pending,
		Episodes:      state.Episodes,
	}, nil
}
