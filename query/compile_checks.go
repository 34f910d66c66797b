package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-authclient/core"
)

var (
	_ gocmd.Querier[SessionStatusMessage, SessionStatus] = (*SessionStatusQuery)(nil)

	_ SessionReader = (*core.Client)(nil)
)
