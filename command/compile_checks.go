package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-authclient/core"
)

var (
	_ gocmd.Commander[LoginMessage]          = (*LoginCommand)(nil)
	_ gocmd.Commander[LogoutMessage]         = (*LogoutCommand)(nil)
	_ gocmd.Commander[RefreshSessionMessage] = (*RefreshSessionCommand)(nil)

	_ SessionService = (*core.Client)(nil)
)
