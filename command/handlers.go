package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-authclient/core"
)

// SessionService is the slice of core.Client the session commands drive.
type SessionService interface {
	Login(ctx context.Context, username string, password string) error
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) error
	HasSession() bool
	State() core.CoordinatorState
}

// SessionResult is stored in the context result collector after a command
// completes.
type SessionResult struct {
	Authenticated bool
	State         core.CoordinatorState
}

type LoginCommand struct {
	service SessionService
}

func NewLoginCommand(service SessionService) *LoginCommand {
	return &LoginCommand{service: service}
}

func (c *LoginCommand) Execute(ctx context.Context, msg LoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.service.Login(ctx, msg.Username, msg.Password); err != nil {
		return err
	}
	storeResult(ctx, sessionResult(c.service))
	return nil
}

type LogoutCommand struct {
	service SessionService
}

func NewLogoutCommand(service SessionService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := c.service.Logout(ctx); err != nil {
		return err
	}
	storeResult(ctx, sessionResult(c.service))
	return nil
}

// RefreshSessionCommand joins the in-flight refresh or starts one.
type RefreshSessionCommand struct {
	service SessionService
}

func NewRefreshSessionCommand(service SessionService) *RefreshSessionCommand {
	return &RefreshSessionCommand{service: service}
}

func (c *RefreshSessionCommand) Execute(ctx context.Context, _ RefreshSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := c.service.Refresh(ctx); err != nil {
		return err
	}
	storeResult(ctx, sessionResult(c.service))
	return nil
}

func sessionResult(service SessionService) SessionResult {
	return SessionResult{
		Authenticated: service.HasSession(),
		State:         service.State(),
	}
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
