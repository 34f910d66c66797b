package command

import "strings"

const (
	TypeLogin          = "authclient.command.session.login"
	TypeLogout         = "authclient.command.session.logout"
	TypeRefreshSession = "authclient.command.session.refresh"
)

type LoginMessage struct {
	Username string
	Password string
}

func (LoginMessage) Type() string { return TypeLogin }

func (m LoginMessage) Validate() error {
	if strings.TrimSpace(m.Username) == "" {
		return commandValidationError("username", "username is required")
	}
	if m.Password == "" {
		return commandValidationError("password", "password is required")
	}
	return nil
}

type LogoutMessage struct{}

func (LogoutMessage) Type() string { return TypeLogout }

func (LogoutMessage) Validate() error { return nil }

type RefreshSessionMessage struct{}

func (RefreshSessionMessage) Type() string { return TypeRefreshSession }

func (RefreshSessionMessage) Validate() error { return nil }
