package authclient

import (
	goerrors "github.com/goliatone/go-errors"

	authcommand "github.com/goliatone/go-authclient/command"
	"github.com/goliatone/go-authclient/core"
	authquery "github.com/goliatone/go-authclient/query"
)

type CommandQueryService interface {
	authcommand.SessionService
	authquery.SessionReader
}

type Commands struct {
	Login          *authcommand.LoginCommand
	Logout         *authcommand.LogoutCommand
	RefreshSession *authcommand.RefreshSessionCommand
}

type Queries struct {
	SessionStatus *authquery.SessionStatusQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, goerrors.New("authclient: command/query service is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	return &Facade{
		service: service,
		commands: Commands{
			Login:          authcommand.NewLoginCommand(service),
			Logout:         authcommand.NewLogoutCommand(service),
			RefreshSession: authcommand.NewRefreshSessionCommand(service),
		},
		queries: Queries{
			SessionStatus: authquery.NewSessionStatusQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
