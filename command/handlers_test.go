package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-authclient/core"
)

type stubSessionService struct {
	loginFn   func(ctx context.Context, username string, password string) error
	logoutFn  func(ctx context.Context) error
	refreshFn func(ctx context.Context) error
	session   bool
	state     core.CoordinatorState
}

func (s *stubSessionService) Login(ctx context.Context, username string, password string) error {
	if s.loginFn != nil {
		return s.loginFn(ctx, username, password)
	}
	s.session = true
	return nil
}

func (s *stubSessionService) Logout(ctx context.Context) error {
	if s.logoutFn != nil {
		return s.logoutFn(ctx)
	}
	s.session = false
	return nil
}

func (s *stubSessionService) Refresh(ctx context.Context) error {
	if s.refreshFn != nil {
		return s.refreshFn(ctx)
	}
	s.state.Episodes++
	return nil
}

func (s *stubSessionService) HasSession() bool { return s.session }

func (s *stubSessionService) State() core.CoordinatorState { return s.state }

func TestLoginCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	var gotUser, gotPass string
	svc := &stubSessionService{}
	svc.loginFn = func(_ context.Context, username string, password string) error {
		gotUser, gotPass = username, password
		svc.session = true
		return nil
	}

	collector := gocmd.NewResult[SessionResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewLoginCommand(svc).Execute(ctx, LoginMessage{Username: "alice", Password: "secret"}); err != nil {
		t.Fatalf("execute login: %v", err)
	}
	if gotUser != "alice" || gotPass != "secret" {
		t.Fatalf("unexpected credentials %q %q", gotUser, gotPass)
	}
	result, ok := collector.Load()
	if !ok || !result.Authenticated {
		t.Fatalf("expected authenticated result, got %#v %v", result, ok)
	}
}

func TestLoginCommand_ValidatesBeforeCallingService(t *testing.T) {
	svc := &stubSessionService{loginFn: func(context.Context, string, string) error {
		t.Fatalf("service should not be called for invalid input")
		return nil
	}}
	err := NewLoginCommand(svc).Execute(context.Background(), LoginMessage{Password: "x"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("unexpected validation envelope %+v", rich)
	}
}

func TestLogoutCommand_StoresSignedOutResult(t *testing.T) {
	svc := &stubSessionService{session: true}
	collector := gocmd.NewResult[SessionResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := NewLogoutCommand(svc).Execute(ctx, LogoutMessage{}); err != nil {
		t.Fatalf("execute logout: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Authenticated {
		t.Fatalf("expected signed out result, got %#v %v", result, ok)
	}
}

func TestRefreshSessionCommand_PropagatesErrors(t *testing.T) {
	expired := errors.New("session expired")
	svc := &stubSessionService{refreshFn: func(context.Context) error { return expired }}
	if err := NewRefreshSessionCommand(svc).Execute(context.Background(), RefreshSessionMessage{}); !errors.Is(err, expired) {
		t.Fatalf("expected refresh error, got %v", err)
	}

	svc = &stubSessionService{session: true}
	collector := gocmd.NewResult[SessionResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewRefreshSessionCommand(svc).Execute(ctx, RefreshSessionMessage{}); err != nil {
		t.Fatalf("execute refresh: %v", err)
	}
	if result, _ := collector.Load(); result.State.Episodes != 1 {
		t.Fatalf("expected episode count in result, got %#v", result)
	}
}

func TestCommands_NilServiceReturnsRichError(t *testing.T) {
	var cmd *LogoutCommand
	err := cmd.Execute(context.Background(), LogoutMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

func TestMessages_TypesAreStable(t *testing.T) {
	if (LoginMessage{}).Type() != TypeLogin || (LogoutMessage{}).Type() != TypeLogout || (RefreshSessionMessage{}).Type() != TypeRefreshSession {
		t.Fatalf("unexpected message types")
	}
}
