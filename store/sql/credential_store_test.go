package sqlstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"

	"github.com/goliatone/go-authclient/core"
	"github.com/goliatone/go-authclient/security"
	sqlstore "github.com/goliatone/go-authclient/store/sql"
)

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:authclient-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	client, err := sqlstore.Open(context.Background(), "sqlite3", dsn, sqlstore.OpenOptions{PingTimeout: time.Second})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func openStore(t *testing.T, client *persistence.Client, opts ...sqlstore.Option) *sqlstore.CredentialStore {
	t.Helper()
	store, err := sqlstore.NewCredentialStore(client, opts...)
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !store.WaitReady(ctx) {
		t.Fatalf("credential store did not become ready")
	}
	if err := store.LoadErr(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return store
}

func TestCredentialStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	client := newSQLiteClient(t)

	first := openStore(t, client)
	if err := first.Set(ctx, core.KeyAccessToken, "A1"); err != nil {
		t.Fatalf("set access: %v", err)
	}
	if err := first.Set(ctx, core.KeyRefreshToken, "R1"); err != nil {
		t.Fatalf("set refresh: %v", err)
	}
	if err := first.Set(ctx, core.KeyAccessToken, "A2"); err != nil {
		t.Fatalf("overwrite access: %v", err)
	}

	second := openStore(t, client)
	value, ok, err := second.GetStringAsync(ctx, core.KeyAccessToken)
	if err != nil || !ok || value != "A2" {
		t.Fatalf("expected overwritten access token, got %q %v %v", value, ok, err)
	}

	if err := second.Delete(ctx, core.KeyRefreshToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third := openStore(t, client)
	if _, ok := third.GetString(core.KeyRefreshToken); ok {
		t.Fatalf("expected refresh token deleted")
	}
	var rows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM authclient_credentials").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row after overwrite and delete, got %d", rows)
	}
}

func TestCredentialStore_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	client := newSQLiteClient(t)

	alice := openStore(t, client, sqlstore.WithNamespace("alice"))
	bob := openStore(t, client, sqlstore.WithNamespace("bob"))
	if err := alice.Set(ctx, core.KeyAccessToken, "alice-token"); err != nil {
		t.Fatalf("set alice: %v", err)
	}
	if err := bob.Set(ctx, core.KeyAccessToken, "bob-token"); err != nil {
		t.Fatalf("set bob: %v", err)
	}

	reloaded := openStore(t, client, sqlstore.WithNamespace("alice"))
	if value, _ := reloaded.GetString(core.KeyAccessToken); value != "alice-token" {
		t.Fatalf("expected alice token, got %q", value)
	}
	if reloaded.Namespace() != "alice" {
		t.Fatalf("unexpected namespace %q", reloaded.Namespace())
	}
}

func TestCredentialStore_EncryptsValues(t *testing.T) {
	ctx := context.Background()
	client := newSQLiteClient(t)
	provider, err := security.NewAppKeySecretProviderFromString("db-key", security.WithKeyID("db"))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	store := openStore(t, client, sqlstore.WithSecretProvider(provider))
	if err := store.Set(ctx, core.KeyRefreshToken, "refresh-secret"); err != nil {
		t.Fatalf("set: %v", err)
	}

	var stored []byte
	var keyID string
	if err := client.DB().NewRaw(
		"SELECT value, encryption_key_id FROM authclient_credentials WHERE credential_key = ?",
		core.KeyRefreshToken,
	).Scan(ctx, &stored, &keyID); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if !security.IsSealed(stored) || keyID != "db" {
		t.Fatalf("expected sealed value under key db, got %q %q", stored, keyID)
	}

	reopened := openStore(t, client, sqlstore.WithSecretProvider(provider))
	if value, _ := reopened.GetString(core.KeyRefreshToken); value != "refresh-secret" {
		t.Fatalf("expected decrypted value, got %q", value)
	}
}

func TestCredentialStore_RejectsBadInput(t *testing.T) {
	if _, err := sqlstore.NewCredentialStore(nil); err == nil {
		t.Fatalf("expected nil client to be rejected")
	}
	if _, err := sqlstore.NewCredentialStore("not a db"); err == nil {
		t.Fatalf("expected unsupported client to be rejected")
	}
	store := openStore(t, newSQLiteClient(t))
	if err := store.Set(context.Background(), " ", "x"); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	if _, err := sqlstore.Open(context.Background(), "mysql", "dsn", sqlstore.OpenOptions{}); err == nil {
		t.Fatalf("expected unsupported driver to be rejected")
	}
}
