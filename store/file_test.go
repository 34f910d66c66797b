package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-authclient/core"
	"github.com/goliatone/go-authclient/security"
)

func openFileStore(t *testing.T, path string, opts ...FileOption) *FileStore {
	t.Helper()
	store, err := NewFileStore(path, opts...)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !store.WaitReady(ctx) {
		t.Fatalf("file store did not become ready")
	}
	return store
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "credentials.json")
	ctx := context.Background()

	first := openFileStore(t, path)
	if err := first.LoadErr(); err != nil {
		t.Fatalf("expected missing file to load empty, got %v", err)
	}
	if err := first.Set(ctx, core.KeyAccessToken, "A1"); err != nil {
		t.Fatalf("set access: %v", err)
	}
	if err := first.Set(ctx, core.KeyRefreshToken, "R1"); err != nil {
		t.Fatalf("set refresh: %v", err)
	}
	if err := first.Delete(ctx, core.KeyAccessToken); err != nil {
		t.Fatalf("delete: %v", err)
	}

	second := openFileStore(t, path)
	if _, ok := second.GetString(core.KeyAccessToken); ok {
		t.Fatalf("expected deleted key to stay deleted")
	}
	value, ok, err := second.GetStringAsync(ctx, core.KeyRefreshToken)
	if err != nil || !ok || value != "R1" {
		t.Fatalf("unexpected reloaded refresh token %q %v %v", value, ok, err)
	}
}

func TestFileStore_WritesOwnerOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := openFileStore(t, path)
	if err := store.Set(context.Background(), core.KeyAccessToken, "A1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestFileStore_EncryptsAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	provider, err := security.NewAppKeySecretProviderFromString("device-key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	store := openFileStore(t, path, WithSecretProvider(provider))
	if err := store.Set(context.Background(), core.KeyRefreshToken, "refresh-secret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(raw, []byte("refresh-secret")) || !security.IsSealed(raw) {
		t.Fatalf("expected sealed file contents, got %s", raw)
	}

	reopened := openFileStore(t, path, WithSecretProvider(provider))
	if value, _ := reopened.GetString(core.KeyRefreshToken); value != "refresh-secret" {
		t.Fatalf("expected decrypted value after reopen, got %q", value)
	}
}

func TestFileStore_CorruptFileReportsLoadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	store := openFileStore(t, path)
	if store.LoadErr() == nil {
		t.Fatalf("expected load error for corrupt file")
	}
	if _, ok := store.GetString(core.KeyAccessToken); ok {
		t.Fatalf("expected empty store after failed load")
	}
	if err := store.Set(context.Background(), core.KeyAccessToken, "A1"); err != nil {
		t.Fatalf("expected store to accept writes after failed load, got %v", err)
	}
	if store.LoadErr() == nil {
		t.Fatalf("load error should remain reported")
	}
}

func TestFileStore_RequiresPath(t *testing.T) {
	if _, err := NewFileStore("  "); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
}
