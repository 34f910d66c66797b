package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-authclient/core"
)

const fileFormatVersion = 1

type fileDocument struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileStore persists credentials to a single JSON file readable only by the
// owner. The file is loaded in the background; reads that need the stored
// values wait for the load to finish.
type FileStore struct {
	path    string
	secrets core.SecretProvider
	logger  core.Logger

	mu      sync.RWMutex
	values  map[string]string
	loadErr error
	ready   *readiness
}

type FileOption func(*FileStore)

// WithSecretProvider encrypts the file contents at rest.
func WithSecretProvider(provider core.SecretProvider) FileOption {
	return func(s *FileStore) {
		s.secrets = provider
	}
}

func WithLogger(logger core.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, goerrors.New("store: file path is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	store := &FileStore{
		path:   filepath.Clean(path),
		values: map[string]string{},
		ready:  newReadiness(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	store.logger = glog.Ensure(store.logger)

	if err := os.MkdirAll(filepath.Dir(store.path), 0o700); err != nil {
		return nil, storageError(err, "store: create credential directory", map[string]any{"path": store.path})
	}
	go store.load(context.Background())
	return store, nil
}

// LoadErr reports a failure from the initial load. The store still serves
// reads and writes after a failed load, starting from an empty set.
func (s *FileStore) LoadErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func (s *FileStore) load(ctx context.Context) {
	defer s.ready.markReady()

	values, err := s.readFile(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.loadErr = err
		s.logger.Warn("credential file load failed", "path", s.path, "error", err.Error())
		return
	}
	for key, value := range values {
		s.values[key] = value
	}
}

func (s *FileStore) readFile(ctx context.Context) (map[string]string, error) {
	// #nosec G304 -- path is supplied by the embedding application
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, storageError(err, "store: read credential file", map[string]any{"path": s.path})
	}
	if s.secrets != nil {
		data, err = s.secrets.Decrypt(ctx, data)
		if err != nil {
			return nil, storageError(err, "store: decrypt credential file", map[string]any{"path": s.path})
		}
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, storageError(err, "store: decode credential file", map[string]any{"path": s.path})
	}
	if doc.Values == nil {
		doc.Values = map[string]string{}
	}
	return doc.Values, nil
}

func (s *FileStore) WaitReady(ctx context.Context) bool {
	return s.ready.wait(ctx)
}

func (s *FileStore) GetString(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[strings.TrimSpace(key)]
	return value, ok
}

func (s *FileStore) GetStringAsync(ctx context.Context, key string) (string, bool, error) {
	if !s.WaitReady(ctx) {
		return "", false, notReadyError(ctx)
	}
	value, ok := s.GetString(key)
	return value, ok, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value string) error {
	return s.mutate(ctx, key, func(values map[string]string, key string) {
		values[key] = value
	})
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.mutate(ctx, key, func(values map[string]string, key string) {
		delete(values, key)
	})
}

func (s *FileStore) mutate(ctx context.Context, key string, apply func(map[string]string, string)) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return badKeyError()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// Writes before the initial load completes would be overwritten by it.
	if !s.WaitReady(ctx) {
		return notReadyError(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	apply(next, key)
	if err := s.writeFile(ctx, next); err != nil {
		s.logger.Warn("credential file write failed", "path", s.path, "key", key, "error", err.Error())
		return err
	}
	s.values = next
	return nil
}

func (s *FileStore) writeFile(ctx context.Context, values map[string]string) error {
	data, err := json.MarshalIndent(fileDocument{Version: fileFormatVersion, Values: values}, "", "  ")
	if err != nil {
		return storageError(err, "store: encode credential file", nil)
	}
	if s.secrets != nil {
		data, err = s.secrets.Encrypt(ctx, data)
		if err != nil {
			return storageError(err, "store: encrypt credential file", nil)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return storageError(err, "store: create temp credential file", map[string]any{"path": s.path})
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return storageError(err, "store: chmod credential file", map[string]any{"path": s.path})
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return storageError(err, "store: write credential file", map[string]any{"path": s.path})
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return storageError(err, "store: close credential file", map[string]any{"path": s.path})
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return storageError(err, "store: replace credential file", map[string]any{"path": s.path})
	}
	return nil
}

var _ core.CredentialStore = (*FileStore)(nil)
