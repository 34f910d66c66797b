package sqlstore

import (
	"context"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-authclient/core"
)

const DefaultNamespace = "default"

type Option func(*CredentialStore)

// WithNamespace scopes the store to one set of rows so several accounts can
// share a table.
func WithNamespace(namespace string) Option {
	return func(s *CredentialStore) {
		if trimmed := strings.TrimSpace(namespace); trimmed != "" {
			s.namespace = trimmed
		}
	}
}

func WithSecretProvider(provider core.SecretProvider) Option {
	return func(s *CredentialStore) {
		s.secrets = provider
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *CredentialStore) {
		s.logger = logger
	}
}

// CredentialStore keeps credentials in the authclient_credentials table and
// serves synchronous reads from a cache hydrated when the store opens.
type CredentialStore struct {
	db        *bun.DB
	repo      repository.Repository[*credentialRecord]
	namespace string
	secrets   core.SecretProvider
	logger    core.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	values  map[string]string
	ids     map[string]string
	loadErr error
	ready   chan struct{}
}

// NewCredentialStore accepts a *bun.DB or anything exposing DB() *bun.DB,
// such as a go-persistence-bun client. The initial load runs in the
// background.
func NewCredentialStore(persistenceClient any, opts ...Option) (*CredentialStore, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, databaseError(err, "sqlstore: invalid credential repository wiring", nil)
		}
	}
	store := &CredentialStore{
		db:        db,
		repo:      repo,
		namespace: DefaultNamespace,
		values:    map[string]string{},
		ids:       map[string]string{},
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	store.logger = glog.Ensure(store.logger)
	go store.load(context.Background())
	return store, nil
}

func (s *CredentialStore) Namespace() string {
	return s.namespace
}

func (s *CredentialStore) LoadErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func (s *CredentialStore) load(ctx context.Context) {
	defer close(s.ready)

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("namespace", "=", s.namespace),
		repository.OrderBy("created_at ASC"),
	)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.loadErr = databaseError(err, "sqlstore: load credentials", map[string]any{"namespace": s.namespace})
		s.logger.Warn("credential table load failed", "namespace", s.namespace, "error", err.Error())
		return
	}
	for _, record := range records {
		value, openErr := s.open(ctx, record.Value)
		if openErr != nil {
			s.loadErr = openErr
			s.logger.Warn("credential decrypt failed", "namespace", s.namespace, "key", record.CredentialKey, "error", openErr.Error())
			continue
		}
		s.values[record.CredentialKey] = value
		s.ids[record.CredentialKey] = record.ID
	}
}

func (s *CredentialStore) WaitReady(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-s.ready:
		return true
	case <-ctx.Done():
		select {
		case <-s.ready:
			return true
		default:
			return false
		}
	}
}

func (s *CredentialStore) GetString(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[strings.TrimSpace(key)]
	return value, ok
}

func (s *CredentialStore) GetStringAsync(ctx context.Context, key string) (string, bool, error) {
	if !s.WaitReady(ctx) {
		return "", false, notReadyError()
	}
	value, ok := s.GetString(key)
	return value, ok, nil
}

func (s *CredentialStore) Set(ctx context.Context, key string, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return configError("sqlstore: key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.WaitReady(ctx) {
		return notReadyError()
	}
	sealed, err := s.seal(ctx, value)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	s.mu.RLock()
	id, exists := s.ids[key]
	s.mu.RUnlock()

	if exists {
		record, getErr := s.repo.GetByID(ctx, id)
		if getErr != nil {
			return databaseError(getErr, "sqlstore: read credential", map[string]any{"key": key})
		}
		record.Value = sealed
		record.EncryptionKeyID = s.keyID()
		record.UpdatedAt = now
		if _, err := s.repo.Update(ctx, record, repository.UpdateByID(id)); err != nil {
			return databaseError(err, "sqlstore: update credential", map[string]any{"key": key})
		}
	} else {
		record := newCredentialRecord(s.namespace, key, sealed, s.keyID(), now)
		created, createErr := s.repo.Create(ctx, record)
		if createErr != nil {
			return databaseError(createErr, "sqlstore: create credential", map[string]any{"key": key})
		}
		id = created.ID
	}

	s.mu.Lock()
	s.values[key] = value
	s.ids[key] = id
	s.mu.Unlock()
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return configError("sqlstore: key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.WaitReady(ctx) {
		return notReadyError()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("namespace = ?", s.namespace).
		Where("credential_key = ?", key).
		Exec(ctx)
	if err != nil {
		return databaseError(err, "sqlstore: delete credential", map[string]any{"key": key})
	}

	s.mu.Lock()
	delete(s.values, key)
	delete(s.ids, key)
	s.mu.Unlock()
	return nil
}

func (s *CredentialStore) seal(ctx context.Context, value string) ([]byte, error) {
	if s.secrets == nil || value == "" {
		return []byte(value), nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(value))
	if err != nil {
		return nil, databaseError(err, "sqlstore: encrypt credential", nil)
	}
	return sealed, nil
}

func (s *CredentialStore) open(ctx context.Context, stored []byte) (string, error) {
	if s.secrets == nil || len(stored) == 0 {
		return string(stored), nil
	}
	plaintext, err := s.secrets.Decrypt(ctx, stored)
	if err != nil {
		return "", databaseError(err, "sqlstore: decrypt credential", nil)
	}
	return string(plaintext), nil
}

func (s *CredentialStore) keyID() string {
	if keyed, ok := s.secrets.(interface{ KeyID() string }); ok {
		return keyed.KeyID()
	}
	return ""
}

var _ core.CredentialStore = (*CredentialStore)(nil)
