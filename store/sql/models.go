package sqlstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:authclient_credentials,alias:acr"`

	ID              string    `bun:"id,pk"`
	Namespace       string    `bun:"namespace,notnull"`
	CredentialKey   string    `bun:"credential_key,notnull"`
	Value           []byte    `bun:"value,notnull"`
	EncryptionKeyID string    `bun:"encryption_key_id,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newCredentialRecord(namespace string, key string, value []byte, keyID string, now time.Time) *credentialRecord {
	return &credentialRecord{
		ID:              uuid.NewString(),
		Namespace:       namespace,
		CredentialKey:   key,
		Value:           value,
		EncryptionKeyID: keyID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
