package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-authclient/core"
)

const (
	defaultKeyID   = "app-key"
	defaultVersion = 1
)

type Option func(*AppKeySecretProvider)

type appKey struct {
	id      string
	version int
	key     []byte
}

func (k appKey) matches(id string, version int) bool {
	if id != "" && id != k.id {
		return false
	}
	return version <= 0 || version == k.version
}

// AppKeySecretProvider seals credential blobs with AES-GCM under an
// application key. Values sealed under a retired key still open until the
// retired key is removed from the provider.
type AppKeySecretProvider struct {
	active  appKey
	retired []appKey
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.active.id = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.active.version = version
		}
	}
}

// WithRetiredKey keeps a previous key available for Decrypt.
func WithRetiredKey(id string, version int, keyMaterial []byte) Option {
	return func(provider *AppKeySecretProvider) {
		material := bytes.TrimSpace(keyMaterial)
		id = strings.TrimSpace(id)
		if len(material) == 0 || id == "" {
			return
		}
		if version <= 0 {
			version = defaultVersion
		}
		provider.retired = append(provider.retired, appKey{id: id, version: version, key: normalizeKey(material)})
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return nil, securityError("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		active: appKey{id: defaultKeyID, version: defaultVersion, key: normalizeKey(material)},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	for _, retired := range provider.retired {
		if retired.id == provider.active.id && retired.version == provider.active.version {
			return nil, securityError(fmt.Sprintf("security: retired key %s v%d collides with the active key", retired.id, retired.version))
		}
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, securityError("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, securityError("security: plaintext is required")
	}
	gcm, err := newGCM(p.active.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, securityWrapError(err, "security: nonce generation failed")
	}

	return encodeEnvelope(envelope{
		KeyID:      p.active.id,
		Version:    p.active.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	})
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, securityError("security: secret provider is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	if parsed.Algorithm != "" && parsed.Algorithm != envelopeAlgorithm {
		return nil, securityError(fmt.Sprintf("security: unsupported algorithm %q", parsed.Algorithm))
	}

	key, ok := p.keyFor(parsed.KeyID, parsed.Version)
	if !ok {
		return nil, securityError(fmt.Sprintf("security: no key for %q v%d", parsed.KeyID, parsed.Version))
	}
	nonce, err := decodePart(parsed.Nonce, "nonce")
	if err != nil {
		return nil, err
	}
	sealed, err := decodePart(parsed.Ciphertext, "ciphertext payload")
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key.key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, securityError("security: invalid nonce size")
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, securityWrapError(err, "security: decrypt payload")
	}
	return plaintext, nil
}

// NeedsRotation reports whether a sealed value was written under a key other
// than the active one.
func (p *AppKeySecretProvider) NeedsRotation(ciphertext []byte) (bool, error) {
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false, err
	}
	return meta.KeyID != p.KeyID() || meta.Version != p.Version(), nil
}

func (p *AppKeySecretProvider) keyFor(id string, version int) (appKey, bool) {
	if p.active.matches(id, version) {
		return p.active, true
	}
	for _, retired := range p.retired {
		if retired.matches(id, version) {
			return retired, true
		}
	}
	return appKey{}, false
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.active.id
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.active.version
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, securityWrapError(err, "security: create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, securityWrapError(err, "security: create gcm")
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
