package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// KeyCategory selects one of the three independent signing key pairs.
type KeyCategory string

const (
	KeyCategoryAccess   KeyCategory = "access"
	KeyCategoryRefresh  KeyCategory = "refresh"
	KeyCategorySecurity KeyCategory = "security"
)

// ErrUnknownKeyCategory indicates a category outside the three known pairs.
var ErrUnknownKeyCategory = errors.New("keys: unknown key category")

const keyFilePerm = 0o600

// KeyManager owns the three ECDSA key pairs used for token signing. Each
// pair is generated exactly once on first use and persisted as a PEM file
// under the configured directory; deleting a file invalidates every
// outstanding token of that category, which is the accepted failure mode
// since no rotation scheme exists.
type KeyManager struct {
	dir  string
	mu   sync.Mutex
	keys map[KeyCategory]*ecdsa.PrivateKey
}

// NewKeyManager constructs a manager persisting key material under dir.
func NewKeyManager(dir string) *KeyManager {
	return &KeyManager{
		dir:  dir,
		keys: make(map[KeyCategory]*ecdsa.PrivateKey),
	}
}

// Refresh tokens outlive access tokens by orders of magnitude, so they get
// the stronger curve.
func curveFor(category KeyCategory) (elliptic.Curve, error) {
	switch category {
	case KeyCategoryAccess, KeyCategorySecurity:
		return elliptic.P256(), nil
	case KeyCategoryRefresh:
		return elliptic.P384(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeyCategory, category)
	}
}

// SigningMethodFor returns the JWT signing method matching the category's curve.
func SigningMethodFor(category KeyCategory) (jwt.SigningMethod, error) {
	switch category {
	case KeyCategoryAccess, KeyCategorySecurity:
		return jwt.SigningMethodES256, nil
	case KeyCategoryRefresh:
		return jwt.SigningMethodES384, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeyCategory, category)
	}
}

// SigningKey returns the category's private key, generating and persisting
// the pair when no serialized material exists yet.
func (m *KeyManager) SigningKey(category KeyCategory) (*ecdsa.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.keys[category]; ok {
		return key, nil
	}

	key, err := m.load(category)
	if err == nil {
		m.keys[category] = key
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err = m.generate(category)
	if err != nil {
		return nil, err
	}

	m.keys[category] = key
	return key, nil
}

// VerificationKey returns the category's public key.
func (m *KeyManager) VerificationKey(category KeyCategory) (*ecdsa.PublicKey, error) {
	key, err := m.SigningKey(category)
	if err != nil {
		return nil, err
	}
	return &key.PublicKey, nil
}

func (m *KeyManager) path(category KeyCategory) string {
	return filepath.Join(m.dir, string(category)+".pem")
}

func (m *KeyManager) load(category KeyCategory) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(m.path(category))
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("keys: no PEM block in %s", m.path(category))
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", category, err)
	}

	curve, err := curveFor(category)
	if err != nil {
		return nil, err
	}
	if key.Curve != curve {
		return nil, fmt.Errorf("keys: %s key uses %s, want %s", category, key.Curve.Params().Name, curve.Params().Name)
	}

	return key, nil
}

func (m *KeyManager) generate(category KeyCategory) (*ecdsa.PrivateKey, error) {
	curve, err := curveFor(category)
	if err != nil {
		return nil, err
	}

	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate %s key: %w", category, err)
	}

	if err := m.persist(category, key); err != nil {
		return nil, err
	}

	return key, nil
}

func (m *KeyManager) persist(category KeyCategory, key *ecdsa.PrivateKey) error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal %s key: %w", category, err)
	}

	encoded := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	// Write-then-rename so a crash never leaves a truncated key file behind.
	tmp := m.path(category) + ".tmp"
	if err := os.WriteFile(tmp, encoded, keyFilePerm); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if err := os.Rename(tmp, m.path(category)); err != nil {
		return fmt.Errorf("rename key file: %w", err)
	}

	return nil
}
