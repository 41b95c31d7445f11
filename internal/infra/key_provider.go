package infra

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

const (
	storeKeyFileName = ".store.key"
	storeKeySize     = 32 // SQLCipher raw key

	// StoreKeyEnv carries a base64 store key for machines without a writable data dir.
	StoreKeyEnv = "BIDBOT_STORE_KEY"
)

// FileKeyProvider keeps the store key base64-encoded in a 0600 file in the data dir.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, storeKeyFileName)}
}

func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeStoreKey(string(encoded))
}

func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != storeKeySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), storeKeySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.keyPath, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnvKeyProvider reads the store key from an environment variable. It is read-only.
type EnvKeyProvider struct {
	name   string
	lookup func(string) (string, bool)
}

// NewEnvKeyProvider creates a provider reading StoreKeyEnv.
func NewEnvKeyProvider() *EnvKeyProvider {
	return &EnvKeyProvider{name: StoreKeyEnv, lookup: os.LookupEnv}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	value, ok := p.lookup(p.name)
	if !ok {
		return nil, fmt.Errorf("%s is not set", p.name)
	}
	return decodeStoreKey(value)
}

func (p *EnvKeyProvider) StoreKey(key []byte) error {
	return errors.New("environment key provider is read-only")
}

func (p *EnvKeyProvider) KeyExists() bool {
	value, ok := p.lookup(p.name)
	return ok && strings.TrimSpace(value) != ""
}

// ResolveKeyProvider prefers an environment-supplied key over the key file.
func ResolveKeyProvider(dataDir string) domain.KeyProvider {
	if env := NewEnvKeyProvider(); env.KeyExists() {
		return env
	}
	return NewFileKeyProvider(dataDir)
}

func decodeStoreKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != storeKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), storeKeySize)
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit store key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, storeKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the provider's key, generating and storing one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// OpenStore resolves the store key and opens the encrypted store in dataDir.
func OpenStore(dataDir string) (*EncryptedStore, error) {
	key, err := EnsureKey(ResolveKeyProvider(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to obtain store key: %w", err)
	}
	return NewEncryptedStore(dataDir, key)
}

// Ensure providers implement domain.KeyProvider.
var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*EnvKeyProvider)(nil)
)
