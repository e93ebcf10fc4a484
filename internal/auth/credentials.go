package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/vdavid/vchat/internal/crypto"
	"github.com/vdavid/vchat/internal/models"
	"golang.org/x/oauth2"
)

const (
	serviceName = "vchat"
	tokenKey    = "oauth-token"
	profileKey  = "profile"
)

// ErrNoCredentials is returned when nothing has been stored yet.
var ErrNoCredentials = errors.New("no stored credentials")

// OpenKeyring opens the system keyring, falling back to an encrypted file
// backend in dir.
func OpenKeyring(dir, filePassword string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(filePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// CredentialStore keeps the OAuth token and the cached profile in a keyring,
// sealed with an Encryptor.
type CredentialStore struct {
	ring keyring.Keyring
	enc  *crypto.Encryptor
}

func NewCredentialStore(ring keyring.Keyring, enc *crypto.Encryptor) *CredentialStore {
	return &CredentialStore{ring: ring, enc: enc}
}

func (s *CredentialStore) LoadToken() (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	if err := s.get(tokenKey, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *CredentialStore) SaveToken(tok *oauth2.Token) error {
	return s.set(tokenKey, tok)
}

func (s *CredentialStore) LoadProfile() (*models.Profile, error) {
	p := &models.Profile{}
	if err := s.get(profileKey, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *CredentialStore) SaveProfile(p models.Profile) error {
	return s.set(profileKey, p)
}

// Clear removes everything. Missing items are not an error.
func (s *CredentialStore) Clear() error {
	for _, key := range []string{tokenKey, profileKey} {
		if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting credential %q: %w", key, err)
		}
	}
	return nil
}

func (s *CredentialStore) get(key string, v any) error {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNoCredentials
	}
	if err != nil {
		return fmt.Errorf("getting credential %q: %w", key, err)
	}

	plain, err := s.enc.Decrypt(item.Data)
	if err != nil {
		return fmt.Errorf("opening credential %q: %w", key, err)
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("decoding credential %q: %w", key, err)
	}
	return nil
}

func (s *CredentialStore) set(key string, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", key, err)
	}
	sealed, err := s.enc.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("sealing credential %q: %w", key, err)
	}
	if err := s.ring.Set(keyring.Item{Key: key, Data: sealed}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}
