package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "IGFEED_PASSPHRASE"

	passphraseFile = ".passphrase"
)

// ErrSealedDataCorrupt is returned by Open for data that was not produced by Seal with the same passphrase
var ErrSealedDataCorrupt = errors.New("sealed data is corrupt or the passphrase is wrong")

// Vault encrypts small blobs with AES-GCM under a key derived from a passphrase.
// Sealed output is salt || nonce || ciphertext; every Seal uses a fresh salt and nonce.
type Vault struct {
	passphrase []byte
}

// NewVault creates a vault for passphrase
func NewVault(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	return &Vault{passphrase: []byte(passphrase)}, nil
}

// OpenVault creates a vault from IGFEED_PASSPHRASE or, failing that, the passphrase file in dir.
// A random passphrase is generated and written on first use.
func OpenVault(fs afero.Fs, dir string) (*Vault, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return NewVault(pass)
	}

	path := filepath.Join(dir, passphraseFile)
	if content, err := afero.ReadFile(fs, path); err == nil && len(strings.TrimSpace(string(content))) > 0 {
		return NewVault(strings.TrimSpace(string(content)))
	}

	passphrase, err := generatePassphrase()
	if err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, []byte(passphrase), 0600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return NewVault(passphrase)
}

// Seal encrypts plaintext
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := v.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize {
		return nil, ErrSealedDataCorrupt
	}

	gcm, err := v.aead(sealed[:saltSize])
	if err != nil {
		return nil, err
	}

	rest := sealed[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrSealedDataCorrupt
	}

	plaintext, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrSealedDataCorrupt
	}
	return plaintext, nil
}

func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(v.passphrase, salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
