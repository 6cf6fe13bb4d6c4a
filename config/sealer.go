package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// keyDerivationMessage is signed with the user's SSH key; the signature
// hash becomes the AES-256 key. Changing it orphans existing files.
const keyDerivationMessage = "hermitcrab-credential-key-v1"

// Sealer encrypts small blobs with AES-256-GCM using a key derived from an
// SSH signature, so the same SSH key always opens what it sealed.
type Sealer struct {
	keyPath    string
	passphrase string
	aesKey     []byte
}

func NewSealer(keyPath string) *Sealer {
	return &Sealer{keyPath: keyPath}
}

func (s *Sealer) SetPassphrase(passphrase string) {
	s.passphrase = passphrase
	s.aesKey = nil
}

func (s *Sealer) init() error {
	if s.aesKey != nil {
		return nil
	}
	if s.keyPath == "" {
		return fmt.Errorf("no SSH key configured")
	}

	encrypted, err := IsSSHKeyEncrypted(s.keyPath)
	if err != nil {
		return fmt.Errorf("failed to check SSH key: %w", err)
	}
	if encrypted && s.passphrase == "" {
		return fmt.Errorf("SSH key is encrypted - passphrase required")
	}

	signer, err := LoadSSHSigner(s.keyPath, s.passphrase)
	if err != nil {
		return err
	}

	key, err := DeriveAESKey(signer)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	s.aesKey = key

	if DebugLog != nil {
		DebugLog.Printf("[Sealer] key derived from %s", filepath.Base(s.keyPath))
	}
	return nil
}

// Seal returns [nonce][ciphertext+tag].
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	gcm, err := newGCM(s.aesKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	gcm, err := newGCM(s.aesKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DeriveAESKey signs a fixed message and hashes the signature blob.
// Deterministic for ed25519 and RSA PKCS#1 v1.5 keys.
func DeriveAESKey(signer ssh.Signer) ([]byte, error) {
	signature, err := signer.Sign(rand.Reader, []byte(keyDerivationMessage))
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sum := sha256.Sum256(signature.Blob)
	return sum[:], nil
}

// LoadSSHSigner parses a private key, using passphrase when non-empty.
func LoadSSHSigner(keyPath, passphrase string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key (wrong passphrase?): %w", err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}
	return signer, nil
}

// IsSSHKeyEncrypted reports whether the key needs a passphrase.
func IsSSHKeyEncrypted(keyPath string) (bool, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return false, fmt.Errorf("failed to read SSH key: %w", err)
	}

	_, err = ssh.ParsePrivateKey(keyData)
	if err == nil {
		return false, nil
	}
	if _, ok := err.(*ssh.PassphraseMissingError); ok {
		return true, nil
	}
	if strings.Contains(err.Error(), "encrypted") || strings.Contains(err.Error(), "passphrase") {
		return true, nil
	}
	return false, fmt.Errorf("invalid SSH key: %w", err)
}

// FindSSHKeys lists the usual private keys under ~/.ssh, ed25519 first.
func FindSSHKeys() ([]string, error) {
	sshDir := filepath.Join(GetHomeDir(), ".ssh")
	if _, err := os.Stat(sshDir); os.IsNotExist(err) {
		return nil, nil
	}

	var found []string
	for _, name := range []string{"hermitcrab_ed25519", "id_ed25519", "id_rsa", "id_ecdsa"} {
		path := filepath.Join(sshDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.Contains(string(data), "PRIVATE KEY") {
			found = append(found, path)
		}
	}
	return found, nil
}
