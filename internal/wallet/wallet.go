// Package wallet loads the Solana trading keypair and signs transactions.
// Keys are resolved either from a raw base58 secret key or from an encrypted
// keypair file produced by EncryptKey.
package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// KeyConfig carries the information Load needs to resolve a keypair.
// Populate the fields from environment variables or a config file.
type KeyConfig struct {
	// SecretKey is the base58-encoded 64-byte ed25519 secret key. If
	// non-empty, Load uses it directly.
	SecretKey string

	// EncryptedKeyPath is the path to a JSON file produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword is the password used to decrypt the file at EncryptedKeyPath.
	KeyPassword string
}

// Wallet holds an ed25519 keypair.
type Wallet struct {
	priv ed25519.PrivateKey
	pub  string // base58-encoded public key
}

// Load resolves a keypair from cfg, preferring the raw secret key.
func Load(cfg KeyConfig) (*Wallet, error) {
	switch {
	case cfg.SecretKey != "":
		return FromSecretKey(cfg.SecretKey)
	case cfg.EncryptedKeyPath != "":
		blob, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("wallet: read encrypted key: %w", err)
		}
		secret, err := DecryptKey(blob, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		return FromSecretKey(secret)
	default:
		return nil, errors.New("wallet: no key material configured")
	}
}

// FromSecretKey builds a Wallet from a base58-encoded 64-byte secret key
// (the standard Solana export format: seed followed by public key).
func FromSecretKey(encoded string) (*Wallet, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: expected %d-byte secret key, got %d bytes", ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	pub := base58.Encode(priv.Public().(ed25519.PublicKey))
	return &Wallet{priv: priv, pub: pub}, nil
}

// PublicKey returns the base58-encoded public key.
func (w *Wallet) PublicKey() string { return w.pub }

// Sign signs msg with the wallet's private key.
func (w *Wallet) Sign(msg []byte) []byte {
	return ed25519.Sign(w.priv, msg)
}
