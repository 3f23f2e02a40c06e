// Package registryauth issues scoped, signed authorization tokens for the
// Docker-registry-compatible token protocol, and derives the key fingerprint
// and admin diagnostic identifier from the signing key material.
package registryauth

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base32"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningKeyStore holds the signing key material, read from disk once, plus
// the identifiers derived from it. Derivations are computed at construction
// and cached for the process lifetime.
type SigningKeyStore struct {
	privateKey *rsa.PrivateKey
	keyID      string
	adminToken string
}

// LoadSigningKeys reads a PEM private key and its X.509 certificate from the
// given paths and derives the key id and admin token.
func LoadSigningKeys(keyPath, certPath string) (*SigningKeyStore, error) {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	return NewSigningKeyStore(keyPEM, certPEM)
}

// NewSigningKeyStore builds a store from in-memory PEM bytes.
func NewSigningKeyStore(keyPEM, certPEM []byte) (*SigningKeyStore, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	keyID, err := deriveKeyID(cert.RawSubjectPublicKeyInfo)
	if err != nil {
		return nil, err
	}

	return &SigningKeyStore{
		privateKey: privateKey,
		keyID:      keyID,
		adminToken: deriveAdminToken(keyPEM),
	}, nil
}

// PrivateKey returns the cached signing key.
func (s *SigningKeyStore) PrivateKey() *rsa.PrivateKey { return s.privateKey }

// KeyID returns the registry-compatible fingerprint of the public key,
// embedded as the kid header of every issued token.
func (s *SigningKeyStore) KeyID() string { return s.keyID }

// AdminToken returns the stable diagnostic identifier derived from the
// private key. It is logged once at startup; it is not a security boundary.
func (s *SigningKeyStore) AdminToken() string { return s.adminToken }

// kidAlphabet is the RFC 4648 base32 alphabet without padding.
const kidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

var kidEncoding = base32.NewEncoding(kidAlphabet).WithPadding(base32.NoPadding)

// deriveKeyID computes the Docker-registry JWK fingerprint of a DER-encoded
// SPKI public key: SHA-256, truncated to 30 bytes, base32-encoded reading
// 5-bit groups MSB-first, then a colon every 4 characters. 240 bits divide
// into 48 symbols exactly, so no partial group remains.
func deriveKeyID(spkiDER []byte) (string, error) {
	digest := sha256.Sum256(spkiDER)
	return formatKeyID(digest[:30])
}

// formatKeyID encodes the digest bytes and inserts the colon separators.
// The bit length must be a multiple of 40 so the symbol count divides by 4.
func formatKeyID(digest []byte) (string, error) {
	if len(digest)*8%40 != 0 {
		return "", fmt.Errorf("key digest bit length %d is not a multiple of 40", len(digest)*8)
	}
	encoded := kidEncoding.EncodeToString(digest)

	var b strings.Builder
	for i := 0; i < len(encoded); i += 4 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(encoded[i : i+4])
	}
	return b.String(), nil
}

// deriveAdminToken hashes the private key PEM, takes the first 16 bytes, and
// forces the UUIDv4 version and variant bits so the result reads as a
// standard UUID. Deterministic for a given key.
func deriveAdminToken(keyPEM []byte) string {
	digest := sha256.Sum256(keyPEM)

	var raw [16]byte
	copy(raw[:], digest[:16])
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80

	return uuid.UUID(raw).String()
}
