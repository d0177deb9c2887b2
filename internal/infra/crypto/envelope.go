package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"keystone/internal/domain"
)

const (
	// DefaultKDFIterations matches the original system's PBKDF2 parameters.
	DefaultKDFIterations = 100000
	derivedKeyBytes      = 32
	defaultSaltBytes     = 16
)

// WrapKey encrypts a hex-encoded symmetric key under an RSA public key with
// OAEP/SHA-256 and returns base64. Used to wrap generated key material under
// a master key or an authority's root public key.
func WrapKey(plaintextKeyHex string, wrappingPublicKeyPEM string) (string, error) {
	raw, err := hex.DecodeString(plaintextKeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: key to wrap is not hex", domain.ErrValidation)
	}
	pub, err := parseRSAPublicKey(wrappingPublicKeyPEM)
	if err != nil {
		return "", err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, raw, nil)
	if err != nil {
		return "", fmt.Errorf("%w: rsa wrap: %v", domain.ErrCryptoOperation, err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey reverses WrapKey with the wrapping private key.
func UnwrapKey(wrappedKeyB64 string, wrappingPrivateKeyPEM string) (string, error) {
	wrapped, err := base64.StdEncoding.DecodeString(wrappedKeyB64)
	if err != nil {
		return "", fmt.Errorf("%w: wrapped key is not base64", domain.ErrValidation)
	}
	key, err := parsePrivateKey(wrappingPrivateKeyPEM)
	if err != nil {
		return "", err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("%w: wrapping key is not RSA", domain.ErrCryptoOperation)
	}
	raw, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, rsaKey, wrapped, nil)
	if err != nil {
		return "", fmt.Errorf("%w: rsa unwrap", domain.ErrDecryption)
	}
	return hex.EncodeToString(raw), nil
}

// DeriveMasterKey derives a stable 256-bit master key from a passphrase and a
// per-record hex salt via PBKDF2-SHA256.
func DeriveMasterKey(passphrase, saltHex string, iterations int) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("%w: passphrase is required", domain.ErrValidation)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return "", fmt.Errorf("%w: salt must be non-empty hex", domain.ErrValidation)
	}
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, derivedKeyBytes, sha256.New)
	return hex.EncodeToString(key), nil
}

// GenerateSalt returns a fresh hex-encoded random salt.
func GenerateSalt(length int) (string, error) {
	if length <= 0 {
		length = defaultSaltBytes
	}
	return RandomNonce(length)
}

func parseRSAPublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in public key", domain.ErrCryptoOperation)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", domain.ErrCryptoOperation, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not RSA", domain.ErrCryptoOperation)
	}
	return rsaPub, nil
}
