package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"time"

	"keystone/internal/domain"
)

const (
	DefaultNonceBytes = 16
	DefaultRSABits    = 2048

	SignatureAlgorithmRSA = "sha256WithRSAEncryption"
)

// HashHex returns the lowercase hex SHA-256 digest of data.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RandomNonce returns length random bytes hex-encoded from a CSPRNG.
func RandomNonce(length int) (string, error) {
	if length <= 0 {
		length = DefaultNonceBytes
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: nonce generation: %v", domain.ErrCryptoOperation, err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateSymmetricKey returns bits/8 random bytes hex-encoded.
func GenerateSymmetricKey(bits int) (string, error) {
	if bits <= 0 {
		bits = 256
	}
	buf := make([]byte, bits/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: symmetric key generation: %v", domain.ErrCryptoOperation, err)
	}
	return hex.EncodeToString(buf), nil
}

type KeyPair struct {
	PublicKeyPEM  string
	PrivateKeyPEM string
}

// GenerateKeyPair produces a PEM-encoded keypair for the given algorithm.
// For ECDSA the length selects the curve (256, 384, 521); unknown lengths
// fall back to P-256 as the original system does.
func GenerateKeyPair(alg domain.KeyAlgorithm, length int) (KeyPair, error) {
	switch alg {
	case domain.KeyAlgorithmRSA:
		return GenerateRSAKeyPair(length)
	case domain.KeyAlgorithmECDSA:
		return GenerateECDSAKeyPair(length)
	case domain.KeyAlgorithmEdDSA:
		return GenerateEd25519KeyPair()
	default:
		return KeyPair{}, fmt.Errorf("%w: unsupported asymmetric algorithm %q", domain.ErrValidation, alg)
	}
}

func GenerateRSAKeyPair(bits int) (KeyPair, error) {
	if bits <= 0 {
		bits = DefaultRSABits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: rsa keygen: %v", domain.ErrCryptoOperation, err)
	}
	return encodeKeyPair(priv.Public(), priv)
}

func GenerateECDSAKeyPair(length int) (KeyPair, error) {
	priv, err := ecdsa.GenerateKey(curveForLength(length), rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: ecdsa keygen: %v", domain.ErrCryptoOperation, err)
	}
	return encodeKeyPair(priv.Public(), priv)
}

func GenerateEd25519KeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: ed25519 keygen: %v", domain.ErrCryptoOperation, err)
	}
	return encodeKeyPair(pub, priv)
}

func curveForLength(length int) elliptic.Curve {
	switch length {
	case 384:
		return elliptic.P384()
	case 521:
		return elliptic.P521()
	default:
		return elliptic.P256()
	}
}

func encodeKeyPair(pub any, priv any) (KeyPair, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: encode public key: %v", domain.ErrCryptoOperation, err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: encode private key: %v", domain.ErrCryptoOperation, err)
	}
	return KeyPair{
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// Sign signs data with a PEM-encoded PKCS#8 private key and returns the
// signature hex-encoded. RSA keys sign SHA-256 PKCS#1 v1.5, ECDSA keys sign
// ASN.1 over the SHA-256 digest, Ed25519 keys sign the raw message.
func Sign(data []byte, privateKeyPEM string) (string, error) {
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(data)
	var sig []byte
	switch k := key.(type) {
	case *rsa.PrivateKey:
		sig, err = rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest[:])
	case *ecdsa.PrivateKey:
		sig, err = ecdsa.SignASN1(rand.Reader, k, digest[:])
	case ed25519.PrivateKey:
		sig = ed25519.Sign(k, data)
	default:
		return "", fmt.Errorf("%w: unsupported private key type %T", domain.ErrCryptoOperation, key)
	}
	if err != nil {
		return "", fmt.Errorf("%w: signing: %v", domain.ErrCryptoOperation, err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifySignature verifies a hex signature against a PEM public key. It never
// returns an error: malformed input of any kind yields false.
func VerifySignature(data []byte, signatureHex string, publicKeyPEM string) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) == 0 {
		return false
	}
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return false
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(data)
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig) == nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(k, digest[:], sig)
	case ed25519.PublicKey:
		return len(k) == ed25519.PublicKeySize && ed25519.Verify(k, data, sig)
	default:
		return false
	}
}

func parsePrivateKey(privateKeyPEM string) (any, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in private key", domain.ErrCryptoOperation)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", domain.ErrCryptoOperation, err)
	}
	return key, nil
}

// TimestampedSignature binds a signature to the moment it was produced.
type TimestampedSignature struct {
	Signature string
	Timestamp time.Time
	Payload   string
}

// SignWithTimestamp signs "data::timestamp" so the signature's age can be
// checked at verification time.
func SignWithTimestamp(data string, privateKeyPEM string, now time.Time) (TimestampedSignature, error) {
	ts := now.UTC()
	payload := data + "::" + ts.Format(time.RFC3339Nano)
	sig, err := Sign([]byte(payload), privateKeyPEM)
	if err != nil {
		return TimestampedSignature{}, err
	}
	return TimestampedSignature{Signature: sig, Timestamp: ts, Payload: payload}, nil
}

type TimestampedVerification struct {
	SignatureValid bool
	TimestampValid bool
	Age            time.Duration
	OverallValid   bool
}

// VerifyWithTimestamp verifies a timestamped signature and rejects signatures
// older than maxAge.
func VerifyWithTimestamp(data string, ts time.Time, signatureHex, publicKeyPEM string, maxAge time.Duration, now time.Time) TimestampedVerification {
	payload := data + "::" + ts.UTC().Format(time.RFC3339Nano)
	valid := VerifySignature([]byte(payload), signatureHex, publicKeyPEM)
	age := now.Sub(ts)
	fresh := age <= maxAge
	return TimestampedVerification{
		SignatureValid: valid,
		TimestampValid: fresh,
		Age:            age,
		OverallValid:   valid && fresh,
	}
}
