package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"golang.org/x/crypto/chacha20poly1305"

	"keystone/internal/domain"
)

const (
	AlgorithmAES256GCM        = "AES-256-GCM"
	AlgorithmChaCha20Poly1305 = "ChaCha20-Poly1305"

	aeadKeySize = 32
	// The persisted envelope format carries a 16-byte hex IV, so GCM runs
	// with an extended nonce size instead of the 12-byte default.
	gcmIVSize = 16
	tagSize   = 16
)

// Envelope is the persisted AEAD ciphertext format. All fields are hex except
// Algorithm; the whole envelope serializes to a single JSON string when stored
// alongside a record.
type Envelope struct {
	IV            string `json:"iv"`
	EncryptedData string `json:"encryptedData"`
	AuthTag       string `json:"authTag"`
	Algorithm     string `json:"algorithm"`
}

func (e Envelope) Serialize() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("%w: serialize envelope: %v", domain.ErrCryptoOperation, err)
	}
	return string(raw), nil
}

func ParseEnvelope(serialized string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(serialized), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: parse envelope: %v", domain.ErrCryptoOperation, err)
	}
	if env.IV == "" || env.EncryptedData == "" || env.AuthTag == "" {
		return Envelope{}, fmt.Errorf("%w: envelope missing fields", domain.ErrCryptoOperation)
	}
	return env, nil
}

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// normalizeKey accepts either a 64-char hex key or an arbitrary passphrase,
// which is hashed to a stable 32-byte key.
func normalizeKey(key string) []byte {
	if hexKeyPattern.MatchString(key) {
		raw, err := hex.DecodeString(key)
		if err == nil {
			return raw
		}
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// AEADEncrypt seals plaintext under key with the given algorithm (AES-256-GCM
// when empty). The returned envelope carries the IV and auth tag separately.
func AEADEncrypt(plaintext []byte, key string, algorithm string) (Envelope, error) {
	if algorithm == "" {
		algorithm = AlgorithmAES256GCM
	}
	aead, ivSize, err := newAEAD(algorithm, normalizeKey(key))
	if err != nil {
		return Envelope{}, err
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("%w: iv generation: %v", domain.ErrCryptoOperation, err)
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return Envelope{
		IV:            hex.EncodeToString(iv),
		EncryptedData: hex.EncodeToString(ciphertext),
		AuthTag:       hex.EncodeToString(tag),
		Algorithm:     algorithm,
	}, nil
}

// AEADDecrypt opens an envelope. Authentication failure returns ErrDecryption
// without ever yielding partial plaintext.
func AEADDecrypt(env Envelope, key string) ([]byte, error) {
	algorithm := env.Algorithm
	if algorithm == "" {
		algorithm = AlgorithmAES256GCM
	}
	aead, ivSize, err := newAEAD(algorithm, normalizeKey(key))
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != ivSize {
		return nil, fmt.Errorf("%w: malformed iv", domain.ErrDecryption)
	}
	ciphertext, err := hex.DecodeString(env.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext", domain.ErrDecryption)
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: malformed auth tag", domain.ErrDecryption)
	}
	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", domain.ErrDecryption)
	}
	return plaintext, nil
}

func newAEAD(algorithm string, key []byte) (cipher.AEAD, int, error) {
	if len(key) != aeadKeySize {
		return nil, 0, fmt.Errorf("%w: invalid key length %d (expected %d bytes)", domain.ErrCryptoOperation, len(key), aeadKeySize)
	}
	switch algorithm {
	case AlgorithmAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: aes cipher: %v", domain.ErrCryptoOperation, err)
		}
		aead, err := cipher.NewGCMWithNonceSize(block, gcmIVSize)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: gcm mode: %v", domain.ErrCryptoOperation, err)
		}
		return aead, gcmIVSize, nil
	case AlgorithmChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: chacha20poly1305: %v", domain.ErrCryptoOperation, err)
		}
		return aead, chacha20poly1305.NonceSize, nil
	default:
		return nil, 0, fmt.Errorf("%w: unsupported AEAD algorithm %q", domain.ErrCryptoOperation, algorithm)
	}
}
