package crypto

import (
	"strings"
	"testing"
	"time"

	"keystone/internal/domain"
)

func TestHashHexKnownVector(t *testing.T) {
	got := HashHex([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("sha256(abc) = %s, want %s", got, want)
	}
}

func TestRandomNonceLengthAndUniqueness(t *testing.T) {
	a, err := RandomNonce(0)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if len(a) != DefaultNonceBytes*2 {
		t.Fatalf("expected %d hex chars, got %d", DefaultNonceBytes*2, len(a))
	}
	b, _ := RandomNonce(0)
	if a == b {
		t.Fatal("two nonces must not collide")
	}
}

func TestSignVerifyPerAlgorithm(t *testing.T) {
	cases := []struct {
		alg    domain.KeyAlgorithm
		length int
	}{
		{domain.KeyAlgorithmRSA, 2048},
		{domain.KeyAlgorithmECDSA, 256},
		{domain.KeyAlgorithmECDSA, 384},
		{domain.KeyAlgorithmEdDSA, 0},
	}
	data := []byte("document-v1")
	for _, tc := range cases {
		pair, err := GenerateKeyPair(tc.alg, tc.length)
		if err != nil {
			t.Fatalf("%s/%d keygen: %v", tc.alg, tc.length, err)
		}
		if !strings.Contains(pair.PublicKeyPEM, "BEGIN PUBLIC KEY") {
			t.Fatalf("%s public key not PEM", tc.alg)
		}
		sig, err := Sign(data, pair.PrivateKeyPEM)
		if err != nil {
			t.Fatalf("%s sign: %v", tc.alg, err)
		}
		if !VerifySignature(data, sig, pair.PublicKeyPEM) {
			t.Fatalf("%s signature did not verify", tc.alg)
		}
		if VerifySignature([]byte("document-v2"), sig, pair.PublicKeyPEM) {
			t.Fatalf("%s signature verified against different data", tc.alg)
		}
	}
}

func TestVerifySignatureNeverPanicsOnGarbage(t *testing.T) {
	if VerifySignature([]byte("data"), "zz-not-hex", "junk") {
		t.Fatal("garbage input must not verify")
	}
	if VerifySignature([]byte("data"), "abcd", "-----BEGIN PUBLIC KEY-----\nnot base64\n-----END PUBLIC KEY-----") {
		t.Fatal("malformed PEM must not verify")
	}
	if VerifySignature([]byte("data"), "", "") {
		t.Fatal("empty input must not verify")
	}
}

func TestGenerateSymmetricKeyLength(t *testing.T) {
	key, err := GenerateSymmetricKey(256)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if len(key) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(key))
	}
}

func TestTimestampedSignature(t *testing.T) {
	pair, err := GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ts, err := SignWithTimestamp("payload", pair.PrivateKeyPEM, now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	res := VerifyWithTimestamp("payload", ts.Timestamp, ts.Signature, pair.PublicKeyPEM, time.Hour, now.Add(time.Minute))
	if !res.OverallValid {
		t.Fatalf("fresh signature should verify: %+v", res)
	}

	stale := VerifyWithTimestamp("payload", ts.Timestamp, ts.Signature, pair.PublicKeyPEM, time.Hour, now.Add(2*time.Hour))
	if stale.OverallValid || !stale.SignatureValid || stale.TimestampValid {
		t.Fatalf("stale signature should fail on age only: %+v", stale)
	}
}
