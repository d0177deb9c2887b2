package usecase

import (
	"context"
	"strings"
	"testing"

	"keystone/internal/domain"
	"keystone/internal/infra/crypto"
)

func TestEnsureDefaultIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.authority.EnsureDefault(ctx, testAdmin)
	if err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if !first.IsDefault || first.RootKeyID == "" {
		t.Fatalf("authority = %+v", first)
	}
	second, err := env.authority.EnsureDefault(ctx, testAdmin)
	if err != nil {
		t.Fatalf("second EnsureDefault: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("bootstrap must not create a second default authority")
	}
}

func TestCreateAuthorityStoresEncryptedRootKey(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	authority, err := env.authority.Create(ctx, testAdmin, CreateAuthorityInput{
		Name:      "Finance CA",
		KeyLength: 2048,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.Contains(authority.PublicKeyPEM, "PUBLIC KEY") {
		t.Fatal("authority public key not in PEM form")
	}

	rootKey, err := env.rootKeys.GetActiveByAuthority(ctx, authority.ID)
	if err != nil {
		t.Fatalf("GetActiveByAuthority: %v", err)
	}
	if strings.Contains(rootKey.PrivateKeyEncrypted, "PRIVATE KEY") {
		t.Fatal("root private key stored in plaintext")
	}

	envelope, err := crypto.ParseEnvelope(rootKey.PrivateKeyEncrypted)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	plain, err := crypto.AEADDecrypt(envelope, testMasterKey)
	if err != nil {
		t.Fatalf("AEADDecrypt: %v", err)
	}
	if !strings.Contains(string(plain), "PRIVATE KEY") {
		t.Fatal("decrypted material is not the private key PEM")
	}
}

func TestRotateRootKeyKeepsSingleActive(t *testing.T) {
	env := newTestEnv()
	authority := bootstrapAuthority(t, env)
	ctx := context.Background()

	oldKey, _ := env.rootKeys.GetActiveByAuthority(ctx, authority.ID)
	newKey, err := env.authority.RotateRootKey(ctx, testAdmin, authority.ID)
	if err != nil {
		t.Fatalf("RotateRootKey: %v", err)
	}
	if newKey.ID == oldKey.ID {
		t.Fatal("rotation must mint a new root key")
	}

	active, err := env.rootKeys.GetActiveByAuthority(ctx, authority.ID)
	if err != nil {
		t.Fatalf("GetActiveByAuthority: %v", err)
	}
	if active.ID != newKey.ID {
		t.Fatalf("active = %s, want %s", active.ID, newKey.ID)
	}
	retired, _ := env.rootKeys.GetByID(ctx, oldKey.ID)
	if retired.Status != domain.RootKeyStatusRotated {
		t.Fatalf("old key status = %q, want rotated", retired.Status)
	}

	updated, _ := env.authorities.GetByID(ctx, authority.ID)
	if updated.RootKeyID != newKey.ID || updated.PublicKeyPEM != newKey.PublicKeyPEM {
		t.Fatal("authority does not advertise the new root key")
	}
}
