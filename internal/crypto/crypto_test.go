package crypto_test

import (
	"testing"

	"parley/internal/crypto"
	"parley/internal/domain"
)

func TestDH_Commutes(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	bPriv, bPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	ab, err := crypto.DH(aPriv, bPub)
	if err != nil {
		t.Fatalf("DH(a, B): %v", err)
	}
	ba, err := crypto.DH(bPriv, aPub)
	if err != nil {
		t.Fatalf("DH(b, A): %v", err)
	}
	if ab != ba {
		t.Fatal("DH outputs differ")
	}
}

func TestDH_RejectsLowOrderPoint(t *testing.T) {
	priv, _, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	if _, err := crypto.DH(priv, domain.X25519Public{}); err == nil {
		t.Fatal("expected error for all-zero public key")
	}
}

func TestNewIdentity_DerivesX25519FromSeed(t *testing.T) {
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	xPriv, xPub, err := crypto.X25519FromEd25519(id.EdPriv)
	if err != nil {
		t.Fatalf("X25519FromEd25519: %v", err)
	}
	if xPriv != id.XPriv || xPub != id.XPub {
		t.Fatal("derivation is not deterministic")
	}
	pub, err := crypto.PublicX25519(id.XPriv)
	if err != nil {
		t.Fatalf("PublicX25519: %v", err)
	}
	if pub != id.XPub {
		t.Fatal("public half does not match private half")
	}
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	msg := []byte("prekey")
	sig := crypto.SignEd25519(priv, msg)
	if !crypto.VerifyEd25519(pub, msg, sig) {
		t.Fatal("valid signature rejected")
	}
	if crypto.VerifyEd25519(pub, []byte("other"), sig) {
		t.Fatal("signature over other message accepted")
	}
	if crypto.VerifyEd25519(pub, msg, sig[:10]) {
		t.Fatal("truncated signature accepted")
	}
}

func TestFingerprint_Length(t *testing.T) {
	fp := crypto.Fingerprint([]byte{1, 2, 3})
	if len(fp) != 20 {
		t.Fatalf("want 20 hex chars, got %d", len(fp))
	}
}
