package channel_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"parley/internal/domain"
	"parley/internal/protocol/channel"
)

func makeSecret(t *testing.T) domain.SharedSecret {
	t.Helper()
	var s domain.SharedSecret
	if _, err := rand.Read(s[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return s
}

func TestSealOpen_RoundTrip(t *testing.T) {
	secret := makeSecret(t)
	for _, msg := range [][]byte{[]byte("Hello, this is a secure message!"), {}} {
		ct, nonce, err := channel.Seal(secret, msg)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		if len(ct) != len(msg)+channel.Overhead {
			t.Fatalf("ciphertext length %d, want %d", len(ct), len(msg)+channel.Overhead)
		}
		got, err := channel.Open(secret, ct, nonce)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("got %q, want %q", got, msg)
		}
	}
}

func TestSeal_FreshNonces(t *testing.T) {
	secret := makeSecret(t)
	_, n1, err := channel.Seal(secret, []byte("x"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	_, n2, err := channel.Seal(secret, []byte("x"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if n1 == n2 {
		t.Fatal("nonce reused across messages")
	}
}

func TestOpen_Failures(t *testing.T) {
	secret := makeSecret(t)
	ct, nonce, err := channel.Seal(secret, []byte("attack at dawn"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	flipped := append([]byte(nil), ct...)
	flipped[0] ^= 0x01
	if _, err := channel.Open(secret, flipped, nonce); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("tampered ciphertext: want ErrAuthentication, got %v", err)
	}

	badNonce := nonce
	badNonce[3] ^= 0x80
	if _, err := channel.Open(secret, ct, badNonce); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("tampered nonce: want ErrAuthentication, got %v", err)
	}

	if _, err := channel.Open(makeSecret(t), ct, nonce); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("wrong secret: want ErrAuthentication, got %v", err)
	}

	if _, err := channel.Open(secret, ct[:4], nonce); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("short ciphertext: want ErrAuthentication, got %v", err)
	}
}

func TestSeal_ZeroSecret(t *testing.T) {
	if _, _, err := channel.Seal(domain.SharedSecret{}, []byte("x")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}
