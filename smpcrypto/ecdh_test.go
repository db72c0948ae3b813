package smpcrypto

import (
	"bytes"
	"testing"
)

func TestSharedSecretAgreement(t *testing.T) {
	a, err := GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}

	s1, err := GenerateSecret(a.Private, b.Public)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := GenerateSecret(b.Private, a.Public)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(s1, s2) {
		t.Fatal("shared secrets differ")
	}
	if len(s1) != 32 {
		t.Fatalf("secret length %d", len(s1))
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	kp, err := GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}

	wire := MarshalPublicKeyXY(kp.Public)
	if len(wire) != 64 {
		t.Fatalf("wire length %d", len(wire))
	}

	pk, ok := UnmarshalPublicKey(wire)
	if !ok {
		t.Fatal("unmarshal failed")
	}
	if !bytes.Equal(MarshalPublicKeyXY(pk), wire) {
		t.Fatal("round trip changed the key")
	}

	if _, ok := UnmarshalPublicKey(wire[:63]); ok {
		t.Fatal("accepted a truncated key")
	}
}
