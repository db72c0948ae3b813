package smpcrypto

import (
	"bytes"
	"testing"
)

func TestSignDataRoundTrip(t *testing.T) {
	csrk := leBytes(t, "00112233445566778899aabbccddeeff")
	msg := []byte{0x12, 0x03, 0x2a, 0x00, 0x01}

	pdu, err := SignData(csrk, msg, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(pdu) != len(msg)+12 {
		t.Fatalf("pdu length %d", len(pdu))
	}
	if !bytes.Equal(pdu[:len(msg)], msg) {
		t.Fatal("message not carried verbatim")
	}

	counter, err := VerifySignature(csrk, pdu)
	if err != nil {
		t.Fatal(err)
	}
	if counter != 42 {
		t.Fatalf("counter %d", counter)
	}
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	csrk := leBytes(t, "00112233445566778899aabbccddeeff")
	pdu, err := SignData(csrk, []byte("write"), 7)
	if err != nil {
		t.Fatal(err)
	}

	bad := append([]byte(nil), pdu...)
	bad[0] ^= 0xFF
	if _, err := VerifySignature(csrk, bad); err == nil {
		t.Fatal("tampered message accepted")
	}

	bad = append([]byte(nil), pdu...)
	bad[len(bad)-1] ^= 0xFF
	if _, err := VerifySignature(csrk, bad); err == nil {
		t.Fatal("tampered signature accepted")
	}

	other := leBytes(t, "ffeeddccbbaa99887766554433221100")
	if _, err := VerifySignature(other, pdu); err == nil {
		t.Fatal("wrong key accepted")
	}
}

func TestSignDataValidation(t *testing.T) {
	if _, err := SignData(make([]byte, 15), []byte{0x01}, 0); err == nil {
		t.Fatal("expected length error")
	}
	if _, err := VerifySignature(make([]byte, 16), make([]byte, 11)); err == nil {
		t.Fatal("expected short pdu error")
	}
}
