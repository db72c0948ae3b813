package smpcrypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// decodes big endian hex (as printed in the specifications) into the
// little endian form the toolbox works with
func leBytes(t *testing.T, s string) []byte {
	t.Helper()
	out, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return SwapBuf(out)
}

func TestAesCMAC(t *testing.T) {
	// RFC 4493 examples 1 and 2
	key := leBytes(t, "2b7e151628aed2a6abf7158809cf4f3c")

	r, err := AesCMAC(key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, leBytes(t, "bb1d6929e95937287fa37d129b756746")) {
		t.Fatal("empty message mac didn't match")
	}

	msg := leBytes(t, "6bc1bee22e409f96e93d7e117393172a")
	r, err = AesCMAC(key, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, leBytes(t, "070a16b46b4d4144f79bdd9dd04a287c")) {
		t.Fatal("one block mac didn't match")
	}
}

func TestF4(t *testing.T) {
	// Core spec sample data
	u := leBytes(t, "20b003d2f297be2c5e2c83a7e9f9a5b9eff49111acf4fddbcc0301480e359de6")
	v := leBytes(t, "55188b3d32f6bb9a900afcfbeed4e72a59cb9ac2f19d7cfb6b4fdd49f47fc5fd")
	x := leBytes(t, "d5cb8454d177733effffb2ec712baeab")

	r, err := F4(u, v, x, 0x00)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, leBytes(t, "f2c916f107a9bd1cf1eda1bea974872d")) {
		t.Fatal("confirm value didn't match")
	}
}

func TestF4LengthValidation(t *testing.T) {
	if _, err := F4(make([]byte, 31), make([]byte, 32), make([]byte, 16), 0); err == nil {
		t.Fatal("expected length error")
	}
}

func TestG2(t *testing.T) {
	// Core spec sample data; the six digit compare value is 938554
	u := leBytes(t, "20b003d2f297be2c5e2c83a7e9f9a5b9eff49111acf4fddbcc0301480e359de6")
	v := leBytes(t, "55188b3d32f6bb9a900afcfbeed4e72a59cb9ac2f19d7cfb6b4fdd49f47fc5fd")
	x := leBytes(t, "d5cb8454d177733effffb2ec712baeab")
	y := leBytes(t, "a6e8e7cc25a75f6e216583f7ff3dc4cf")

	r, err := G2(u, v, x, y)
	if err != nil {
		t.Fatal(err)
	}
	if r != 938554 {
		t.Fatalf("compare value %d", r)
	}
}

func TestC1(t *testing.T) {
	k := make([]byte, 16)
	r := leBytes(t, "5783d52156ad6f0e6388274ec6702ee0")
	preq := leBytes(t, "07071000000101")
	pres := leBytes(t, "05000800000302")
	ia := leBytes(t, "a1a2a3a4a5a6")
	ra := leBytes(t, "b1b2b3b4b5b6")

	c, err := C1(k, r, preq, pres, 0x01, 0x00, ia, ra)
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 16 {
		t.Fatalf("confirm length %d", len(c))
	}

	// the confirm binds the address types; flipping one must change it
	c2, err := C1(k, r, preq, pres, 0x00, 0x00, ia, ra)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(c, c2) {
		t.Fatal("confirm ignored the initiator address type")
	}

	again, err := C1(k, r, preq, pres, 0x01, 0x00, ia, ra)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c, again) {
		t.Fatal("confirm not deterministic")
	}

	if _, err := C1(k, r, preq[:6], pres, 0x01, 0x00, ia, ra); err == nil {
		t.Fatal("expected length error")
	}
}

func TestS1(t *testing.T) {
	k := leBytes(t, "00112233445566778899aabbccddeeff")
	r1 := leBytes(t, "000F0E0D0C0B0A091122334455667788")
	r2 := leBytes(t, "010203040506070899AABBCCDDEEFF00")

	stk, err := S1(k, r1, r2)
	if err != nil {
		t.Fatal(err)
	}
	if len(stk) != 16 {
		t.Fatalf("stk length %d", len(stk))
	}

	// only the low halves of r1 and r2 contribute
	r1b := make([]byte, 16)
	r2b := make([]byte, 16)
	copy(r1b, r1)
	copy(r2b, r2)
	r1b[15] ^= 0xFF
	r2b[15] ^= 0xFF

	same, err := S1(k, r1b, r2b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stk, same) {
		t.Fatal("stk depends on the discarded halves")
	}

	swapped, err := S1(k, r2, r1)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(stk, swapped) {
		t.Fatal("stk ignored the operand order")
	}
}

func TestLegacyTK(t *testing.T) {
	tk := LegacyTK(0x01020304)

	want := make([]byte, 16)
	want[0] = 0x04
	want[1] = 0x03
	want[2] = 0x02
	want[3] = 0x01
	if !bytes.Equal(tk, want) {
		t.Fatalf("tk %x", tk)
	}
}

func TestSwapBuf(t *testing.T) {
	in := []byte{1, 2, 3}
	out := SwapBuf(in)
	if !bytes.Equal(out, []byte{3, 2, 1}) {
		t.Fatalf("swap %v", out)
	}
	if !bytes.Equal(in, []byte{1, 2, 3}) {
		t.Fatal("input mutated")
	}
}
