// Package smpcrypto implements the SMP cryptographic toolbox
// (Core spec v5.2, Vol 3, Part H, 2.2).
package smpcrypto

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"

	"github.com/aead/cmac"
)

// AesCMAC computes AES-CMAC over msg with key, both given little endian.
func AesCMAC(key, msg []byte) ([]byte, error) {
	tmp := SwapBuf(key)
	mCipher, err := aes.NewCipher(tmp)
	if err != nil {
		return nil, err
	}

	msgMsb := SwapBuf(msg)

	mMac, err := cmac.New(mCipher)
	if err != nil {
		return nil, err
	}

	mMac.Write(msgMsb)

	return SwapBuf(mMac.Sum(nil)), nil
}

func aes128(key, msg []byte) ([]byte, error) {
	mCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 16)
	mCipher.Encrypt(out, msg)
	return out, nil
}

// F4 is the confirm value generation function for secure connections.
func F4(u, v, x []byte, z uint8) ([]byte, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 {
		return nil, fmt.Errorf("length error")
	}

	m := []byte{z}
	m = append(m, v...)
	m = append(m, u...)

	return AesCMAC(x, m)
}

// F5 derives MacKey and LTK from the DH key.
func F5(w, n1, n2, a1, a2 []byte) ([]byte, []byte, error) {
	switch {
	case len(w) != 32:
		return nil, nil, fmt.Errorf("length error w")
	case len(n1) != 16:
		return nil, nil, fmt.Errorf("length error n1")
	case len(n2) != 16:
		return nil, nil, fmt.Errorf("length error n2")
	case len(a1) != 7:
		return nil, nil, fmt.Errorf("length error a1")
	case len(a2) != 7:
		return nil, nil, fmt.Errorf("length error a2")
	}

	btle := []byte{0x65, 0x6c, 0x74, 0x62}
	salt := []byte{0xbe, 0x83, 0x60, 0x5a, 0xdb, 0x0b, 0x37, 0x60,
		0x38, 0xa5, 0xf5, 0xaa, 0x91, 0x83, 0x88, 0x6c}
	length := []byte{0x00, 0x01}

	t, err := AesCMAC(salt, w)
	if err != nil {
		return nil, nil, err
	}

	m := length
	m = append(m, a2...)
	m = append(m, a1...)
	m = append(m, n2...)
	m = append(m, n1...)
	m = append(m, btle...)
	m = append(m, 0x00)

	macKey, err := AesCMAC(t, m)
	if err != nil {
		return nil, nil, err
	}

	//ltk generation bit
	m[52] = 0x01

	ltk, err := AesCMAC(t, m)
	if err != nil {
		return nil, nil, err
	}

	return macKey, ltk, nil
}

// F6 is the check value generation function for the DHKey check stage.
func F6(w, n1, n2, r, ioCap, a1, a2 []byte) ([]byte, error) {
	if len(w) != 16 || len(n1) != 16 || len(n2) != 16 || len(r) != 16 || len(ioCap) != 3 || len(a1) != 7 || len(a2) != 7 {
		return nil, fmt.Errorf("length error")
	}

	// f6(W, N1, N2, R, IOcap, A1, A2) = AES-CMAC W (N1 || N2 || R || IOcap || A1 || A2)
	m := append(a2, a1...)
	m = append(m, ioCap...)
	m = append(m, r...)
	m = append(m, n2...)
	m = append(m, n1...)

	return AesCMAC(w, m)
}

// G2 is the numeric comparison value generation function.
func G2(u, v, x, y []byte) (uint32, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 || len(y) != 16 {
		return 0, fmt.Errorf("length error")
	}

	// g2 (U, V, X, Y) = AES-CMAC X (U || V || Y) mod 2^32
	m := append(y, v...)
	m = append(m, u...)

	h, err := AesCMAC(x, m)
	if err != nil {
		return 0, err
	}

	return CompareValue(h), nil
}

// CompareValue truncates a confirm value to the 6 digit number shown to
// the user for numeric comparison, little endian.
func CompareValue(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b[:4]) % 1000000
}

// C1 is the legacy confirm value generation function:
// c1(k, r, preq, pres, iat, rat, ia, ra) = e(k, e(k, r XOR p1) XOR p2).
// All multi-byte inputs are little endian.
func C1(k, r, preq, pres []byte, iat, rat uint8, ia, ra []byte) ([]byte, error) {
	if len(k) != 16 || len(r) != 16 || len(preq) != 7 || len(pres) != 7 || len(ia) != 6 || len(ra) != 6 {
		return nil, fmt.Errorf("length error")
	}

	// p1 = pres || preq || rat || iat
	p1 := []byte{iat, rat}
	p1 = append(p1, preq...)
	p1 = append(p1, pres...)

	// p2 = padding || ia || ra
	p2 := make([]byte, 0, 16)
	p2 = append(p2, ra...)
	p2 = append(p2, ia...)
	p2 = append(p2, 0x00, 0x00, 0x00, 0x00)

	kMsb := SwapBuf(k)

	inner, err := aes128(kMsb, SwapBuf(xorSlice(r, p1)))
	if err != nil {
		return nil, err
	}

	out, err := aes128(kMsb, SwapBuf(xorSlice(SwapBuf(inner), p2)))
	if err != nil {
		return nil, err
	}

	return SwapBuf(out), nil
}

// S1 is the legacy STK generation function:
// s1(k, r1, r2) = e(k, r1' || r2') over the low halves of r1 and r2.
func S1(k, r1, r2 []byte) ([]byte, error) {
	if len(k) != 16 || len(r1) != 16 || len(r2) != 16 {
		return nil, fmt.Errorf("length error")
	}

	// r' = r1[0:8] || r2[0:8], little endian low halves
	r := make([]byte, 0, 16)
	r = append(r, r2[:8]...)
	r = append(r, r1[:8]...)

	out, err := aes128(SwapBuf(k), SwapBuf(r))
	if err != nil {
		return nil, err
	}

	return SwapBuf(out), nil
}

// LegacyTK expands a passkey into the legacy pairing temporary key.
func LegacyTK(key uint32) []byte {
	tk := make([]byte, 16)
	keyBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(keyBytes, key)
	tk[12] = keyBytes[0]
	tk[13] = keyBytes[1]
	tk[14] = keyBytes[2]
	tk[15] = keyBytes[3]

	return SwapBuf(tk)
}
