package smpcrypto

import (
	"crypto"
	"crypto/elliptic"
	"crypto/rand"

	ecdh "github.com/wsddn/go-ecdh"
)

// ECDHKeys is a P-256 key pair used for secure connections pairing and OOB
// generation.
type ECDHKeys struct {
	Public  crypto.PublicKey
	Private crypto.PrivateKey
}

func GenerateKeys() (*ECDHKeys, error) {
	var err error
	kp := ECDHKeys{}
	e := ecdh.NewEllipticECDH(elliptic.P256())

	kp.Private, kp.Public, err = e.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return &kp, nil
}

func UnmarshalPublicKey(b []byte) (crypto.PublicKey, bool) {
	if len(b) != 64 {
		return nil, false
	}

	e := ecdh.NewEllipticECDH(elliptic.P256())
	xs := SwapBuf(b[:32])
	ys := SwapBuf(b[32:])

	//add header
	r := append([]byte{0x04}, xs...)
	r = append(r, ys...)

	pk, ok := e.Unmarshal(r)

	return pk, ok
}

func MarshalPublicKeyXY(k crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())

	ba := e.Marshal(k)
	ba = ba[1:] //remove header
	x := SwapBuf(ba[:32])
	y := SwapBuf(ba[32:])

	out := append(x, y...)

	return out
}

func MarshalPublicKeyX(k crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())

	ba := e.Marshal(k)
	ba = ba[1:] //remove header
	x := SwapBuf(ba[:32])

	return x
}

func GenerateSecret(prv crypto.PrivateKey, pub crypto.PublicKey) ([]byte, error) {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	b, err := e.GenerateSharedSecret(prv, pub)
	b = SwapBuf(b)
	return b, err
}
