package blesec

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
)

// Key material value types. All are stored little endian as they travel in
// SMP key distribution PDUs.

type Ltk [16]byte

type Irk [16]byte

type Csrk [16]byte

// Ediv and Rand identify which legacy LTK a peer wants for re-encryption.
type Ediv uint16

type Rand uint64

// SignCount is the monotonic counter carried by signed writes.
type SignCount uint32

// OobTk is the temporary key exchanged out of band during legacy pairing.
type OobTk [16]byte

// OobRand and OobConfirm are the secure connections OOB values.
type OobRand [16]byte

type OobConfirm [16]byte

// Passkey is a 6 digit pairing passkey.
type Passkey uint32

const PasskeyMax Passkey = 999999

func (k Ltk) String() string  { return hex.EncodeToString(k[:]) }
func (k Irk) String() string  { return hex.EncodeToString(k[:]) }
func (k Csrk) String() string { return hex.EncodeToString(k[:]) }

func (k Ltk) IsZero() bool  { return k == Ltk{} }
func (k Irk) IsZero() bool  { return k == Irk{} }
func (k Csrk) IsZero() bool { return k == Csrk{} }

// GenerateCsrk produces a fresh local signing key.
func GenerateCsrk() (Csrk, error) {
	var k Csrk
	if _, err := rand.Read(k[:]); err != nil {
		return k, errors.Wrap(err, "csrk generation")
	}
	return k, nil
}

// GenerateIrk produces a fresh local identity resolving key.
func GenerateIrk() (Irk, error) {
	var k Irk
	if _, err := rand.Read(k[:]); err != nil {
		return k, errors.Wrap(err, "irk generation")
	}
	return k, nil
}
