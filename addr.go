package blesec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddrLen is the length of a BD_ADDR in bytes.
const AddrLen = 6

// Addr is a device address as it appears on air, little endian.
type Addr [AddrLen]byte

// AddressType qualifies an Addr.
type AddressType uint8

const (
	PublicAddress AddressType = iota
	RandomAddress
	PublicIdentityAddress
	RandomStaticIdentityAddress
)

// RandomAddressType is derived from the two most significant bits of a
// random address (Core spec Vol 6, Part B, 1.3.2).
type RandomAddressType uint8

const (
	RandomStatic RandomAddressType = iota
	RandomResolvablePrivate
	RandomNonResolvablePrivate
)

func NewAddr(s string) (Addr, error) {
	var a Addr
	hexStr := strings.Replace(strings.ToLower(s), ":", "", -1)

	out, err := hex.DecodeString(hexStr)
	if err != nil {
		return a, err
	}
	if len(out) != AddrLen {
		return a, fmt.Errorf("invalid address length %d", len(out))
	}

	// textual form is big endian
	for i := 0; i < AddrLen; i++ {
		a[i] = out[AddrLen-1-i]
	}
	return a, nil
}

func (a Addr) String() string {
	parts := make([]string, AddrLen)
	for i := 0; i < AddrLen; i++ {
		parts[i] = hex.EncodeToString([]byte{a[AddrLen-1-i]})
	}
	return strings.Join(parts, ":")
}

func (a Addr) Bytes() []byte {
	out := make([]byte, AddrLen)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is all zeros. A zero address is used
// as the "no stored address" marker in the security database.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// RandomType classifies a random address by its top bits.
func (a Addr) RandomType() RandomAddressType {
	switch a[5] >> 6 {
	case 0x03:
		return RandomStatic
	case 0x01:
		return RandomResolvablePrivate
	default:
		return RandomNonResolvablePrivate
	}
}

// IsPrivate reports whether the address/type pair names a private random
// address. Private addresses rotate and must not be used as persistent
// lookup keys.
func IsPrivate(t AddressType, a Addr) bool {
	return t == RandomAddress && a.RandomType() != RandomStatic
}

// IsPublicType reports whether the address type resolves to the public
// address space.
func IsPublicType(t AddressType) bool {
	return t == PublicAddress || t == PublicIdentityAddress
}
