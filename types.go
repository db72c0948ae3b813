package blesec

// AuthMask is the AuthReq field of a pairing request/response.
type AuthMask uint8

const (
	AuthBondable AuthMask = 0x01
	AuthMitm     AuthMask = 0x04
	AuthSc       AuthMask = 0x08
	AuthKeypress AuthMask = 0x10
)

func (m AuthMask) Bondable() bool { return m&AuthBondable != 0 }
func (m AuthMask) Mitm() bool     { return m&AuthMitm != 0 }
func (m AuthMask) Sc() bool       { return m&AuthSc != 0 }
func (m AuthMask) Keypress() bool { return m&AuthKeypress != 0 }

// KeyDistribution describes which keys one side sends during pairing
// (Core spec Vol 3, Part H, 3.6.1, Figure 3.11).
type KeyDistribution uint8

const (
	KeyDistEncryption KeyDistribution = 0x01 // LTK, EDIV, RAND
	KeyDistIdentity   KeyDistribution = 0x02 // IRK, identity address
	KeyDistSigning    KeyDistribution = 0x04 // CSRK
	KeyDistLink       KeyDistribution = 0x08

	KeyDistNone KeyDistribution = 0x00
	KeyDistAll  KeyDistribution = 0x0F
)

func (d KeyDistribution) Encryption() bool { return d&KeyDistEncryption != 0 }
func (d KeyDistribution) Identity() bool   { return d&KeyDistIdentity != 0 }
func (d KeyDistribution) Signing() bool    { return d&KeyDistSigning != 0 }
func (d KeyDistribution) Link() bool       { return d&KeyDistLink != 0 }

// LinkEncryption is the encryption state of a link.
type LinkEncryption uint8

const (
	NotEncrypted LinkEncryption = iota
	EncryptionInProgress
	Encrypted
	EncryptedWithMitm
)

var linkEncryptionStrings = map[LinkEncryption]string{
	NotEncrypted:         "not encrypted",
	EncryptionInProgress: "encryption in progress",
	Encrypted:            "encrypted",
	EncryptedWithMitm:    "encrypted with mitm",
}

func (l LinkEncryption) String() string {
	if s, ok := linkEncryptionStrings[l]; ok {
		return s
	}
	return "unknown"
}

// IoCaps are the IO capabilities advertised during pairing.
type IoCaps uint8

const (
	IoCapsDisplayOnly IoCaps = iota
	IoCapsDisplayYesNo
	IoCapsKeyboardOnly
	IoCapsNone
	IoCapsKeyboardDisplay
	IoCapsReservedStart
)

// PairingFailure is a pairing failed reason code
// (Core spec v5.2, Vol 3, Part H, 3.5.5, Table 3.7).
type PairingFailure uint8

const (
	FailurePasskeyEntryFailed   PairingFailure = 0x01
	FailureOobNotAvailable      PairingFailure = 0x02
	FailureAuthRequirements     PairingFailure = 0x03
	FailureConfirmValueFailed   PairingFailure = 0x04
	FailurePairingNotSupported  PairingFailure = 0x05
	FailureEncryptionKeySize    PairingFailure = 0x06
	FailureCommandNotSupported  PairingFailure = 0x07
	FailureUnspecified          PairingFailure = 0x08
	FailureRepeatedAttempts     PairingFailure = 0x09
	FailureInvalidParameters    PairingFailure = 0x0A
	FailureDHKeyCheckFailed     PairingFailure = 0x0B
	FailureNumericCompFailed    PairingFailure = 0x0C
	FailureBrEdrInProgress      PairingFailure = 0x0D
	FailureCrossTransportNotAll PairingFailure = 0x0E
)

var pairingFailureStrings = map[PairingFailure]string{
	FailurePasskeyEntryFailed:   "passkey entry failed",
	FailureOobNotAvailable:      "oob not available",
	FailureAuthRequirements:     "authentication requirements",
	FailureConfirmValueFailed:   "confirm value failed",
	FailurePairingNotSupported:  "pairing not supported",
	FailureEncryptionKeySize:    "encryption key size",
	FailureCommandNotSupported:  "command not supported",
	FailureUnspecified:          "unspecified reason",
	FailureRepeatedAttempts:     "repeated attempts",
	FailureInvalidParameters:    "invalid parameters",
	FailureDHKeyCheckFailed:     "dhkey check failed",
	FailureNumericCompFailed:    "numeric comparison failed",
	FailureBrEdrInProgress:      "BR/EDR pairing in progress",
	FailureCrossTransportNotAll: "cross-transport key derivation not allowed",
}

func (f PairingFailure) String() string {
	if s, ok := pairingFailureStrings[f]; ok {
		return s
	}
	return "reserved"
}

// Keypress is a keypress notification type sent during passkey entry.
type Keypress uint8

const (
	KeypressStarted Keypress = iota
	KeypressEntered
	KeypressErased
	KeypressCleared
	KeypressCompleted
)

// ConnectionHandle identifies an active link. It is only valid while the
// link is up.
type ConnectionHandle uint16

// ConnectionRole is the link layer role of the local device.
type ConnectionRole uint8

const (
	RoleMaster ConnectionRole = iota
	RoleSlave
)

// WhitelistEntry is a single projected bond table address.
type WhitelistEntry struct {
	Type    AddressType
	Address Addr
}

// Whitelist is a caller supplied, capacity bounded address container used
// to program the controller filter list.
type Whitelist struct {
	Capacity int
	Entries  []WhitelistEntry
}

func NewWhitelist(capacity int) *Whitelist {
	return &Whitelist{
		Capacity: capacity,
		Entries:  make([]WhitelistEntry, 0, capacity),
	}
}

func (w *Whitelist) Add(e WhitelistEntry) bool {
	if len(w.Entries) >= w.Capacity {
		return false
	}
	w.Entries = append(w.Entries, e)
	return true
}
