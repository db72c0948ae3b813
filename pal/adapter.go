package pal

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/blekit/blesec"
	"github.com/blekit/blesec/smpcrypto"
)

// Message is a raw security indication from the vendor stack: an event
// code, the connection it applies to, a status byte and an event specific
// little endian payload.
type Message struct {
	Event      uint8
	Connection blesec.ConnectionHandle
	Status     uint8
	Payload    []byte
}

// AuthReplyFunc answers a vendor authentication data request. data is a
// 3 byte passkey or a 16 byte temporary key; nil withholds the data.
type AuthReplyFunc func(connection blesec.ConnectionHandle, data []byte) error

// Adapter turns vendor security messages into EventHandler calls. Display
// passkey requests are answered directly (static passkey if configured,
// random otherwise) the same way the vendor reference port does, then
// surfaced as PasskeyDisplay.
type Adapter struct {
	handler        EventHandler
	authReply      AuthReplyFunc
	displayPasskey blesec.Passkey
	useFixedKey    bool

	log blesec.Logger
}

func NewAdapter(handler EventHandler, authReply AuthReplyFunc) *Adapter {
	return &Adapter{
		handler:   handler,
		authReply: authReply,
		log:       blesec.GetLogger().ChildLogger(map[string]interface{}{"pal": "adapter"}),
	}
}

func (a *Adapter) SetEventHandler(handler EventHandler) {
	a.handler = handler
}

// SetDisplayPasskey fixes the passkey shown on display requests; zero
// reverts to random passkeys.
func (a *Adapter) SetDisplayPasskey(passkey blesec.Passkey) {
	a.displayPasskey = passkey
	a.useFixedKey = passkey != 0
}

type secDispatcher struct {
	desc    string
	handler func(a *Adapter, m Message) error
}

var dispatcher = map[uint8]secDispatcher{
	SecPairInd:           {"pairing request", onPairInd},
	SecSlaveReqInd:       {"slave security req", onSlaveReqInd},
	SecPairCmplInd:       {"pairing complete", onPairCmplInd},
	SecPairFailInd:       {"pairing failed", onPairFailInd},
	SecEncryptInd:        {"encrypt result", onEncryptInd},
	SecEncryptFailInd:    {"encrypt failed", onEncryptFailInd},
	SecEncryptTimeoutInd: {"encrypt timeout", onEncryptTimeoutInd},
	SecAuthReqInd:        {"auth request", onAuthReqInd},
	SecKeyInd:            {"key indication", onKeyInd},
	SecLtkReqInd:         {"ltk request", onLtkReqInd},
	SecCalcOobInd:        {"oob generated", onCalcOobInd},
	SecCompareInd:        {"numeric compare", onCompareInd},
	SecKeypressInd:       {"keypress", onKeypressInd},
	SecOobReqInd:         {"sc oob request", onOobReqInd},
	SecSignedWriteInd:    {"signed write", onSignedWriteInd},
	SecSignedFailInd:     {"signed write failure", onSignedFailInd},
}

// Handle dispatches one vendor message. Unknown codes are logged and
// dropped; malformed payloads are reported without touching the handler.
func (a *Adapter) Handle(m Message) error {
	if a.handler == nil {
		return errors.New("no event handler")
	}

	v, ok := dispatcher[m.Event]
	if !ok || v.handler == nil {
		a.log.Warnf("unhandled security event %#x", m.Event)
		return nil
	}

	if err := v.handler(a, m); err != nil {
		return errors.Wrap(err, v.desc)
	}
	return nil
}

func onPairInd(a *Adapter, m Message) error {
	if len(m.Payload) < 4 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	a.handler.PairingRequest(
		m.Connection,
		m.Payload[0] != 0,
		blesec.AuthMask(m.Payload[1]),
		blesec.KeyDistribution(m.Payload[2]),
		blesec.KeyDistribution(m.Payload[3]),
	)
	return nil
}

func onSlaveReqInd(a *Adapter, m Message) error {
	if len(m.Payload) < 1 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	a.handler.SlaveSecurityRequest(m.Connection, blesec.AuthMask(m.Payload[0]))
	return nil
}

func onPairCmplInd(a *Adapter, m Message) error {
	a.handler.PairingCompleted(m.Connection)
	return nil
}

func onPairFailInd(a *Adapter, m Message) error {
	switch {
	case m.Status >= uint8(blesec.FailurePasskeyEntryFailed) &&
		m.Status <= uint8(blesec.FailureCrossTransportNotAll):
		a.handler.PairingError(m.Connection, blesec.PairingFailure(m.Status))
	case m.Status == StatusTimeout:
		a.handler.PairingTimedOut(m.Connection)
	default:
		// out of range codes are reported as unspecified
		a.handler.PairingError(m.Connection, blesec.FailureUnspecified)
	}
	return nil
}

func onEncryptInd(a *Adapter, m Message) error {
	if len(m.Payload) < 1 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	level := blesec.Encrypted
	if m.Payload[0] == SecLevelEncAuth || m.Payload[0] == SecLevelEncLesc {
		level = blesec.EncryptedWithMitm
	}
	a.handler.LinkEncryptionResult(m.Connection, level)
	return nil
}

func onEncryptFailInd(a *Adapter, m Message) error {
	a.handler.LinkEncryptionResult(m.Connection, blesec.NotEncrypted)
	return nil
}

func onEncryptTimeoutInd(a *Adapter, m Message) error {
	a.handler.LinkEncryptionRequestTimedOut(m.Connection)
	return nil
}

// onAuthReqInd discriminates between legacy OOB, passkey display and
// passkey entry requests: payload is [oob, display].
func onAuthReqInd(a *Adapter, m Message) error {
	if len(m.Payload) < 2 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	oob := m.Payload[0] != 0
	display := m.Payload[1] != 0

	if oob {
		a.handler.LegacyPairingOobRequest(m.Connection)
		return nil
	}

	if !display {
		a.handler.PasskeyRequest(m.Connection)
		return nil
	}

	passkey := a.displayPasskey
	if !a.useFixedKey {
		var err error
		passkey, err = randomPasskey()
		if err != nil {
			return err
		}
	}

	a.handler.PasskeyDisplay(m.Connection, passkey)

	if a.authReply == nil {
		return nil
	}
	reply := make([]byte, 3)
	reply[0] = byte(passkey)
	reply[1] = byte(passkey >> 8)
	reply[2] = byte(passkey >> 16)
	return a.authReply(m.Connection, reply)
}

func onKeyInd(a *Adapter, m Message) error {
	if len(m.Payload) < 1 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	keyType := m.Payload[0]
	data := m.Payload[1:]

	switch keyType {
	case KeyTypeLocalLtk, KeyTypePeerLtk:
		if len(data) < 26 {
			return errors.Errorf("short ltk payload %d", len(data))
		}
		var ltk blesec.Ltk
		copy(ltk[:], data[:16])
		ediv := blesec.Ediv(binary.LittleEndian.Uint16(data[16:18]))
		randVal := blesec.Rand(binary.LittleEndian.Uint64(data[18:26]))

		if keyType == KeyTypeLocalLtk {
			a.handler.KeysDistributedLocalLtk(m.Connection, ltk)
			a.handler.KeysDistributedLocalEdivRand(m.Connection, ediv, randVal)
		} else {
			a.handler.KeysDistributedLtk(m.Connection, ltk)
			a.handler.KeysDistributedEdivRand(m.Connection, ediv, randVal)
		}

	case KeyTypeIrk:
		if len(data) < 23 {
			return errors.Errorf("short irk payload %d", len(data))
		}
		addressType := blesec.AddressType(data[0])
		var address blesec.Addr
		copy(address[:], data[1:7])
		var irk blesec.Irk
		copy(irk[:], data[7:23])

		// identity address first so the entry is keyed before the irk
		// marks it resolvable
		a.handler.KeysDistributedBdaddr(m.Connection, addressType, address)
		a.handler.KeysDistributedIrk(m.Connection, irk)

	case KeyTypeCsrk:
		if len(data) < 16 {
			return errors.Errorf("short csrk payload %d", len(data))
		}
		var csrk blesec.Csrk
		copy(csrk[:], data[:16])
		a.handler.KeysDistributedCsrk(m.Connection, csrk)

	default:
		a.log.Warnf("unknown key type %#x", keyType)
	}
	return nil
}

func onLtkReqInd(a *Adapter, m Message) error {
	if len(m.Payload) < 10 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	ediv := blesec.Ediv(binary.LittleEndian.Uint16(m.Payload[:2]))
	randVal := blesec.Rand(binary.LittleEndian.Uint64(m.Payload[2:10]))

	// a zero ediv/rand pair targets the secure connections key
	if ediv == 0 && randVal == 0 {
		a.handler.LtkRequestSc(m.Connection)
	} else {
		a.handler.LtkRequest(m.Connection, ediv, randVal)
	}
	return nil
}

func onCalcOobInd(a *Adapter, m Message) error {
	if len(m.Payload) < 32 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	var random blesec.OobRand
	var confirm blesec.OobConfirm
	copy(random[:], m.Payload[:16])
	copy(confirm[:], m.Payload[16:32])

	a.handler.SecureConnectionsOobGenerated(random, confirm)
	return nil
}

func onCompareInd(a *Adapter, m Message) error {
	if len(m.Payload) < 16 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	value := smpcrypto.CompareValue(m.Payload[:16])

	a.handler.PasskeyDisplay(m.Connection, blesec.Passkey(value))
	a.handler.ConfirmationRequest(m.Connection)
	return nil
}

func onKeypressInd(a *Adapter, m Message) error {
	if len(m.Payload) < 1 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	a.handler.KeypressNotification(m.Connection, blesec.Keypress(m.Payload[0]))
	return nil
}

func onOobReqInd(a *Adapter, m Message) error {
	a.handler.SecureConnectionsOobRequest(m.Connection)
	return nil
}

func onSignedWriteInd(a *Adapter, m Message) error {
	if len(m.Payload) < 4 {
		return errors.Errorf("invalid length %d", len(m.Payload))
	}

	counter := blesec.SignCount(binary.LittleEndian.Uint32(m.Payload[:4]))
	a.handler.SignedWriteReceived(m.Connection, counter)
	return nil
}

func onSignedFailInd(a *Adapter, m Message) error {
	a.handler.SignedWriteVerificationFailure(m.Connection)
	return nil
}

func randomPasskey() (blesec.Passkey, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "passkey generation")
	}
	return blesec.Passkey(binary.LittleEndian.Uint32(b[:]) % 1000000), nil
}
