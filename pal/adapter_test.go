package pal

import (
	"testing"

	"github.com/blekit/blesec"
)

// recorder captures the adapter's handler calls for inspection.
type recorder struct {
	calls []string

	conn    blesec.ConnectionHandle
	reason  blesec.PairingFailure
	level   blesec.LinkEncryption
	passkey blesec.Passkey
	auth    blesec.AuthMask
	iDist   blesec.KeyDistribution
	rDist   blesec.KeyDistribution
	oob     bool

	ltk      blesec.Ltk
	ediv     blesec.Ediv
	rand     blesec.Rand
	irk      blesec.Irk
	csrk     blesec.Csrk
	addrType blesec.AddressType
	addr     blesec.Addr
	counter  blesec.SignCount
	keypress blesec.Keypress
}

func (r *recorder) record(name string, conn blesec.ConnectionHandle) {
	r.calls = append(r.calls, name)
	r.conn = conn
}

func (r *recorder) PairingRequest(c blesec.ConnectionHandle, oob bool, a blesec.AuthMask, i, p blesec.KeyDistribution) {
	r.record("PairingRequest", c)
	r.oob, r.auth, r.iDist, r.rDist = oob, a, i, p
}
func (r *recorder) PairingError(c blesec.ConnectionHandle, reason blesec.PairingFailure) {
	r.record("PairingError", c)
	r.reason = reason
}
func (r *recorder) PairingTimedOut(c blesec.ConnectionHandle) { r.record("PairingTimedOut", c) }
func (r *recorder) PairingCompleted(c blesec.ConnectionHandle) {
	r.record("PairingCompleted", c)
}
func (r *recorder) LinkEncryptionResult(c blesec.ConnectionHandle, l blesec.LinkEncryption) {
	r.record("LinkEncryptionResult", c)
	r.level = l
}
func (r *recorder) LinkEncryptionRequestTimedOut(c blesec.ConnectionHandle) {
	r.record("LinkEncryptionRequestTimedOut", c)
}
func (r *recorder) PasskeyDisplay(c blesec.ConnectionHandle, p blesec.Passkey) {
	r.record("PasskeyDisplay", c)
	r.passkey = p
}
func (r *recorder) PasskeyRequest(c blesec.ConnectionHandle)      { r.record("PasskeyRequest", c) }
func (r *recorder) ConfirmationRequest(c blesec.ConnectionHandle) { r.record("ConfirmationRequest", c) }
func (r *recorder) KeypressNotification(c blesec.ConnectionHandle, k blesec.Keypress) {
	r.record("KeypressNotification", c)
	r.keypress = k
}
func (r *recorder) LegacyPairingOobRequest(c blesec.ConnectionHandle) {
	r.record("LegacyPairingOobRequest", c)
}
func (r *recorder) SecureConnectionsOobRequest(c blesec.ConnectionHandle) {
	r.record("SecureConnectionsOobRequest", c)
}
func (r *recorder) SecureConnectionsOobGenerated(blesec.OobRand, blesec.OobConfirm) {
	r.calls = append(r.calls, "SecureConnectionsOobGenerated")
}
func (r *recorder) LtkRequest(c blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand) {
	r.record("LtkRequest", c)
	r.ediv, r.rand = ediv, rand
}
func (r *recorder) LtkRequestSc(c blesec.ConnectionHandle) { r.record("LtkRequestSc", c) }
func (r *recorder) KeysDistributedLtk(c blesec.ConnectionHandle, ltk blesec.Ltk) {
	r.record("KeysDistributedLtk", c)
	r.ltk = ltk
}
func (r *recorder) KeysDistributedEdivRand(c blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand) {
	r.record("KeysDistributedEdivRand", c)
	r.ediv, r.rand = ediv, rand
}
func (r *recorder) KeysDistributedLocalLtk(c blesec.ConnectionHandle, ltk blesec.Ltk) {
	r.record("KeysDistributedLocalLtk", c)
	r.ltk = ltk
}
func (r *recorder) KeysDistributedLocalEdivRand(c blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand) {
	r.record("KeysDistributedLocalEdivRand", c)
	r.ediv, r.rand = ediv, rand
}
func (r *recorder) KeysDistributedIrk(c blesec.ConnectionHandle, irk blesec.Irk) {
	r.record("KeysDistributedIrk", c)
	r.irk = irk
}
func (r *recorder) KeysDistributedBdaddr(c blesec.ConnectionHandle, at blesec.AddressType, a blesec.Addr) {
	r.record("KeysDistributedBdaddr", c)
	r.addrType, r.addr = at, a
}
func (r *recorder) KeysDistributedCsrk(c blesec.ConnectionHandle, csrk blesec.Csrk) {
	r.record("KeysDistributedCsrk", c)
	r.csrk = csrk
}
func (r *recorder) SlaveSecurityRequest(c blesec.ConnectionHandle, a blesec.AuthMask) {
	r.record("SlaveSecurityRequest", c)
	r.auth = a
}
func (r *recorder) SignedWriteReceived(c blesec.ConnectionHandle, counter blesec.SignCount) {
	r.record("SignedWriteReceived", c)
	r.counter = counter
}
func (r *recorder) SignedWriteVerificationFailure(c blesec.ConnectionHandle) {
	r.record("SignedWriteVerificationFailure", c)
}

func (r *recorder) only(t *testing.T, names ...string) {
	t.Helper()
	if len(r.calls) != len(names) {
		t.Fatalf("calls %v, expected %v", r.calls, names)
	}
	for i := range names {
		if r.calls[i] != names[i] {
			t.Fatalf("calls %v, expected %v", r.calls, names)
		}
	}
}

func TestUnknownEventDropped(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	if err := a.Handle(Message{Event: 0x7F, Connection: 1}); err != nil {
		t.Fatal(err)
	}
	r.only(t)
}

func TestMalformedPayloadRejected(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	err := a.Handle(Message{Event: SecPairInd, Connection: 1, Payload: []byte{0x01}})
	if err == nil {
		t.Fatal("short payload accepted")
	}
	r.only(t)
}

func TestPairIndDecode(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	msg := Message{
		Event:      SecPairInd,
		Connection: 3,
		Payload:    []byte{0x01, byte(blesec.AuthBondable | blesec.AuthMitm), 0x07, 0x05},
	}
	if err := a.Handle(msg); err != nil {
		t.Fatal(err)
	}
	r.only(t, "PairingRequest")
	if r.conn != 3 || !r.oob || !r.auth.Mitm() || r.iDist != 0x07 || r.rDist != 0x05 {
		t.Fatalf("decoded %+v", r)
	}
}

func TestPairFailIndStatusMapping(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	msg := Message{Event: SecPairFailInd, Connection: 4, Status: uint8(blesec.FailureConfirmValueFailed)}
	if err := a.Handle(msg); err != nil {
		t.Fatal(err)
	}
	r.only(t, "PairingError")
	if r.reason != blesec.FailureConfirmValueFailed {
		t.Fatalf("reason %v", r.reason)
	}

	r.calls = nil
	if err := a.Handle(Message{Event: SecPairFailInd, Connection: 4, Status: StatusTimeout}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "PairingTimedOut")

	r.calls = nil
	if err := a.Handle(Message{Event: SecPairFailInd, Connection: 4, Status: 0xFF}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "PairingError")
	if r.reason != blesec.FailureUnspecified {
		t.Fatalf("out of range status mapped to %v", r.reason)
	}
}

func TestEncryptIndLevels(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	if err := a.Handle(Message{Event: SecEncryptInd, Connection: 5, Payload: []byte{SecLevelEnc}}); err != nil {
		t.Fatal(err)
	}
	if r.level != blesec.Encrypted {
		t.Fatalf("level %v", r.level)
	}

	if err := a.Handle(Message{Event: SecEncryptInd, Connection: 5, Payload: []byte{SecLevelEncLesc}}); err != nil {
		t.Fatal(err)
	}
	if r.level != blesec.EncryptedWithMitm {
		t.Fatalf("level %v", r.level)
	}

	if err := a.Handle(Message{Event: SecEncryptFailInd, Connection: 5}); err != nil {
		t.Fatal(err)
	}
	if r.level != blesec.NotEncrypted {
		t.Fatalf("level %v", r.level)
	}
}

func TestAuthReqIndDiscrimination(t *testing.T) {
	r := &recorder{}
	var replied []byte
	a := NewAdapter(r, func(_ blesec.ConnectionHandle, data []byte) error {
		replied = data
		return nil
	})
	a.SetDisplayPasskey(123456)

	// oob wins over display
	if err := a.Handle(Message{Event: SecAuthReqInd, Connection: 6, Payload: []byte{0x01, 0x01}}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "LegacyPairingOobRequest")

	// display: fixed passkey shown and auto replied little endian
	r.calls = nil
	if err := a.Handle(Message{Event: SecAuthReqInd, Connection: 6, Payload: []byte{0x00, 0x01}}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "PasskeyDisplay")
	if r.passkey != 123456 {
		t.Fatalf("passkey %d", r.passkey)
	}
	// 123456 = 0x01E240
	if len(replied) != 3 || replied[0] != 0x40 || replied[1] != 0xE2 || replied[2] != 0x01 {
		t.Fatalf("reply %x", replied)
	}

	// neither: user must type the passkey
	r.calls = nil
	if err := a.Handle(Message{Event: SecAuthReqInd, Connection: 6, Payload: []byte{0x00, 0x00}}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "PasskeyRequest")
}

func TestKeyIndDecode(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	ltk := make([]byte, 0, 27)
	ltk = append(ltk, KeyTypePeerLtk)
	for i := 0; i < 16; i++ {
		ltk = append(ltk, byte(i))
	}
	ltk = append(ltk, 0x34, 0x12)                                     // ediv
	ltk = append(ltk, 0xEF, 0xBE, 0xAD, 0xDE, 0x00, 0x00, 0x00, 0x00) // rand

	if err := a.Handle(Message{Event: SecKeyInd, Connection: 7, Payload: ltk}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "KeysDistributedLtk", "KeysDistributedEdivRand")
	if r.ltk[0] != 0 || r.ltk[15] != 15 || r.ediv != 0x1234 || r.rand != 0xDEADBEEF {
		t.Fatalf("decoded ltk %x ediv %x rand %x", r.ltk, r.ediv, r.rand)
	}

	r.calls = nil
	ltk[0] = KeyTypeLocalLtk
	if err := a.Handle(Message{Event: SecKeyInd, Connection: 7, Payload: ltk}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "KeysDistributedLocalLtk", "KeysDistributedLocalEdivRand")

	r.calls = nil
	irk := []byte{KeyTypeIrk, byte(blesec.PublicIdentityAddress)}
	irk = append(irk, 0x0B, 0x0A, 0x09, 0x08, 0x07, 0x06) // address
	for i := 0; i < 16; i++ {
		irk = append(irk, byte(0x40+i))
	}
	if err := a.Handle(Message{Event: SecKeyInd, Connection: 7, Payload: irk}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "KeysDistributedBdaddr", "KeysDistributedIrk")
	if r.addrType != blesec.PublicIdentityAddress || r.addr[0] != 0x0B || r.irk[0] != 0x40 {
		t.Fatalf("decoded addr %v irk %x", r.addr, r.irk)
	}

	r.calls = nil
	csrk := append([]byte{KeyTypeCsrk}, make([]byte, 16)...)
	csrk[1] = 0x99
	if err := a.Handle(Message{Event: SecKeyInd, Connection: 7, Payload: csrk}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "KeysDistributedCsrk")
	if r.csrk[0] != 0x99 {
		t.Fatalf("decoded csrk %x", r.csrk)
	}
}

func TestLtkReqIndTwoPaths(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	legacy := []byte{0x34, 0x12, 0x01, 0, 0, 0, 0, 0, 0, 0}
	if err := a.Handle(Message{Event: SecLtkReqInd, Connection: 8, Payload: legacy}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "LtkRequest")
	if r.ediv != 0x1234 || r.rand != 1 {
		t.Fatalf("ediv %x rand %x", r.ediv, r.rand)
	}

	r.calls = nil
	if err := a.Handle(Message{Event: SecLtkReqInd, Connection: 8, Payload: make([]byte, 10)}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "LtkRequestSc")
}

func TestCompareIndValue(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	payload := make([]byte, 16)
	// 0x01E240 = 123456
	payload[0] = 0x40
	payload[1] = 0xE2
	payload[2] = 0x01

	if err := a.Handle(Message{Event: SecCompareInd, Connection: 9, Payload: payload}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "PasskeyDisplay", "ConfirmationRequest")
	if r.passkey != 123456 {
		t.Fatalf("compare value %d", r.passkey)
	}
}

func TestSignedWriteIndCounter(t *testing.T) {
	r := &recorder{}
	a := NewAdapter(r, nil)

	if err := a.Handle(Message{Event: SecSignedWriteInd, Connection: 10, Payload: []byte{0x2A, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "SignedWriteReceived")
	if r.counter != 42 {
		t.Fatalf("counter %d", r.counter)
	}

	r.calls = nil
	if err := a.Handle(Message{Event: SecSignedFailInd, Connection: 10}); err != nil {
		t.Fatal(err)
	}
	r.only(t, "SignedWriteVerificationFailure")
}
