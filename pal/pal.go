// Package pal is the boundary to the vendor link layer stack. The security
// manager drives the stack through the SecurityManager command interface
// and consumes its asynchronous indications through EventHandler; Adapter
// translates raw vendor messages into that event vocabulary.
package pal

import (
	"github.com/blekit/blesec"
)

// SecurityManager is the command surface of a PAL backend. Commands are
// fire and forget: the returned error only covers submission, results
// arrive later through EventHandler on the stack's event context.
type SecurityManager interface {
	// Initialize prepares the backend; called once from secmgr.Init.
	Initialize() error

	// Reset returns the backend to its post-Initialize state.
	Reset() error

	SetEventHandler(handler EventHandler)

	/* pairing */

	SendPairingRequest(
		connection blesec.ConnectionHandle,
		oobDataFlag bool,
		auth blesec.AuthMask,
		initiatorDist blesec.KeyDistribution,
		responderDist blesec.KeyDistribution,
	) error

	SendPairingResponse(
		connection blesec.ConnectionHandle,
		oobDataFlag bool,
		auth blesec.AuthMask,
		initiatorDist blesec.KeyDistribution,
		responderDist blesec.KeyDistribution,
	) error

	CancelPairing(connection blesec.ConnectionHandle, reason blesec.PairingFailure) error

	/* encryption */

	// EnableEncryption starts legacy encryption with a stored LTK.
	EnableEncryption(
		connection blesec.ConnectionHandle,
		ltk blesec.Ltk,
		rand blesec.Rand,
		ediv blesec.Ediv,
		mitm bool,
	) error

	// EnableEncryptionSc starts encryption with a secure connections LTK.
	EnableEncryptionSc(connection blesec.ConnectionHandle, ltk blesec.Ltk, mitm bool) error

	/* keys */

	// SetLtk answers an LTK request with the stored key.
	SetLtk(connection blesec.ConnectionHandle, ltk blesec.Ltk, mitm, secureConnections bool) error

	// SetLtkNotFound answers an LTK request negatively.
	SetLtkNotFound(connection blesec.ConnectionHandle) error

	SetIrk(irk blesec.Irk) error

	SetCsrk(csrk blesec.Csrk) error

	SetPeerCsrk(
		connection blesec.ConnectionHandle,
		csrk blesec.Csrk,
		authenticated bool,
		signCounter blesec.SignCount,
	) error

	/* MITM */

	PasskeyRequestReply(connection blesec.ConnectionHandle, passkey blesec.Passkey) error

	LegacyPairingOobRequestReply(connection blesec.ConnectionHandle, tk blesec.OobTk) error

	ConfirmationEntered(connection blesec.ConnectionHandle, confirmation bool) error

	SendKeypressNotification(connection blesec.ConnectionHandle, keypress blesec.Keypress) error

	// GenerateSecureConnectionsOob kicks off local OOB material
	// generation; the result arrives via SecureConnectionsOobGenerated.
	GenerateSecureConnectionsOob() error

	SecureConnectionsOobRequestReply(
		connection blesec.ConnectionHandle,
		localRandom blesec.OobRand,
		peerRandom blesec.OobRand,
		peerConfirm blesec.OobConfirm,
	) error

	/* global parameters */

	SetDisplayPasskey(passkey blesec.Passkey) error

	SetIoCapability(iocaps blesec.IoCaps) error

	// SetEncryptionKeyRequirements validates and pushes the 7..16 byte
	// key size window.
	SetEncryptionKeyRequirements(minimumByteSize, maximumByteSize uint8) error

	// SetAuthenticationTimeout takes 10 ms units.
	SetAuthenticationTimeout(connection blesec.ConnectionHandle, timeoutIn10ms uint16) error

	GetAuthenticationTimeout(connection blesec.ConnectionHandle) (uint16, error)

	SlaveSecurityRequest(connection blesec.ConnectionHandle, auth blesec.AuthMask) error

	GetSecureConnectionsSupport() (bool, error)

	// SetPrivateAddressTimeout may legitimately return
	// blesec.ErrNotImplemented on backends without privacy support.
	SetPrivateAddressTimeout(timeoutInSeconds uint16) error

	/* resolving list */

	// AddDeviceToResolvingList registers a bonded peer identity so the
	// controller can resolve its private addresses.
	AddDeviceToResolvingList(addressIsPublic bool, identityAddress blesec.Addr, irk blesec.Irk) error

	ClearResolvingList() error
}

// EventHandler is the event vocabulary emitted by a PAL backend. The
// security manager implements it; events for one connection arrive in
// protocol order.
type EventHandler interface {
	PairingRequest(
		connection blesec.ConnectionHandle,
		useOob bool,
		auth blesec.AuthMask,
		initiatorDist blesec.KeyDistribution,
		responderDist blesec.KeyDistribution,
	)

	PairingError(connection blesec.ConnectionHandle, reason blesec.PairingFailure)

	PairingTimedOut(connection blesec.ConnectionHandle)

	PairingCompleted(connection blesec.ConnectionHandle)

	LinkEncryptionResult(connection blesec.ConnectionHandle, level blesec.LinkEncryption)

	LinkEncryptionRequestTimedOut(connection blesec.ConnectionHandle)

	PasskeyDisplay(connection blesec.ConnectionHandle, passkey blesec.Passkey)

	PasskeyRequest(connection blesec.ConnectionHandle)

	ConfirmationRequest(connection blesec.ConnectionHandle)

	KeypressNotification(connection blesec.ConnectionHandle, keypress blesec.Keypress)

	LegacyPairingOobRequest(connection blesec.ConnectionHandle)

	SecureConnectionsOobRequest(connection blesec.ConnectionHandle)

	SecureConnectionsOobGenerated(random blesec.OobRand, confirm blesec.OobConfirm)

	// LtkRequest asks for the legacy LTK identified by ediv/rand.
	LtkRequest(connection blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand)

	// LtkRequestSc asks for the secure connections LTK (the request
	// carried a zero ediv/rand).
	LtkRequestSc(connection blesec.ConnectionHandle)

	KeysDistributedLtk(connection blesec.ConnectionHandle, ltk blesec.Ltk)
	KeysDistributedEdivRand(connection blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand)
	KeysDistributedLocalLtk(connection blesec.ConnectionHandle, ltk blesec.Ltk)
	KeysDistributedLocalEdivRand(connection blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand)
	KeysDistributedIrk(connection blesec.ConnectionHandle, irk blesec.Irk)
	KeysDistributedBdaddr(connection blesec.ConnectionHandle, addressType blesec.AddressType, address blesec.Addr)
	KeysDistributedCsrk(connection blesec.ConnectionHandle, csrk blesec.Csrk)

	SlaveSecurityRequest(connection blesec.ConnectionHandle, auth blesec.AuthMask)

	SignedWriteReceived(connection blesec.ConnectionHandle, signCounter blesec.SignCount)

	SignedWriteVerificationFailure(connection blesec.ConnectionHandle)
}
