package blesec

// EventHandler receives application facing security events. Exactly one
// handler is active at a time; embed DefaultEventHandler to pick only the
// events you care about.
//
// All callbacks run on the stack's single event processing context, in the
// order the protocol produced them for a given connection.
type EventHandler interface {
	// PairingRequest reports an incoming pairing request that needs
	// authorisation. Answer with AcceptPairingRequest or
	// CancelPairingRequest.
	PairingRequest(connection ConnectionHandle)

	// PairingCompleted reports a successful pairing. Distributed keys have
	// already been committed to the security database.
	PairingCompleted(connection ConnectionHandle)

	// PairingError reports a failed pairing attempt. The transient pairing
	// state has been cleared; a new attempt may be started.
	PairingError(connection ConnectionHandle, reason PairingFailure)

	// PairingTimedOut reports expiry of the stack's per exchange timer.
	PairingTimedOut(connection ConnectionHandle)

	// LinkEncryptionResult reports the encryption level of the link after
	// a requested or peer initiated change.
	LinkEncryptionResult(connection ConnectionHandle, level LinkEncryption)

	// LinkEncryptionTimedOut reports that an encryption request was not
	// answered in time.
	LinkEncryptionTimedOut(connection ConnectionHandle)

	// PasskeyDisplay asks the application to show a passkey to the user.
	PasskeyDisplay(connection ConnectionHandle, passkey Passkey)

	// PasskeyRequest asks for a passkey typed by the user. Answer with
	// PasskeyEntered.
	PasskeyRequest(connection ConnectionHandle)

	// ConfirmationRequest asks for a yes/no numeric comparison answer.
	// Answer with ConfirmationEntered.
	ConfirmationRequest(connection ConnectionHandle)

	// KeypressNotification relays the peer's passkey entry progress.
	KeypressNotification(connection ConnectionHandle, keypress Keypress)

	// LegacyPairingOobRequest asks for the legacy out of band temporary
	// key. Answer with LegacyPairingOobReceived.
	LegacyPairingOobRequest(connection ConnectionHandle)

	// OobRequest asks for secure connections out of band data. Answer with
	// OobReceived.
	OobRequest(connection ConnectionHandle)

	// OobGenerated delivers locally generated secure connections OOB
	// material to hand to the peer over the out of band channel.
	OobGenerated(address Addr, random OobRand, confirm OobConfirm)

	// KeysDistributedLtk and friends report each key committed during key
	// distribution, before PairingCompleted fires.
	KeysDistributedLtk(connection ConnectionHandle, ltk Ltk)
	KeysDistributedEdivRand(connection ConnectionHandle, ediv Ediv, rand Rand)
	KeysDistributedLocalLtk(connection ConnectionHandle, ltk Ltk)
	KeysDistributedLocalEdivRand(connection ConnectionHandle, ediv Ediv, rand Rand)
	KeysDistributedIrk(connection ConnectionHandle, irk Irk)
	KeysDistributedBdaddr(connection ConnectionHandle, addressType AddressType, address Addr)
	KeysDistributedCsrk(connection ConnectionHandle, csrk Csrk)

	// SigningKey delivers the signing key for the connection after a
	// SetSigningKey request.
	SigningKey(connection ConnectionHandle, csrk *Csrk, authenticated bool)

	// SignedWriteVerificationFailure reports a peer signed write whose
	// signature or counter did not verify. Disconnect policy is the
	// application's call.
	SignedWriteVerificationFailure(connection ConnectionHandle)

	// SlaveSecurityRequest reports a security request from a peer slave.
	SlaveSecurityRequest(connection ConnectionHandle, auth AuthMask)

	// PeerIdentity delivers the stored identity of the peer after a
	// GetPeerIdentity request. address is nil when no identity is known.
	PeerIdentity(connection ConnectionHandle, address *Addr, addressIsPublic bool)

	// Whitelist delivers the bond table projection requested with
	// GenerateWhitelistFromBondTable.
	Whitelist(whitelist *Whitelist)
}

// DefaultEventHandler ignores every event.
type DefaultEventHandler struct{}

func (DefaultEventHandler) PairingRequest(ConnectionHandle)                        {}
func (DefaultEventHandler) PairingCompleted(ConnectionHandle)                      {}
func (DefaultEventHandler) PairingError(ConnectionHandle, PairingFailure)          {}
func (DefaultEventHandler) PairingTimedOut(ConnectionHandle)                       {}
func (DefaultEventHandler) LinkEncryptionResult(ConnectionHandle, LinkEncryption)  {}
func (DefaultEventHandler) LinkEncryptionTimedOut(ConnectionHandle)                {}
func (DefaultEventHandler) PasskeyDisplay(ConnectionHandle, Passkey)               {}
func (DefaultEventHandler) PasskeyRequest(ConnectionHandle)                        {}
func (DefaultEventHandler) ConfirmationRequest(ConnectionHandle)                   {}
func (DefaultEventHandler) KeypressNotification(ConnectionHandle, Keypress)        {}
func (DefaultEventHandler) LegacyPairingOobRequest(ConnectionHandle)               {}
func (DefaultEventHandler) OobRequest(ConnectionHandle)                            {}
func (DefaultEventHandler) OobGenerated(Addr, OobRand, OobConfirm)                 {}
func (DefaultEventHandler) KeysDistributedLtk(ConnectionHandle, Ltk)               {}
func (DefaultEventHandler) KeysDistributedEdivRand(ConnectionHandle, Ediv, Rand)   {}
func (DefaultEventHandler) KeysDistributedLocalLtk(ConnectionHandle, Ltk)          {}
func (DefaultEventHandler) KeysDistributedLocalEdivRand(ConnectionHandle, Ediv, Rand) {
}
func (DefaultEventHandler) KeysDistributedIrk(ConnectionHandle, Irk) {}
func (DefaultEventHandler) KeysDistributedBdaddr(ConnectionHandle, AddressType, Addr) {
}
func (DefaultEventHandler) KeysDistributedCsrk(ConnectionHandle, Csrk)         {}
func (DefaultEventHandler) SigningKey(ConnectionHandle, *Csrk, bool)           {}
func (DefaultEventHandler) SignedWriteVerificationFailure(ConnectionHandle)    {}
func (DefaultEventHandler) SlaveSecurityRequest(ConnectionHandle, AuthMask)    {}
func (DefaultEventHandler) PeerIdentity(ConnectionHandle, *Addr, bool)         {}
func (DefaultEventHandler) Whitelist(*Whitelist)                               {}
