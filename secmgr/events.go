package secmgr

import (
	"github.com/blekit/blesec"
	"github.com/blekit/blesec/securitydb"
)

// Event side of the engine: SecurityManager implements pal.EventHandler.
// Events for a connection arrive in protocol order on the single event
// processing context; each handler updates the control block and the
// database entry, then surfaces the application callback.

func (m *SecurityManager) PairingRequest(
	connection blesec.ConnectionHandle,
	useOob bool,
	auth blesec.AuthMask,
	initiatorDist blesec.KeyDistribution,
	responderDist blesec.KeyDistribution,
) {
	cb := m.controlBlock(connection)
	if cb == nil {
		m.log.Warnf("pairing request on unknown connection %d", connection)
		if err := m.pal.CancelPairing(connection, blesec.FailureUnspecified); err != nil {
			m.log.Errorf("cancel pairing: %v", err)
		}
		return
	}

	if !m.legacyAllowed && !auth.Sc() {
		if err := m.pal.CancelPairing(connection, blesec.FailureAuthRequirements); err != nil {
			m.log.Errorf("cancel pairing: %v", err)
		}
		return
	}

	cb.pairingRequestPending = true
	cb.mitmRequested = cb.mitmRequested || auth.Mitm()
	cb.oobPresent = cb.oobPresent || useOob

	// accept what the peer offered, capped by what we would offer
	cb.initiatorDist = initiatorDist & m.initiatorDefaultDist
	cb.responderDist = responderDist & m.responderDefaultDist
	if !m.signingWanted(cb) {
		cb.initiatorDist &^= blesec.KeyDistSigning
		cb.responderDist &^= blesec.KeyDistSigning
	}

	if !m.authorisation {
		if err := m.sendPairingResponse(cb); err != nil {
			m.log.Errorf("auto accept pairing: %v", err)
		}
		return
	}
	m.handler.PairingRequest(connection)
}

func (m *SecurityManager) PairingError(connection blesec.ConnectionHandle, reason blesec.PairingFailure) {
	if cb := m.controlBlock(connection); cb != nil {
		cb.clearPairingState()
	}
	m.handler.PairingError(connection, reason)
}

func (m *SecurityManager) PairingTimedOut(connection blesec.ConnectionHandle) {
	if cb := m.controlBlock(connection); cb != nil {
		cb.clearPairingState()
	}
	m.handler.PairingTimedOut(connection)
}

// PairingCompleted commits the negotiated security properties of the
// exchange to the bond entry. The individual keys were already persisted
// as they were distributed.
func (m *SecurityManager) PairingCompleted(connection blesec.ConnectionHandle) {
	cb := m.controlBlock(connection)
	if cb == nil {
		m.handler.PairingCompleted(connection)
		return
	}

	cb.mitmPerformed = cb.mitmRequested
	cb.authenticated = cb.authenticated || cb.mitmPerformed

	if cb.entry != nil {
		if flags := m.db.DistributionFlags(cb.entry); flags != nil {
			committed := *flags
			committed.MitmPerformed = cb.mitmPerformed
			committed.SecureConnectionsPaired = cb.secureConnectionsPaired
			committed.OobUsed = cb.oobPresent
			if committed.EncryptionKeySize == 0 {
				committed.EncryptionKeySize = m.maxKeySize
			}
			m.db.SetDistributionFlags(cb.entry, committed)
		}
		m.db.Sync()
	}

	cb.pairingInProgress = false
	cb.pairingRequestPending = false
	m.handler.PairingCompleted(connection)
}

/* encryption */

func (m *SecurityManager) LinkEncryptionResult(connection blesec.ConnectionHandle, level blesec.LinkEncryption) {
	cb := m.controlBlock(connection)
	if cb != nil {
		if cb.encryptionRequested && level == blesec.NotEncrypted {
			cb.encryptionFailed = true
		}
		if level != blesec.NotEncrypted {
			cb.encryptionFailed = false
		}
		cb.encryptionLevel = level
		cb.encryptionRequested = false
		if level == blesec.EncryptedWithMitm {
			cb.authenticated = true
		}
	}
	m.handler.LinkEncryptionResult(connection, level)

	// an escalation deferred while this change was in flight runs now
	if cb != nil {
		pending := cb.pendingEncryption
		cb.pendingEncryption = blesec.NotEncrypted
		if pending > level {
			if err := m.enableEncryption(cb, pending == blesec.EncryptedWithMitm); err != nil {
				m.log.Errorf("deferred encryption request: %v", err)
			}
		}
	}
}

func (m *SecurityManager) LinkEncryptionRequestTimedOut(connection blesec.ConnectionHandle) {
	if cb := m.controlBlock(connection); cb != nil {
		cb.encryptionRequested = false
	}
	m.handler.LinkEncryptionTimedOut(connection)
}

/* MITM */

func (m *SecurityManager) PasskeyDisplay(connection blesec.ConnectionHandle, passkey blesec.Passkey) {
	m.handler.PasskeyDisplay(connection, passkey)
}

func (m *SecurityManager) PasskeyRequest(connection blesec.ConnectionHandle) {
	if cb := m.controlBlock(connection); cb != nil {
		cb.passkeyRequestPending = true
	}
	m.handler.PasskeyRequest(connection)
}

func (m *SecurityManager) ConfirmationRequest(connection blesec.ConnectionHandle) {
	if cb := m.controlBlock(connection); cb != nil {
		cb.confirmationRequestPending = true
	}
	m.handler.ConfirmationRequest(connection)
}

func (m *SecurityManager) KeypressNotification(connection blesec.ConnectionHandle, keypress blesec.Keypress) {
	m.handler.KeypressNotification(connection, keypress)
}

/* out of band */

func (m *SecurityManager) LegacyPairingOobRequest(connection blesec.ConnectionHandle) {
	cb := m.controlBlock(connection)
	if cb == nil {
		return
	}

	// a key received ahead of time answers the request directly
	if m.oobLegacyPresent && m.oobLegacyAddress == cb.peerAddress {
		if err := m.pal.LegacyPairingOobRequestReply(connection, m.oobLegacyTk); err != nil {
			m.log.Errorf("legacy oob reply: %v", err)
		}
		return
	}

	cb.legacyOobRequestPending = true
	m.handler.LegacyPairingOobRequest(connection)
}

func (m *SecurityManager) SecureConnectionsOobRequest(connection blesec.ConnectionHandle) {
	cb := m.controlBlock(connection)
	if cb == nil {
		return
	}

	if m.oobPeerPresent && m.oobPeerAddress == cb.peerAddress {
		err := m.pal.SecureConnectionsOobRequestReply(connection, m.oobLocalRandom, m.oobPeerRandom, m.oobPeerConfirm)
		if err != nil {
			m.log.Errorf("sc oob reply: %v", err)
		}
		return
	}

	cb.oobRequestPending = true
	m.handler.OobRequest(connection)
}

func (m *SecurityManager) SecureConnectionsOobGenerated(random blesec.OobRand, confirm blesec.OobConfirm) {
	if !m.oobLocalPending {
		m.log.Warn("unsolicited oob material dropped")
		return
	}
	m.oobLocalPending = false
	m.oobLocalRandom = random
	m.handler.OobGenerated(m.oobLocalAddress, random, confirm)
}

/* LTK requests */

// LtkRequest answers a legacy re-encryption request. The key is returned
// only when the stored ediv/rand pair matches exactly; anything else gets
// a not-found reply so the link is never encrypted with the wrong key.
func (m *SecurityManager) LtkRequest(connection blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand) {
	cb := m.controlBlock(connection)
	if cb == nil || cb.entry == nil {
		m.ltkNotFound(connection)
		return
	}

	answered := false
	m.db.GetEntryLocalKeys(func(eh securitydb.EntryHandle, keys *securitydb.EntryKeys) {
		answered = true
		if keys == nil {
			m.ltkNotFound(connection)
			return
		}
		flags := m.db.DistributionFlags(eh)
		mitm := flags != nil && flags.LtkMitm
		if err := m.pal.SetLtk(connection, keys.Ltk, mitm, false); err != nil {
			m.log.Errorf("ltk reply: %v", err)
		}
	}, cb.entry, ediv, rand)

	if !answered {
		m.ltkNotFound(connection)
	}
}

// LtkRequestSc answers a secure connections re-encryption request (the
// peer sent a zero ediv/rand pair).
func (m *SecurityManager) LtkRequestSc(connection blesec.ConnectionHandle) {
	cb := m.controlBlock(connection)
	if cb == nil || cb.entry == nil {
		m.ltkNotFound(connection)
		return
	}

	answered := false
	m.db.GetEntryLocalKeysSc(func(eh securitydb.EntryHandle, keys *securitydb.EntryKeys) {
		answered = true
		if keys == nil {
			m.ltkNotFound(connection)
			return
		}
		flags := m.db.DistributionFlags(eh)
		mitm := flags != nil && flags.LtkMitm
		if err := m.pal.SetLtk(connection, keys.Ltk, mitm, true); err != nil {
			m.log.Errorf("sc ltk reply: %v", err)
		}
	}, cb.entry)

	if !answered {
		m.ltkNotFound(connection)
	}
}

func (m *SecurityManager) ltkNotFound(connection blesec.ConnectionHandle) {
	if err := m.pal.SetLtkNotFound(connection); err != nil {
		m.log.Errorf("ltk not found reply: %v", err)
	}
}

/* key distribution */

func (m *SecurityManager) KeysDistributedLtk(connection blesec.ConnectionHandle, ltk blesec.Ltk) {
	cb := m.controlBlock(connection)
	if cb != nil && cb.entry != nil {
		m.db.SetEntryPeerLtk(cb.entry, ltk)
		if flags := m.db.DistributionFlags(cb.entry); flags != nil {
			committed := *flags
			committed.LtkMitm = cb.mitmRequested
			m.db.SetDistributionFlags(cb.entry, committed)
		}
	}
	m.handler.KeysDistributedLtk(connection, ltk)
}

func (m *SecurityManager) KeysDistributedEdivRand(connection blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand) {
	cb := m.controlBlock(connection)
	if cb != nil && cb.entry != nil {
		m.db.SetEntryPeerEdivRand(cb.entry, ediv, rand)
	}
	m.handler.KeysDistributedEdivRand(connection, ediv, rand)
}

func (m *SecurityManager) KeysDistributedLocalLtk(connection blesec.ConnectionHandle, ltk blesec.Ltk) {
	cb := m.controlBlock(connection)
	if cb != nil && cb.entry != nil {
		m.db.SetEntryLocalLtk(cb.entry, ltk)
	}
	m.handler.KeysDistributedLocalLtk(connection, ltk)
}

func (m *SecurityManager) KeysDistributedLocalEdivRand(connection blesec.ConnectionHandle, ediv blesec.Ediv, rand blesec.Rand) {
	cb := m.controlBlock(connection)
	if cb != nil && cb.entry != nil {
		m.db.SetEntryLocalEdivRand(cb.entry, ediv, rand)
	}
	m.handler.KeysDistributedLocalEdivRand(connection, ediv, rand)
}

func (m *SecurityManager) KeysDistributedIrk(connection blesec.ConnectionHandle, irk blesec.Irk) {
	cb := m.controlBlock(connection)
	if cb != nil && cb.entry != nil {
		m.db.SetEntryPeerIrk(cb.entry, irk)

		// the identity address arrives before the irk, so the entry can
		// go straight into the resolving list
		if m.privacyEnabled {
			m.db.GetEntryIdentity(func(eh securitydb.EntryHandle, identity *securitydb.EntryIdentity) {
				if identity == nil || identity.IdentityAddress.IsZero() {
					return
				}
				err := m.pal.AddDeviceToResolvingList(
					identity.IdentityAddressIsPublic, identity.IdentityAddress, identity.Irk)
				if err != nil {
					m.log.Errorf("resolving list add: %v", err)
				}
			}, cb.entry)
		}
	}
	m.handler.KeysDistributedIrk(connection, irk)
}

func (m *SecurityManager) KeysDistributedBdaddr(connection blesec.ConnectionHandle, addressType blesec.AddressType, address blesec.Addr) {
	cb := m.controlBlock(connection)
	if cb != nil && cb.entry != nil {
		m.db.SetEntryPeerBdaddr(cb.entry, blesec.IsPublicType(addressType), address)
	}
	m.handler.KeysDistributedBdaddr(connection, addressType, address)
}

func (m *SecurityManager) KeysDistributedCsrk(connection blesec.ConnectionHandle, csrk blesec.Csrk) {
	cb := m.controlBlock(connection)
	if cb != nil && cb.entry != nil {
		m.db.SetEntryPeerCsrk(cb.entry, csrk)
		if flags := m.db.DistributionFlags(cb.entry); flags != nil {
			committed := *flags
			committed.CsrkMitm = cb.mitmRequested
			m.db.SetDistributionFlags(cb.entry, committed)
		}
		if err := m.pal.SetPeerCsrk(connection, csrk, cb.mitmRequested, 0); err != nil {
			m.log.Errorf("set peer csrk: %v", err)
		}
	}
	m.handler.KeysDistributedCsrk(connection, csrk)
}

/* slave security request */

// SlaveSecurityRequest satisfies a peer slave's demand for security:
// already met demands re-report the level, bonded links re-encrypt, and
// anything else pairs.
func (m *SecurityManager) SlaveSecurityRequest(connection blesec.ConnectionHandle, auth blesec.AuthMask) {
	m.handler.SlaveSecurityRequest(connection, auth)

	cb := m.controlBlock(connection)
	if cb == nil || cb.role != blesec.RoleMaster {
		return
	}

	needMitm := auth.Mitm()

	satisfied := cb.encryptionLevel == blesec.EncryptedWithMitm ||
		(cb.encryptionLevel == blesec.Encrypted && !needMitm)
	if satisfied {
		m.handler.LinkEncryptionResult(connection, cb.encryptionLevel)
		return
	}

	if err := m.enableEncryption(cb, needMitm); err != nil {
		m.log.Errorf("slave security request: %v", err)
	}
}

/* signing */

// SignedWriteReceived validates the monotonic counter of a peer signed
// write. Stale or replayed counters bump the failure counter and raise a
// verification failure; the disconnect decision is left to the
// application.
func (m *SecurityManager) SignedWriteReceived(connection blesec.ConnectionHandle, signCounter blesec.SignCount) {
	cb := m.controlBlock(connection)
	if cb == nil || cb.entry == nil {
		return
	}

	accepted := false
	m.db.GetEntryPeerCsrk(func(eh securitydb.EntryHandle, csrk *blesec.Csrk, stored blesec.SignCount) {
		if csrk == nil {
			return
		}
		if signCounter > stored {
			accepted = true
			m.db.SetEntryPeerSignCounter(eh, signCounter)
		}
	}, cb.entry)

	if accepted {
		m.db.Sync()
		return
	}

	cb.recordSignFailure()
	if cb.signFailuresSaturated() {
		m.log.Warnf("repeated signed write failures on connection %d", connection)
	}
	m.handler.SignedWriteVerificationFailure(connection)
}

func (m *SecurityManager) SignedWriteVerificationFailure(connection blesec.ConnectionHandle) {
	if cb := m.controlBlock(connection); cb != nil {
		cb.recordSignFailure()
		if cb.signFailuresSaturated() {
			m.log.Warnf("repeated signed write failures on connection %d", connection)
		}
	}
	m.handler.SignedWriteVerificationFailure(connection)
}
