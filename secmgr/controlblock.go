package secmgr

import (
	"github.com/blekit/blesec"
	"github.com/blekit/blesec/securitydb"
)

// MaxControlBlocks bounds how many simultaneous connections can use
// security features. The (N+1)-th connection gets ErrNoMem and stays
// usable without security.
const MaxControlBlocks = 5

// maxSignFailures caps the per connection signed write failure count.
const maxSignFailures = 3

// controlBlock is the transient security state of one active connection.
// It lives from OnConnectionOpened to OnConnectionClosed; bonding data
// outlives it in the security database entry it points at.
type controlBlock struct {
	connected bool

	connection      blesec.ConnectionHandle
	role            blesec.ConnectionRole
	peerAddressType blesec.AddressType
	peerAddress     blesec.Addr
	localAddress    blesec.Addr

	// entry is nil when the bond table was full at connection time;
	// the link then works but cannot be bonded.
	entry securitydb.EntryHandle

	initiatorDist blesec.KeyDistribution
	responderDist blesec.KeyDistribution

	encryptionLevel     blesec.LinkEncryption
	encryptionRequested bool
	encryptionFailed    bool

	// pendingEncryption is an escalation asked for while another change
	// was in flight; retried when the in-flight result lands.
	pendingEncryption blesec.LinkEncryption

	pairingInProgress          bool
	pairingRequestPending      bool
	passkeyRequestPending      bool
	confirmationRequestPending bool
	legacyOobRequestPending    bool
	oobRequestPending          bool

	// authenticated means MITM protection was achieved on this
	// connection, by pairing or by re-encryption with a MITM key.
	authenticated           bool
	mitmRequested           bool
	mitmPerformed           bool
	secureConnectionsPaired bool

	signingRequested bool
	signingOverride  bool

	attemptOob        bool
	oobPresent        bool
	oobMitmProtection bool

	// saturates at maxSignFailures
	signCounterFailures uint8
}

// clearPairingState drops the in-progress exchange state after an error,
// timeout or cancellation. Bonding data already written to the database
// entry is untouched.
func (cb *controlBlock) clearPairingState() {
	cb.pairingInProgress = false
	cb.pairingRequestPending = false
	cb.passkeyRequestPending = false
	cb.confirmationRequestPending = false
	cb.legacyOobRequestPending = false
	cb.oobRequestPending = false
	cb.mitmPerformed = false
	cb.initiatorDist = blesec.KeyDistNone
	cb.responderDist = blesec.KeyDistNone
}

func (cb *controlBlock) recordSignFailure() {
	if cb.signCounterFailures < maxSignFailures {
		cb.signCounterFailures++
	}
}

func (cb *controlBlock) signFailuresSaturated() bool {
	return cb.signCounterFailures >= maxSignFailures
}

func (m *SecurityManager) acquireControlBlock(connection blesec.ConnectionHandle) *controlBlock {
	for i := range m.controlBlocks {
		cb := &m.controlBlocks[i]
		if cb.connected {
			continue
		}
		*cb = controlBlock{
			connected:  true,
			connection: connection,
		}
		return cb
	}
	return nil
}

func (m *SecurityManager) controlBlock(connection blesec.ConnectionHandle) *controlBlock {
	for i := range m.controlBlocks {
		cb := &m.controlBlocks[i]
		if cb.connected && cb.connection == connection {
			return cb
		}
	}
	return nil
}

func (m *SecurityManager) controlBlockByAddress(address blesec.Addr) *controlBlock {
	for i := range m.controlBlocks {
		cb := &m.controlBlocks[i]
		if cb.connected && cb.peerAddress == address {
			return cb
		}
	}
	return nil
}

// releaseControlBlock returns the slot to the pool and lets the database
// decide the fate of the entry: reserved entries are recycled, written
// ones are kept and flushed.
func (m *SecurityManager) releaseControlBlock(cb *controlBlock) {
	if cb.entry != nil {
		m.db.CloseEntry(cb.entry)
		m.db.Sync()
	}
	*cb = controlBlock{}
}

func (m *SecurityManager) anyConnected() bool {
	for i := range m.controlBlocks {
		if m.controlBlocks[i].connected {
			return true
		}
	}
	return false
}
