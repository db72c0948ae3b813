// Package secmgr is the pairing engine. It validates application requests,
// drives the PAL with commands, consumes the PAL's asynchronous events and
// keeps the per connection control blocks and the security database
// consistent with the protocol.
//
// Everything here runs on the stack's single event processing context;
// there is no internal locking.
package secmgr

import (
	"crypto/rand"

	"github.com/pkg/errors"

	"github.com/blekit/blesec"
	"github.com/blekit/blesec/pal"
	"github.com/blekit/blesec/securitydb"
	"github.com/blekit/blesec/smpcrypto"
)

// Encryption key size window allowed by the protocol.
const (
	MinEncryptionKeySize = 7
	MaxEncryptionKeySize = 16
)

// Config is the one-time pairing engine configuration passed to Init.
type Config struct {
	// Bondable requests key distribution and storage during pairing.
	Bondable bool

	// RequireMitm requests man in the middle protection during pairing.
	RequireMitm bool

	IoCaps blesec.IoCaps

	// DisplayPasskey fixes the passkey shown on display capable devices;
	// zero means a random passkey per pairing.
	DisplayPasskey blesec.Passkey

	// EnableSigning provisions a local CSRK so the device can sign
	// writes over an unencrypted link.
	EnableSigning bool

	// EnableKeypress advertises keypress notification support during
	// passkey entry.
	EnableKeypress bool

	// EnablePrivacy provisions a local IRK and seeds the controller
	// resolving list from the bond table.
	EnablePrivacy bool

	// DbPath selects a file backed bond store; empty keeps bonds in
	// memory only.
	DbPath string

	// Db overrides the database backend; DbPath is ignored when set.
	Db securitydb.Db
}

// SecurityManager orchestrates SMP pairing, encryption enablement, key
// distribution and signing over an injected PAL backend. It implements
// pal.EventHandler.
type SecurityManager struct {
	pal pal.SecurityManager
	db  securitydb.Db

	handler blesec.EventHandler
	log     blesec.Logger

	controlBlocks [MaxControlBlocks]controlBlock

	initialized     bool
	bondable        bool
	mitm            bool
	scSupported     bool
	keypress        bool
	legacyAllowed   bool
	signingEnabled  bool
	privacyEnabled  bool
	preserveBonding bool
	authorisation   bool

	ioCaps         blesec.IoCaps
	displayPasskey blesec.Passkey

	initiatorDefaultDist blesec.KeyDistribution
	responderDefaultDist blesec.KeyDistribution

	minKeySize uint8
	maxKeySize uint8

	// out of band exchange state; at most one outstanding exchange is
	// tracked, process wide rather than per connection
	oobLocalAddress blesec.Addr
	oobLocalRandom  blesec.OobRand
	oobLocalPending bool

	oobPeerAddress blesec.Addr
	oobPeerRandom  blesec.OobRand
	oobPeerConfirm blesec.OobConfirm
	oobPeerPresent bool

	oobLegacyAddress blesec.Addr
	oobLegacyTk      blesec.OobTk
	oobLegacyPresent bool
}

// New wires an engine to its PAL backend. Call Init before any pairing
// operation.
func New(p pal.SecurityManager) *SecurityManager {
	m := &SecurityManager{
		pal:           p,
		handler:       blesec.DefaultEventHandler{},
		log:           blesec.GetLogger().ChildLogger(map[string]interface{}{"secmgr": "engine"}),
		legacyAllowed: true,
		authorisation: true,
		minKeySize:    MinEncryptionKeySize,
		maxKeySize:    MaxEncryptionKeySize,
	}
	p.SetEventHandler(m)
	return m
}

// SetEventHandler installs the application handler. Exactly one handler
// is active; nil restores the no-op default.
func (m *SecurityManager) SetEventHandler(handler blesec.EventHandler) {
	if handler == nil {
		handler = blesec.DefaultEventHandler{}
	}
	m.handler = handler
}

// Init configures the engine. Calling it again while any connection holds
// a control block returns ErrInvalidState.
func (m *SecurityManager) Init(cfg Config) error {
	if m.anyConnected() {
		return errors.Wrap(blesec.ErrInvalidState, "init with live connections")
	}

	if err := m.pal.Initialize(); err != nil {
		return errors.Wrap(err, "pal init")
	}

	switch {
	case cfg.Db != nil:
		m.db = cfg.Db
	case cfg.DbPath != "":
		m.db = securitydb.NewFileDb(cfg.DbPath)
	default:
		m.db = securitydb.NewMemoryDb()
	}

	m.bondable = cfg.Bondable
	m.mitm = cfg.RequireMitm
	m.keypress = cfg.EnableKeypress
	m.ioCaps = cfg.IoCaps
	m.displayPasskey = cfg.DisplayPasskey
	m.initiatorDefaultDist = blesec.KeyDistAll
	m.responderDefaultDist = blesec.KeyDistAll

	sc, err := m.pal.GetSecureConnectionsSupport()
	if err != nil {
		return errors.Wrap(err, "sc support")
	}
	m.scSupported = sc

	if err := m.pal.SetIoCapability(cfg.IoCaps); err != nil {
		return errors.Wrap(err, "io capability")
	}
	if cfg.DisplayPasskey != 0 {
		if err := m.pal.SetDisplayPasskey(cfg.DisplayPasskey); err != nil {
			return errors.Wrap(err, "display passkey")
		}
	}
	if err := m.pal.SetEncryptionKeyRequirements(m.minKeySize, m.maxKeySize); err != nil {
		return errors.Wrap(err, "key size window")
	}

	if cfg.EnableSigning {
		if err := m.initSigning(); err != nil {
			return err
		}
	}
	if cfg.EnablePrivacy {
		if err := m.initPrivacy(); err != nil {
			return err
		}
	}

	m.initialized = true
	m.log.Debug("security manager initialized")
	return nil
}

// initSigning makes sure a local CSRK exists and pushes it to the stack.
func (m *SecurityManager) initSigning() error {
	csrk := m.db.LocalCsrk()
	if csrk == nil || csrk.IsZero() {
		fresh, err := blesec.GenerateCsrk()
		if err != nil {
			return err
		}
		m.db.SetLocalCsrk(fresh)
		m.db.Sync()
		csrk = &fresh
	}

	if err := m.pal.SetCsrk(*csrk); err != nil {
		return errors.Wrap(err, "set csrk")
	}
	m.signingEnabled = true
	return nil
}

// initPrivacy makes sure a local IRK exists, pushes it to the stack and
// seeds the controller resolving list from the bond table.
func (m *SecurityManager) initPrivacy() error {
	irk := m.db.LocalIrk()
	if irk == nil || irk.IsZero() {
		fresh, err := blesec.GenerateIrk()
		if err != nil {
			return err
		}
		m.db.SetLocalIrk(fresh)
		m.db.Sync()
		irk = &fresh
	}

	if err := m.pal.SetIrk(*irk); err != nil {
		return errors.Wrap(err, "set irk")
	}
	m.privacyEnabled = true
	return m.buildResolvingList()
}

// buildResolvingList replaces the controller resolving list with the
// bonded identities so private peer addresses resolve across reconnects.
func (m *SecurityManager) buildResolvingList() error {
	if err := m.pal.ClearResolvingList(); err != nil {
		return errors.Wrap(err, "clear resolving list")
	}

	var listErr error
	m.db.GetIdentityList(func(identities []securitydb.EntryIdentity, count int) {
		for _, id := range identities[:count] {
			err := m.pal.AddDeviceToResolvingList(id.IdentityAddressIsPublic, id.IdentityAddress, id.Irk)
			if err != nil {
				listErr = errors.Wrap(err, "resolving list add")
				return
			}
		}
	}, make([]securitydb.EntryIdentity, securitydb.MaxEntries))
	return listErr
}

// Reset drops all transient state and requires a new Init. Bonds are kept
// only when PreserveBondingStateOnReset was enabled.
func (m *SecurityManager) Reset() error {
	if err := m.pal.Reset(); err != nil {
		return errors.Wrap(err, "pal reset")
	}

	if m.db != nil {
		if m.preserveBonding {
			m.db.Sync()
		} else {
			m.db.ClearEntries()
		}
	}

	for i := range m.controlBlocks {
		m.controlBlocks[i] = controlBlock{}
	}
	m.clearOobState()
	m.initialized = false
	return nil
}

// PreserveBondingStateOnReset keeps (or drops) the bond table across
// Reset and, for file backed stores, across process restart.
func (m *SecurityManager) PreserveBondingStateOnReset(enable bool) error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}
	m.preserveBonding = enable
	m.db.SetRestore(enable)
	return nil
}

// PurgeAllBondingState erases every bond and the local identity material.
func (m *SecurityManager) PurgeAllBondingState() error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}
	m.db.ClearEntries()
	m.db.Sync()
	return nil
}

/* connection lifecycle */

// OnConnectionOpened acquires a control block and attaches the matching
// database entry. ErrNoMem means the control block pool is exhausted and
// security features are unavailable for this connection.
func (m *SecurityManager) OnConnectionOpened(
	connection blesec.ConnectionHandle,
	role blesec.ConnectionRole,
	peerAddressType blesec.AddressType,
	peerAddress blesec.Addr,
	localAddress blesec.Addr,
) error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}
	if m.controlBlock(connection) != nil {
		return errors.Wrap(blesec.ErrInvalidState, "connection already open")
	}

	cb := m.acquireControlBlock(connection)
	if cb == nil {
		return blesec.ErrNoMem
	}

	cb.role = role
	cb.peerAddressType = peerAddressType
	cb.peerAddress = peerAddress
	cb.localAddress = localAddress

	// a full bond table leaves the connection usable but unbondable
	cb.entry = m.db.OpenEntry(peerAddressType, peerAddress)
	if cb.entry == nil {
		m.log.Warnf("bond table full, connection %d cannot bond", connection)
	}
	return nil
}

// OnConnectionClosed releases the control block. Pending bonding data is
// flushed to the store.
func (m *SecurityManager) OnConnectionClosed(connection blesec.ConnectionHandle) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	m.releaseControlBlock(cb)
	return nil
}

/* pairing */

// RequestPairing starts a pairing exchange; master role only.
func (m *SecurityManager) RequestPairing(connection blesec.ConnectionHandle) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidState
	}
	if cb.role != blesec.RoleMaster {
		return errors.Wrap(blesec.ErrInvalidState, "pairing request from slave")
	}
	return m.startPairing(cb)
}

func (m *SecurityManager) startPairing(cb *controlBlock) error {
	auth := m.buildAuthMask(cb)

	cb.initiatorDist = m.initiatorDefaultDist
	cb.responderDist = m.responderDefaultDist
	if !m.signingWanted(cb) {
		cb.initiatorDist &^= blesec.KeyDistSigning
		cb.responderDist &^= blesec.KeyDistSigning
	}

	err := m.pal.SendPairingRequest(
		cb.connection,
		cb.attemptOob,
		auth,
		cb.initiatorDist,
		cb.responderDist,
	)
	if err != nil {
		return errors.Wrap(err, "pairing request")
	}

	cb.pairingInProgress = true
	cb.mitmRequested = auth.Mitm()
	return nil
}

// signingWanted resolves whether signing keys are distributed on this
// connection: the per connection override wins over the global setting.
func (m *SecurityManager) signingWanted(cb *controlBlock) bool {
	if cb.signingOverride {
		return cb.signingRequested
	}
	return m.signingEnabled
}

func (m *SecurityManager) buildAuthMask(cb *controlBlock) blesec.AuthMask {
	var auth blesec.AuthMask
	if m.bondable {
		auth |= blesec.AuthBondable
	}
	if m.mitm || cb.mitmRequested || (cb.attemptOob && cb.oobMitmProtection) {
		auth |= blesec.AuthMitm
	}
	if m.scSupported {
		auth |= blesec.AuthSc
	}
	if m.keypress {
		auth |= blesec.AuthKeypress
	}
	return auth
}

// SetPairingRequestAuthorisation decides whether incoming pairing requests
// are surfaced to the application (true) or answered automatically.
func (m *SecurityManager) SetPairingRequestAuthorisation(required bool) {
	m.authorisation = required
}

// AcceptPairingRequest answers an incoming request previously reported by
// the PairingRequest callback.
func (m *SecurityManager) AcceptPairingRequest(connection blesec.ConnectionHandle) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	if !cb.pairingRequestPending {
		return errors.Wrap(blesec.ErrInvalidState, "no pairing request pending")
	}
	return m.sendPairingResponse(cb)
}

func (m *SecurityManager) sendPairingResponse(cb *controlBlock) error {
	err := m.pal.SendPairingResponse(
		cb.connection,
		cb.attemptOob,
		m.buildAuthMask(cb),
		cb.initiatorDist,
		cb.responderDist,
	)
	if err != nil {
		return errors.Wrap(err, "pairing response")
	}

	cb.pairingRequestPending = false
	cb.pairingInProgress = true
	return nil
}

// CancelPairingRequest asks the stack to abort the exchange. Cancellation
// is best effort; the outcome arrives via PairingError or, if the peer
// finished first, PairingCompleted.
func (m *SecurityManager) CancelPairingRequest(connection blesec.ConnectionHandle) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	if !cb.pairingInProgress && !cb.pairingRequestPending {
		return blesec.ErrInvalidState
	}
	return m.pal.CancelPairing(connection, blesec.FailureUnspecified)
}

// AllowLegacyPairing permits pairing with peers that lack secure
// connections support.
func (m *SecurityManager) AllowLegacyPairing(allow bool) {
	m.legacyAllowed = allow
}

func (m *SecurityManager) GetSecureConnectionsSupport() (bool, error) {
	return m.pal.GetSecureConnectionsSupport()
}

func (m *SecurityManager) SetIoCapability(iocaps blesec.IoCaps) error {
	if iocaps >= blesec.IoCapsReservedStart {
		return blesec.ErrInvalidParam
	}
	if err := m.pal.SetIoCapability(iocaps); err != nil {
		return err
	}
	m.ioCaps = iocaps
	return nil
}

func (m *SecurityManager) SetDisplayPasskey(passkey blesec.Passkey) error {
	if passkey > blesec.PasskeyMax {
		return blesec.ErrInvalidParam
	}
	if err := m.pal.SetDisplayPasskey(passkey); err != nil {
		return err
	}
	m.displayPasskey = passkey
	return nil
}

// SetAuthenticationTimeout sets the per exchange timer in milliseconds;
// granularity is 10 ms.
func (m *SecurityManager) SetAuthenticationTimeout(connection blesec.ConnectionHandle, timeoutInMs uint32) error {
	if m.controlBlock(connection) == nil {
		return blesec.ErrInvalidParam
	}
	if timeoutInMs/10 > 0xFFFF {
		return blesec.ErrInvalidParam
	}
	return m.pal.SetAuthenticationTimeout(connection, uint16(timeoutInMs/10))
}

func (m *SecurityManager) GetAuthenticationTimeout(connection blesec.ConnectionHandle) (uint32, error) {
	if m.controlBlock(connection) == nil {
		return 0, blesec.ErrInvalidParam
	}
	units, err := m.pal.GetAuthenticationTimeout(connection)
	if err != nil {
		return 0, err
	}
	return uint32(units) * 10, nil
}

/* encryption */

// SetLinkEncryption escalates the link to the desired level. Requesting a
// level at or below the current one does not start a new exchange; the
// current level is reported through LinkEncryptionResult.
func (m *SecurityManager) SetLinkEncryption(connection blesec.ConnectionHandle, desired blesec.LinkEncryption) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	if desired == blesec.EncryptionInProgress {
		return blesec.ErrInvalidParam
	}

	if cb.encryptionRequested {
		// a change is already on the wire; remember the strongest level
		// asked for and retry it when the result lands
		if desired > cb.pendingEncryption {
			cb.pendingEncryption = desired
		}
		return nil
	}

	if desired <= cb.encryptionLevel {
		m.handler.LinkEncryptionResult(connection, cb.encryptionLevel)
		return nil
	}

	switch desired {
	case blesec.NotEncrypted:
		// escalation only; the level check above already reported
		return nil
	case blesec.Encrypted:
		return m.enableEncryption(cb, false)
	case blesec.EncryptedWithMitm:
		return m.enableEncryption(cb, true)
	default:
		return blesec.ErrInvalidParam
	}
}

func (m *SecurityManager) GetLinkEncryption(connection blesec.ConnectionHandle) (blesec.LinkEncryption, error) {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.NotEncrypted, blesec.ErrInvalidParam
	}
	if cb.encryptionRequested {
		return blesec.EncryptionInProgress, nil
	}
	return cb.encryptionLevel, nil
}

// enableEncryption re-establishes encryption with stored keys, falling
// back to pairing when no usable bond exists. Slaves can only ask the
// master via a security request.
func (m *SecurityManager) enableEncryption(cb *controlBlock, mitm bool) error {
	cb.mitmRequested = cb.mitmRequested || mitm

	if cb.role == blesec.RoleSlave {
		if err := m.pal.SlaveSecurityRequest(cb.connection, m.buildAuthMask(cb)); err != nil {
			return errors.Wrap(err, "slave security request")
		}
		cb.encryptionRequested = true
		return nil
	}

	if cb.entry == nil {
		return m.startPairing(cb)
	}

	if cb.encryptionFailed {
		// the stored key already failed on this link; pair for a fresh one
		return m.startPairing(cb)
	}

	flags := m.db.DistributionFlags(cb.entry)
	if flags == nil || !flags.LtkStored || (mitm && !flags.LtkMitm) {
		// no key, or a key too weak for the request
		return m.startPairing(cb)
	}

	var palErr error
	started := false
	if flags.SecureConnectionsPaired {
		m.db.GetEntryLocalKeysSc(func(eh securitydb.EntryHandle, keys *securitydb.EntryKeys) {
			if keys == nil {
				return
			}
			palErr = m.pal.EnableEncryptionSc(cb.connection, keys.Ltk, flags.LtkMitm)
			started = true
		}, cb.entry)
	} else {
		m.db.GetEntryPeerKeys(func(eh securitydb.EntryHandle, keys *securitydb.EntryKeys) {
			if keys == nil {
				return
			}
			palErr = m.pal.EnableEncryption(cb.connection, keys.Ltk, keys.Rand, keys.Ediv, flags.LtkMitm)
			started = true
		}, cb.entry)
	}

	if palErr != nil {
		return errors.Wrap(palErr, "enable encryption")
	}
	if !started {
		return m.startPairing(cb)
	}

	cb.encryptionRequested = true
	return nil
}

// SetEncryptionKeyRequirements narrows the accepted encryption key size
// window; both bounds must stay within 7..16 bytes.
func (m *SecurityManager) SetEncryptionKeyRequirements(minimumByteSize, maximumByteSize uint8) error {
	if minimumByteSize < MinEncryptionKeySize ||
		maximumByteSize > MaxEncryptionKeySize ||
		minimumByteSize > maximumByteSize {
		return blesec.ErrInvalidParam
	}
	if err := m.pal.SetEncryptionKeyRequirements(minimumByteSize, maximumByteSize); err != nil {
		return err
	}
	m.minKeySize = minimumByteSize
	m.maxKeySize = maximumByteSize
	return nil
}

// GetEncryptionKeySize reports the key size negotiated with the bonded
// peer of the connection.
func (m *SecurityManager) GetEncryptionKeySize(connection blesec.ConnectionHandle) (uint8, error) {
	cb := m.controlBlock(connection)
	if cb == nil {
		return 0, blesec.ErrInvalidParam
	}
	flags := m.db.DistributionFlags(cb.entry)
	if flags == nil || flags.EncryptionKeySize == 0 {
		return 0, blesec.ErrNotFound
	}
	return flags.EncryptionKeySize, nil
}

// RequestAuthentication brings the link to an authenticated (MITM
// protected) encrypted state, re-encrypting with a stored MITM key when
// one exists and pairing otherwise.
func (m *SecurityManager) RequestAuthentication(connection blesec.ConnectionHandle) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}

	if cb.encryptionLevel == blesec.EncryptedWithMitm {
		m.handler.LinkEncryptionResult(connection, cb.encryptionLevel)
		return nil
	}

	cb.mitmRequested = true

	flags := m.db.DistributionFlags(cb.entry)
	if flags != nil && flags.LtkStored && flags.LtkMitm {
		return m.SetLinkEncryption(connection, blesec.EncryptedWithMitm)
	}
	if cb.role == blesec.RoleSlave {
		return m.enableEncryption(cb, true)
	}
	return m.startPairing(cb)
}

/* signing */

// EnableSigning turns signed write support on or off for a connection.
// Enabling provisions the local CSRK and, when the peer's key is already
// bonded, pushes it to the stack so incoming signed writes verify.
func (m *SecurityManager) EnableSigning(connection blesec.ConnectionHandle, enabled bool) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}

	cb.signingOverride = true
	cb.signingRequested = enabled
	if !enabled {
		return nil
	}

	if !m.signingEnabled {
		if err := m.initSigning(); err != nil {
			return err
		}
	}

	if cb.entry == nil {
		return nil
	}

	var palErr error
	m.db.GetEntryPeerCsrk(func(eh securitydb.EntryHandle, csrk *blesec.Csrk, counter blesec.SignCount) {
		if csrk == nil {
			return
		}
		flags := m.db.DistributionFlags(eh)
		authenticated := flags != nil && flags.CsrkMitm
		palErr = m.pal.SetPeerCsrk(connection, *csrk, authenticated, counter)
	}, cb.entry)

	return palErr
}

// SetSigningKey delivers the peer signing key through the SigningKey
// callback, pairing first when no key of the required strength is
// bonded.
func (m *SecurityManager) SetSigningKey(connection blesec.ConnectionHandle, authenticated bool) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	if cb.entry == nil {
		return blesec.ErrNotFound
	}

	delivered := false
	m.db.GetEntryPeerCsrk(func(eh securitydb.EntryHandle, csrk *blesec.Csrk, _ blesec.SignCount) {
		if csrk == nil {
			return
		}
		flags := m.db.DistributionFlags(eh)
		csrkMitm := flags != nil && flags.CsrkMitm
		if authenticated && !csrkMitm {
			return
		}
		delivered = true
		m.handler.SigningKey(connection, csrk, csrkMitm)
	}, cb.entry)

	if delivered {
		return nil
	}

	// no key of sufficient strength; pair to obtain one, the key lands
	// through KeysDistributedCsrk
	cb.signingOverride = true
	cb.signingRequested = true
	cb.mitmRequested = cb.mitmRequested || authenticated
	if cb.role == blesec.RoleMaster {
		return m.startPairing(cb)
	}
	return m.enableEncryption(cb, authenticated)
}

// OnSignedWriteSent advances the local sign counter after each locally
// signed write.
func (m *SecurityManager) OnSignedWriteSent() error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}
	m.db.SetLocalSignCounter(m.db.LocalSignCounter() + 1)
	m.db.Sync()
	return nil
}

// SignWrite signs an outgoing write with the local CSRK and the current
// sign counter, advancing the counter. Useful for backends that leave
// signing to the host.
func (m *SecurityManager) SignWrite(message []byte) ([]byte, error) {
	if !m.initialized || !m.signingEnabled {
		return nil, blesec.ErrInvalidState
	}

	csrk := m.db.LocalCsrk()
	if csrk == nil || csrk.IsZero() {
		return nil, blesec.ErrNotFound
	}

	pdu, err := smpcrypto.SignData(csrk[:], message, uint32(m.db.LocalSignCounter()))
	if err != nil {
		return nil, errors.Wrap(err, "sign write")
	}
	if err := m.OnSignedWriteSent(); err != nil {
		return nil, err
	}
	return pdu, nil
}

// VerifySignedWrite checks a raw signed write PDU against the bonded peer
// CSRK and the stored counter. Backends that verify signatures in the
// stack report through the SignedWriteReceived event instead.
func (m *SecurityManager) VerifySignedWrite(connection blesec.ConnectionHandle, pdu []byte) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	if cb.entry == nil {
		return blesec.ErrNotFound
	}

	var verifyErr error
	found := false
	var carried, stored blesec.SignCount
	m.db.GetEntryPeerCsrk(func(eh securitydb.EntryHandle, csrk *blesec.Csrk, counter blesec.SignCount) {
		if csrk == nil {
			return
		}
		found = true
		stored = counter
		c, err := smpcrypto.VerifySignature(csrk[:], pdu)
		if err != nil {
			verifyErr = errors.Wrap(err, "signed write")
			return
		}
		carried = blesec.SignCount(c)
	}, cb.entry)

	if !found {
		return blesec.ErrNotFound
	}
	if verifyErr == nil && carried <= stored {
		verifyErr = errors.Errorf("stale sign counter %d, stored %d", carried, stored)
	}
	if verifyErr != nil {
		cb.recordSignFailure()
		if cb.signFailuresSaturated() {
			m.log.Warnf("repeated signed write failures on connection %d", connection)
		}
		m.handler.SignedWriteVerificationFailure(connection)
		return verifyErr
	}

	m.db.SetEntryPeerSignCounter(cb.entry, carried)
	m.db.Sync()
	return nil
}

/* user input */

// ConfirmationEntered answers a numeric comparison prompt. Valid only
// while a ConfirmationRequest callback is outstanding.
func (m *SecurityManager) ConfirmationEntered(connection blesec.ConnectionHandle, confirmation bool) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	if !cb.confirmationRequestPending {
		return blesec.ErrInvalidState
	}
	cb.confirmationRequestPending = false
	return m.pal.ConfirmationEntered(connection, confirmation)
}

// PasskeyEntered answers a passkey prompt. Valid only while a
// PasskeyRequest callback is outstanding.
func (m *SecurityManager) PasskeyEntered(connection blesec.ConnectionHandle, passkey blesec.Passkey) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	if passkey > blesec.PasskeyMax {
		return blesec.ErrInvalidParam
	}
	if !cb.passkeyRequestPending {
		return blesec.ErrInvalidState
	}
	cb.passkeyRequestPending = false
	return m.pal.PasskeyRequestReply(connection, passkey)
}

// SendKeypressNotification relays local passkey entry progress to the
// peer during a keypress enabled exchange.
func (m *SecurityManager) SendKeypressNotification(connection blesec.ConnectionHandle, keypress blesec.Keypress) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	if !cb.passkeyRequestPending && !cb.pairingInProgress {
		return blesec.ErrInvalidState
	}
	return m.pal.SendKeypressNotification(connection, keypress)
}

/* out of band */

// SetOOBDataUsage declares that OOB data will be exchanged for the peer
// on this connection and whether the OOB channel is MITM safe.
func (m *SecurityManager) SetOOBDataUsage(connection blesec.ConnectionHandle, useOob, oobProvidesMitm bool) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}
	cb.attemptOob = useOob
	cb.oobMitmProtection = oobProvidesMitm
	return nil
}

// LegacyPairingOobReceived supplies the legacy temporary key obtained
// over the out of band channel. It may arrive before the stack asks for
// it; the key is kept with the address of the device that produced it.
func (m *SecurityManager) LegacyPairingOobReceived(address blesec.Addr, tk blesec.OobTk) error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}

	m.oobLegacyAddress = address
	m.oobLegacyTk = tk
	m.oobLegacyPresent = true

	cb := m.controlBlockByAddress(address)
	if cb != nil && cb.legacyOobRequestPending {
		cb.legacyOobRequestPending = false
		return m.pal.LegacyPairingOobRequestReply(cb.connection, tk)
	}
	return nil
}

// OobReceived supplies the peer's secure connections OOB package.
func (m *SecurityManager) OobReceived(address blesec.Addr, random blesec.OobRand, confirm blesec.OobConfirm) error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}

	m.oobPeerAddress = address
	m.oobPeerRandom = random
	m.oobPeerConfirm = confirm
	m.oobPeerPresent = true

	cb := m.controlBlockByAddress(address)
	if cb != nil {
		cb.oobPresent = true
		if cb.oobRequestPending {
			cb.oobRequestPending = false
			return m.pal.SecureConnectionsOobRequestReply(cb.connection, m.oobLocalRandom, random, confirm)
		}
	}
	return nil
}

// GenerateOOB starts local secure connections OOB material generation for
// the given local address; the result arrives via the OobGenerated
// callback. Backends without stack side OOB support get the material
// computed here instead.
func (m *SecurityManager) GenerateOOB(localAddress blesec.Addr) error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}
	if m.oobLocalPending {
		return errors.Wrap(blesec.ErrInvalidState, "oob generation already pending")
	}

	err := m.pal.GenerateSecureConnectionsOob()
	if errors.Cause(err) == blesec.ErrNotImplemented {
		return m.generateOobLocally(localAddress)
	}
	if err != nil {
		return errors.Wrap(err, "generate oob")
	}
	m.oobLocalAddress = localAddress
	m.oobLocalPending = true
	return nil
}

// generateOobLocally computes the OOB package with the toolbox: a fresh
// P-256 key pair, a random value and the confirm over the public key X
// coordinate.
func (m *SecurityManager) generateOobLocally(localAddress blesec.Addr) error {
	keys, err := smpcrypto.GenerateKeys()
	if err != nil {
		return errors.Wrap(err, "oob key pair")
	}
	pkx := smpcrypto.MarshalPublicKeyX(keys.Public)

	var random blesec.OobRand
	if _, err := rand.Read(random[:]); err != nil {
		return errors.Wrap(err, "oob random")
	}

	c, err := smpcrypto.F4(pkx, pkx, random[:], 0)
	if err != nil {
		return errors.Wrap(err, "oob confirm")
	}
	var confirm blesec.OobConfirm
	copy(confirm[:], c)

	m.oobLocalAddress = localAddress
	m.oobLocalRandom = random
	m.handler.OobGenerated(localAddress, random, confirm)
	return nil
}

func (m *SecurityManager) clearOobState() {
	m.oobLocalPending = false
	m.oobPeerPresent = false
	m.oobLegacyPresent = false
	m.oobLocalAddress = blesec.Addr{}
	m.oobPeerAddress = blesec.Addr{}
	m.oobLegacyAddress = blesec.Addr{}
	m.oobLocalRandom = blesec.OobRand{}
	m.oobPeerRandom = blesec.OobRand{}
	m.oobPeerConfirm = blesec.OobConfirm{}
	m.oobLegacyTk = blesec.OobTk{}
}

/* identity and lists */

// SetPrivateAddressTimeout sets how long the controller keeps a resolvable
// private address before rotating it.
func (m *SecurityManager) SetPrivateAddressTimeout(timeoutInSeconds uint16) error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}
	return m.pal.SetPrivateAddressTimeout(timeoutInSeconds)
}

// GetPeerIdentity delivers the stored identity of the connected peer
// through the PeerIdentity callback; a nil address means no identity is
// bonded.
func (m *SecurityManager) GetPeerIdentity(connection blesec.ConnectionHandle) error {
	cb := m.controlBlock(connection)
	if cb == nil {
		return blesec.ErrInvalidParam
	}

	delivered := false
	if cb.entry != nil {
		m.db.GetEntryIdentity(func(eh securitydb.EntryHandle, identity *securitydb.EntryIdentity) {
			if identity == nil {
				return
			}
			delivered = true
			address := identity.IdentityAddress
			m.handler.PeerIdentity(connection, &address, identity.IdentityAddressIsPublic)
		}, cb.entry)
	}
	if !delivered {
		m.handler.PeerIdentity(connection, nil, false)
	}
	return nil
}

// GenerateWhitelistFromBondTable projects bonded public and static
// addresses into the supplied whitelist and delivers it through the
// Whitelist callback.
func (m *SecurityManager) GenerateWhitelistFromBondTable(whitelist *blesec.Whitelist) error {
	if !m.initialized {
		return blesec.ErrInvalidState
	}
	if whitelist == nil {
		return blesec.ErrInvalidParam
	}
	m.db.GenerateWhitelistFromBondTable(func(wl *blesec.Whitelist) {
		m.handler.Whitelist(wl)
	}, whitelist)
	return nil
}
