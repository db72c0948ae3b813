// Package securitydb stores per bonded device security material. Keys can
// live in memory or in a file backed store and are returned through
// callbacks so a backend needing I/O can defer delivery.
package securitydb

import (
	"github.com/blekit/blesec"
)

// EntryHandle is an opaque reference to a database entry. A nil handle
// means "no entry"; callers must treat it as "proceed without this key".
type EntryHandle interface {
	entryHandle()
}

// EntryKeys is the encryption key material of one direction of a bond.
type EntryKeys struct {
	Ltk  blesec.Ltk
	Ediv blesec.Ediv
	Rand blesec.Rand
}

// EntryIdentity is the resolved identity of a bonded peer.
type EntryIdentity struct {
	Irk                     blesec.Irk
	IdentityAddress         blesec.Addr
	IdentityAddressIsPublic bool
}

// DistributionFlags records what was negotiated and stored for an entry.
type DistributionFlags struct {
	// PeerAddress is the connection time address the bond was created
	// with. Private resolvable addresses are never stored here since they
	// are not comparable across rotations.
	PeerAddress         blesec.Addr
	PeerAddressIsPublic bool

	EncryptionKeySize uint8

	MitmPerformed           bool
	IrkStored               bool
	CsrkStored              bool
	CsrkMitm                bool
	LtkStored               bool
	LtkMitm                 bool
	SecureConnectionsPaired bool
	OobUsed                 bool
}

// Callback types. A nil value argument means validation failed or nothing
// is stored; the caller falls back to the protocol level recovery
// (re-pairing, LTK-not-found reply) instead of treating it as fatal.
type (
	EntryKeysCb     func(eh EntryHandle, keys *EntryKeys)
	EntryIdentityCb func(eh EntryHandle, identity *EntryIdentity)
	EntryCsrkCb     func(eh EntryHandle, csrk *blesec.Csrk, signCounter blesec.SignCount)
	IdentityListCb  func(identities []EntryIdentity, count int)
	WhitelistCb     func(whitelist *blesec.Whitelist)
)

// Db is the security database contract.
type Db interface {
	// OpenEntry returns the entry matching the peer address, trying the
	// identity address first and the connection time address second, or
	// reserves a free slot. Returns nil when nothing matches and the pool
	// is exhausted.
	OpenEntry(peerAddressType blesec.AddressType, peerAddress blesec.Addr) EntryHandle

	// CloseEntry returns a reserved but unwritten entry to the free pool.
	// Entries that hold key material are retained.
	CloseEntry(eh EntryHandle)

	// RemoveEntry erases the bond for the given identity address.
	RemoveEntry(identityAddress blesec.Addr)

	// ClearEntries erases every bond and the local identity material.
	ClearEntries()

	DistributionFlags(eh EntryHandle) *DistributionFlags
	SetDistributionFlags(eh EntryHandle, flags DistributionFlags)

	// GetEntryLocalKeys returns the local keys only if the supplied
	// ediv/rand pair matches the stored one; a mismatch means the peer
	// asked for an LTK this device never issued.
	GetEntryLocalKeys(cb EntryKeysCb, eh EntryHandle, ediv blesec.Ediv, rand blesec.Rand)

	// GetEntryLocalKeysSc returns the local keys for secure connections
	// re-encryption; valid only for entries paired over secure
	// connections.
	GetEntryLocalKeysSc(cb EntryKeysCb, eh EntryHandle)

	SetEntryLocalLtk(eh EntryHandle, ltk blesec.Ltk)
	SetEntryLocalEdivRand(eh EntryHandle, ediv blesec.Ediv, rand blesec.Rand)

	GetEntryPeerKeys(cb EntryKeysCb, eh EntryHandle)
	GetEntryIdentity(cb EntryIdentityCb, eh EntryHandle)
	GetEntryPeerCsrk(cb EntryCsrkCb, eh EntryHandle)

	SetEntryPeerLtk(eh EntryHandle, ltk blesec.Ltk)
	SetEntryPeerEdivRand(eh EntryHandle, ediv blesec.Ediv, rand blesec.Rand)
	SetEntryPeerIrk(eh EntryHandle, irk blesec.Irk)
	SetEntryPeerBdaddr(eh EntryHandle, addressIsPublic bool, peerAddress blesec.Addr)
	SetEntryPeerCsrk(eh EntryHandle, csrk blesec.Csrk)
	SetEntryPeerSignCounter(eh EntryHandle, signCounter blesec.SignCount)

	LocalCsrk() *blesec.Csrk
	SetLocalCsrk(csrk blesec.Csrk)
	LocalSignCounter() blesec.SignCount
	SetLocalSignCounter(signCounter blesec.SignCount)

	LocalIrk() *blesec.Irk
	SetLocalIrk(irk blesec.Irk)

	// GetIdentityList fills dst with as many stored identities as fit and
	// reports the count written; used to build the controller resolving
	// list.
	GetIdentityList(cb IdentityListCb, dst []EntryIdentity)

	// GenerateWhitelistFromBondTable projects bonded public/static
	// addresses into the caller supplied whitelist, bounded by its
	// capacity.
	GenerateWhitelistFromBondTable(cb WhitelistCb, whitelist *blesec.Whitelist)

	// Persistence hooks. Memory only backends treat them as no-ops.
	Restore()
	Sync()
	SetRestore(reload bool)
}
