package securitydb

import (
	"github.com/blekit/blesec"
)

// MaxEntries is the bond table capacity. When every slot holds a written
// bond, OpenEntry for an unknown peer returns nil; no eviction is applied
// and it is up to application policy to purge.
const MaxEntries = 5

type entryState uint8

const (
	entryFree entryState = iota
	entryReserved
	entryWritten
)

type entry struct {
	flags        DistributionFlags
	peerKeys     EntryKeys
	localKeys    EntryKeys
	peerIdentity EntryIdentity
	csrk         blesec.Csrk
	signCounter  blesec.SignCount
	state        entryState
}

func (*entry) entryHandle() {}

// MemoryDb is the in-memory security database. It is mutated only from the
// stack's event processing context, so it carries no locks.
type MemoryDb struct {
	entries          [MaxEntries]entry
	localIdentity    EntryIdentity
	localCsrk        blesec.Csrk
	localSignCounter blesec.SignCount
}

func NewMemoryDb() *MemoryDb {
	return &MemoryDb{}
}

func asEntry(eh EntryHandle) *entry {
	e, ok := eh.(*entry)
	if !ok {
		return nil
	}
	return e
}

func (db *MemoryDb) OpenEntry(peerAddressType blesec.AddressType, peerAddress blesec.Addr) EntryHandle {
	peerPublic := blesec.IsPublicType(peerAddressType)

	for i := range db.entries {
		e := &db.entries[i]
		if e.state == entryFree {
			continue
		}
		if peerAddressType == blesec.PublicIdentityAddress && !e.flags.IrkStored {
			continue
		}

		// identity address first, connection address second
		if e.flags.IrkStored &&
			e.peerIdentity.IdentityAddress == peerAddress &&
			e.peerIdentity.IdentityAddressIsPublic == peerPublic {
			return e
		}
		if !e.flags.PeerAddress.IsZero() &&
			e.flags.PeerAddress == peerAddress &&
			e.flags.PeerAddressIsPublic == peerPublic {
			return e
		}
	}

	private := blesec.IsPrivate(peerAddressType, peerAddress)

	for i := range db.entries {
		e := &db.entries[i]
		if e.state != entryFree {
			continue
		}
		*e = entry{}
		// private addresses rotate; only public or static random
		// addresses are kept as lookup keys
		if !private {
			e.flags.PeerAddress = peerAddress
			e.flags.PeerAddressIsPublic = peerPublic
		}
		e.state = entryReserved
		return e
	}

	return nil
}

func (db *MemoryDb) CloseEntry(eh EntryHandle) {
	e := asEntry(eh)
	if e != nil && e.state == entryReserved {
		e.state = entryFree
	}
}

func (db *MemoryDb) RemoveEntry(identityAddress blesec.Addr) {
	for i := range db.entries {
		e := &db.entries[i]
		if e.state == entryFree {
			continue
		}
		if e.peerIdentity.IdentityAddress == identityAddress ||
			e.flags.PeerAddress == identityAddress {
			*e = entry{}
			return
		}
	}
}

func (db *MemoryDb) ClearEntries() {
	for i := range db.entries {
		db.entries[i] = entry{}
	}
	db.localIdentity = EntryIdentity{}
	db.localCsrk = blesec.Csrk{}
	db.localSignCounter = 0
}

func (db *MemoryDb) DistributionFlags(eh EntryHandle) *DistributionFlags {
	e := asEntry(eh)
	if e == nil {
		return nil
	}
	return &e.flags
}

func (db *MemoryDb) SetDistributionFlags(eh EntryHandle, flags DistributionFlags) {
	e := asEntry(eh)
	if e == nil {
		return
	}
	e.state = entryWritten
	e.flags = flags
}

/* local keys */

func (db *MemoryDb) GetEntryLocalKeys(cb EntryKeysCb, eh EntryHandle, ediv blesec.Ediv, rand blesec.Rand) {
	e := asEntry(eh)
	if e == nil {
		return
	}

	// answer only with the key the peer actually named
	if ediv == e.localKeys.Ediv && rand == e.localKeys.Rand {
		keys := e.localKeys
		cb(eh, &keys)
	} else {
		cb(eh, nil)
	}
}

func (db *MemoryDb) GetEntryLocalKeysSc(cb EntryKeysCb, eh EntryHandle) {
	e := asEntry(eh)
	if e == nil {
		return
	}

	if e.flags.SecureConnectionsPaired {
		keys := e.localKeys
		cb(eh, &keys)
	} else {
		cb(eh, nil)
	}
}

func (db *MemoryDb) SetEntryLocalLtk(eh EntryHandle, ltk blesec.Ltk) {
	if e := asEntry(eh); e != nil {
		e.state = entryWritten
		e.localKeys.Ltk = ltk
	}
}

func (db *MemoryDb) SetEntryLocalEdivRand(eh EntryHandle, ediv blesec.Ediv, rand blesec.Rand) {
	if e := asEntry(eh); e != nil {
		e.state = entryWritten
		e.localKeys.Ediv = ediv
		e.localKeys.Rand = rand
	}
}

/* peer keys */

func (db *MemoryDb) GetEntryPeerKeys(cb EntryKeysCb, eh EntryHandle) {
	e := asEntry(eh)
	if e == nil {
		return
	}

	if e.flags.LtkStored {
		keys := e.peerKeys
		cb(eh, &keys)
	} else {
		cb(eh, nil)
	}
}

func (db *MemoryDb) GetEntryIdentity(cb EntryIdentityCb, eh EntryHandle) {
	e := asEntry(eh)
	if e == nil {
		return
	}

	if e.flags.IrkStored {
		identity := e.peerIdentity
		cb(eh, &identity)
	} else {
		cb(eh, nil)
	}
}

func (db *MemoryDb) GetEntryPeerCsrk(cb EntryCsrkCb, eh EntryHandle) {
	e := asEntry(eh)
	if e == nil {
		return
	}

	if e.flags.CsrkStored {
		csrk := e.csrk
		cb(eh, &csrk, e.signCounter)
	} else {
		cb(eh, nil, 0)
	}
}

func (db *MemoryDb) SetEntryPeerLtk(eh EntryHandle, ltk blesec.Ltk) {
	if e := asEntry(eh); e != nil {
		e.state = entryWritten
		e.peerKeys.Ltk = ltk
		e.flags.LtkStored = true
	}
}

func (db *MemoryDb) SetEntryPeerEdivRand(eh EntryHandle, ediv blesec.Ediv, rand blesec.Rand) {
	if e := asEntry(eh); e != nil {
		e.state = entryWritten
		e.peerKeys.Ediv = ediv
		e.peerKeys.Rand = rand
	}
}

func (db *MemoryDb) SetEntryPeerIrk(eh EntryHandle, irk blesec.Irk) {
	if e := asEntry(eh); e != nil {
		e.state = entryWritten
		e.peerIdentity.Irk = irk
		e.flags.IrkStored = true
	}
}

func (db *MemoryDb) SetEntryPeerBdaddr(eh EntryHandle, addressIsPublic bool, peerAddress blesec.Addr) {
	e := asEntry(eh)
	if e == nil {
		return
	}

	e.state = entryWritten
	e.peerIdentity.IdentityAddress = peerAddress
	e.peerIdentity.IdentityAddressIsPublic = addressIsPublic

	// two bonds created under different private addresses converge once
	// the identity is known: the older entry for the same identity is
	// dropped in favor of the fresh pairing
	for i := range db.entries {
		o := &db.entries[i]
		if o == e || o.state == entryFree {
			continue
		}
		if o.peerIdentity.IdentityAddress == peerAddress &&
			o.peerIdentity.IdentityAddressIsPublic == addressIsPublic {
			*o = entry{}
		}
	}
}

func (db *MemoryDb) SetEntryPeerCsrk(eh EntryHandle, csrk blesec.Csrk) {
	if e := asEntry(eh); e != nil {
		e.state = entryWritten
		e.csrk = csrk
		e.flags.CsrkStored = true
	}
}

func (db *MemoryDb) SetEntryPeerSignCounter(eh EntryHandle, signCounter blesec.SignCount) {
	if e := asEntry(eh); e != nil {
		e.state = entryWritten
		e.signCounter = signCounter
	}
}

/* local csrk */

func (db *MemoryDb) LocalCsrk() *blesec.Csrk {
	csrk := db.localCsrk
	return &csrk
}

func (db *MemoryDb) SetLocalCsrk(csrk blesec.Csrk) {
	db.localCsrk = csrk
}

func (db *MemoryDb) LocalSignCounter() blesec.SignCount {
	return db.localSignCounter
}

func (db *MemoryDb) SetLocalSignCounter(signCounter blesec.SignCount) {
	db.localSignCounter = signCounter
}

func (db *MemoryDb) LocalIrk() *blesec.Irk {
	irk := db.localIdentity.Irk
	return &irk
}

func (db *MemoryDb) SetLocalIrk(irk blesec.Irk) {
	db.localIdentity.Irk = irk
}

/* list management */

func (db *MemoryDb) GetIdentityList(cb IdentityListCb, dst []EntryIdentity) {
	count := 0
	for i := range db.entries {
		if count >= len(dst) {
			break
		}
		e := &db.entries[i]
		if e.state == entryWritten && e.flags.IrkStored {
			dst[count] = e.peerIdentity
			count++
		}
	}
	cb(dst, count)
}

func (db *MemoryDb) GenerateWhitelistFromBondTable(cb WhitelistCb, whitelist *blesec.Whitelist) {
	for i := range db.entries {
		e := &db.entries[i]
		if e.state != entryWritten {
			continue
		}

		var we blesec.WhitelistEntry
		switch {
		case e.flags.IrkStored:
			we.Address = e.peerIdentity.IdentityAddress
			if e.peerIdentity.IdentityAddressIsPublic {
				we.Type = blesec.PublicAddress
			} else {
				we.Type = blesec.RandomAddress
			}
		case !e.flags.PeerAddress.IsZero():
			we.Address = e.flags.PeerAddress
			if e.flags.PeerAddressIsPublic {
				we.Type = blesec.PublicAddress
			} else {
				we.Type = blesec.RandomAddress
			}
		default:
			continue
		}

		if !whitelist.Add(we) {
			break
		}
	}
	cb(whitelist)
}

/* nvm hooks; nothing to do for a memory backend */

func (db *MemoryDb) Restore() {}

func (db *MemoryDb) Sync() {}

func (db *MemoryDb) SetRestore(reload bool) {}
