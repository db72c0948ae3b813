package securitydb

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/blekit/blesec"
)

// FileDb keeps the bond table in a JSON file so bonding state survives a
// process restart. All reads and writes go through the embedded MemoryDb;
// the file is only touched by Restore and Sync.
//
// A partial or corrupt file is treated as an empty database rather than a
// source of corrupted key material.
type FileDb struct {
	*MemoryDb

	filename string
	restore  bool
	lock     sync.Mutex
}

type entryRecord struct {
	PeerAddress         string `json:"peerAddress"`
	PeerAddressIsPublic bool   `json:"peerAddressIsPublic"`

	EncryptionKeySize uint8 `json:"encryptionKeySize"`

	MitmPerformed           bool `json:"mitmPerformed"`
	IrkStored               bool `json:"irkStored"`
	CsrkStored              bool `json:"csrkStored"`
	CsrkMitm                bool `json:"csrkMitm"`
	LtkStored               bool `json:"ltkStored"`
	LtkMitm                 bool `json:"ltkMitm"`
	SecureConnectionsPaired bool `json:"secureConnectionsPaired"`
	OobUsed                 bool `json:"oobUsed"`

	LocalLtk  string `json:"localLtk"`
	LocalEdiv uint16 `json:"localEdiv"`
	LocalRand uint64 `json:"localRand"`

	PeerLtk  string `json:"peerLtk"`
	PeerEdiv uint16 `json:"peerEdiv"`
	PeerRand uint64 `json:"peerRand"`

	Irk                     string `json:"irk"`
	IdentityAddress         string `json:"identityAddress"`
	IdentityAddressIsPublic bool   `json:"identityAddressIsPublic"`

	Csrk        string `json:"csrk"`
	SignCounter uint32 `json:"signCounter"`
}

type dbRecord struct {
	LocalCsrk        string        `json:"localCsrk"`
	LocalIrk         string        `json:"localIrk"`
	LocalSignCounter uint32        `json:"localSignCounter"`
	Bonds            []entryRecord `json:"bonds"`
}

func NewFileDb(filename string) *FileDb {
	db := &FileDb{
		MemoryDb: NewMemoryDb(),
		filename: filename,
		restore:  true,
	}
	db.Restore()
	return db
}

func (db *FileDb) SetRestore(reload bool) {
	db.restore = reload
}

// Restore loads the bond table from disk, replacing the in-memory state.
func (db *FileDb) Restore() {
	if !db.restore {
		return
	}

	db.lock.Lock()
	defer db.lock.Unlock()

	_, err := os.Stat(db.filename)
	if os.IsNotExist(err) {
		return
	}

	fileData, err := ioutil.ReadFile(db.filename)
	if err != nil {
		blesec.GetLogger().Errorf("securitydb: failed to read %s: %v", db.filename, err)
		return
	}

	if len(fileData) == 0 {
		return
	}

	var rec dbRecord
	if err := jsoniter.Unmarshal(fileData, &rec); err != nil {
		blesec.GetLogger().Warnf("securitydb: discarding corrupt bond file %s: %v", db.filename, err)
		return
	}

	if err := db.load(&rec); err != nil {
		blesec.GetLogger().Warnf("securitydb: discarding corrupt bond file %s: %v", db.filename, err)
		db.MemoryDb.ClearEntries()
	}
}

// Sync writes the bond table to disk. The write goes to a temporary file
// first so a crash mid-write leaves the previous state intact.
func (db *FileDb) Sync() {
	if !db.restore {
		return
	}

	db.lock.Lock()
	defer db.lock.Unlock()

	rec := db.snapshot()
	out, err := jsoniter.Marshal(rec)
	if err != nil {
		blesec.GetLogger().Errorf("securitydb: failed to marshal bonds: %v", err)
		return
	}

	tmp := db.filename + ".tmp"
	if err := ioutil.WriteFile(tmp, out, 0600); err != nil {
		blesec.GetLogger().Errorf("securitydb: failed to write %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, db.filename); err != nil {
		blesec.GetLogger().Errorf("securitydb: failed to replace %s: %v", db.filename, err)
	}
}

func (db *FileDb) ClearEntries() {
	db.MemoryDb.ClearEntries()
	db.Sync()
}

func (db *FileDb) snapshot() *dbRecord {
	rec := &dbRecord{
		LocalCsrk:        hex.EncodeToString(db.localCsrk[:]),
		LocalIrk:         hex.EncodeToString(db.localIdentity.Irk[:]),
		LocalSignCounter: uint32(db.localSignCounter),
	}

	for i := range db.entries {
		e := &db.entries[i]
		if e.state != entryWritten {
			continue
		}
		rec.Bonds = append(rec.Bonds, entryRecord{
			PeerAddress:         hex.EncodeToString(e.flags.PeerAddress[:]),
			PeerAddressIsPublic: e.flags.PeerAddressIsPublic,

			EncryptionKeySize: e.flags.EncryptionKeySize,

			MitmPerformed:           e.flags.MitmPerformed,
			IrkStored:               e.flags.IrkStored,
			CsrkStored:              e.flags.CsrkStored,
			CsrkMitm:                e.flags.CsrkMitm,
			LtkStored:               e.flags.LtkStored,
			LtkMitm:                 e.flags.LtkMitm,
			SecureConnectionsPaired: e.flags.SecureConnectionsPaired,
			OobUsed:                 e.flags.OobUsed,

			LocalLtk:  hex.EncodeToString(e.localKeys.Ltk[:]),
			LocalEdiv: uint16(e.localKeys.Ediv),
			LocalRand: uint64(e.localKeys.Rand),

			PeerLtk:  hex.EncodeToString(e.peerKeys.Ltk[:]),
			PeerEdiv: uint16(e.peerKeys.Ediv),
			PeerRand: uint64(e.peerKeys.Rand),

			Irk:                     hex.EncodeToString(e.peerIdentity.Irk[:]),
			IdentityAddress:         hex.EncodeToString(e.peerIdentity.IdentityAddress[:]),
			IdentityAddressIsPublic: e.peerIdentity.IdentityAddressIsPublic,

			Csrk:        hex.EncodeToString(e.csrk[:]),
			SignCounter: uint32(e.signCounter),
		})
	}

	return rec
}

func (db *FileDb) load(rec *dbRecord) error {
	db.MemoryDb.ClearEntries()

	var csrk blesec.Csrk
	if err := decodeKey(rec.LocalCsrk, csrk[:]); err != nil {
		return errors.Wrap(err, "local csrk")
	}
	db.localCsrk = csrk

	var irk blesec.Irk
	if err := decodeKey(rec.LocalIrk, irk[:]); err != nil {
		return errors.Wrap(err, "local irk")
	}
	db.localIdentity.Irk = irk

	db.localSignCounter = blesec.SignCount(rec.LocalSignCounter)

	if len(rec.Bonds) > len(db.entries) {
		return errors.Errorf("bond file holds %d entries, capacity is %d",
			len(rec.Bonds), len(db.entries))
	}

	for i, b := range rec.Bonds {
		e := &db.entries[i]

		if err := decodeAddr(b.PeerAddress, &e.flags.PeerAddress); err != nil {
			return errors.Wrapf(err, "bond %d peer address", i)
		}
		e.flags.PeerAddressIsPublic = b.PeerAddressIsPublic
		e.flags.EncryptionKeySize = b.EncryptionKeySize
		e.flags.MitmPerformed = b.MitmPerformed
		e.flags.IrkStored = b.IrkStored
		e.flags.CsrkStored = b.CsrkStored
		e.flags.CsrkMitm = b.CsrkMitm
		e.flags.LtkStored = b.LtkStored
		e.flags.LtkMitm = b.LtkMitm
		e.flags.SecureConnectionsPaired = b.SecureConnectionsPaired
		e.flags.OobUsed = b.OobUsed

		if err := decodeKey(b.LocalLtk, e.localKeys.Ltk[:]); err != nil {
			return errors.Wrapf(err, "bond %d local ltk", i)
		}
		e.localKeys.Ediv = blesec.Ediv(b.LocalEdiv)
		e.localKeys.Rand = blesec.Rand(b.LocalRand)

		if err := decodeKey(b.PeerLtk, e.peerKeys.Ltk[:]); err != nil {
			return errors.Wrapf(err, "bond %d peer ltk", i)
		}
		e.peerKeys.Ediv = blesec.Ediv(b.PeerEdiv)
		e.peerKeys.Rand = blesec.Rand(b.PeerRand)

		if err := decodeKey(b.Irk, e.peerIdentity.Irk[:]); err != nil {
			return errors.Wrapf(err, "bond %d irk", i)
		}
		if err := decodeAddr(b.IdentityAddress, &e.peerIdentity.IdentityAddress); err != nil {
			return errors.Wrapf(err, "bond %d identity address", i)
		}
		e.peerIdentity.IdentityAddressIsPublic = b.IdentityAddressIsPublic

		if err := decodeKey(b.Csrk, e.csrk[:]); err != nil {
			return errors.Wrapf(err, "bond %d csrk", i)
		}
		e.signCounter = blesec.SignCount(b.SignCounter)

		e.state = entryWritten
	}

	return nil
}

func decodeKey(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return errors.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

func decodeAddr(s string, dst *blesec.Addr) error {
	return decodeKey(s, dst[:])
}

// DefaultFilename is the bond file used when no explicit path is given.
const DefaultFilename = "bonds.json"

// DefaultPath resolves the default bond file location next to dir, falling
// back to the working directory.
func DefaultPath(dir string) string {
	if dir == "" {
		return DefaultFilename
	}
	return filepath.Join(dir, DefaultFilename)
}
