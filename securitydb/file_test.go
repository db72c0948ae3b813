package securitydb

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/blekit/blesec"
)

func tempBondFile(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "blesec")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, DefaultFilename)
}

func TestFileDbSurvivesRestart(t *testing.T) {
	filename := tempBondFile(t)
	addr := mustAddr(t, "aa:bb:cc:dd:ee:f0")

	db := NewFileDb(filename)
	eh := db.OpenEntry(blesec.PublicAddress, addr)
	if eh == nil {
		t.Fatal("no entry allocated")
	}
	db.SetEntryPeerLtk(eh, blesec.Ltk{0xAB})
	db.SetEntryPeerEdivRand(eh, 0x1234, 0xDEADBEEF)
	db.SetLocalCsrk(blesec.Csrk{0xCD})
	db.SetLocalSignCounter(17)
	db.Sync()

	// a new instance stands in for a process restart
	reloaded := NewFileDb(filename)
	eh = reloaded.OpenEntry(blesec.PublicAddress, addr)
	if eh == nil {
		t.Fatal("bond lost across restart")
	}

	var keys *EntryKeys
	reloaded.GetEntryPeerKeys(func(_ EntryHandle, k *EntryKeys) { keys = k }, eh)
	if keys == nil || keys.Ltk != (blesec.Ltk{0xAB}) || keys.Ediv != 0x1234 || keys.Rand != 0xDEADBEEF {
		t.Fatalf("restored keys %+v", keys)
	}
	if *reloaded.LocalCsrk() != (blesec.Csrk{0xCD}) || reloaded.LocalSignCounter() != 17 {
		t.Fatal("local signing state lost across restart")
	}
}

func TestFileDbCorruptFileStartsEmpty(t *testing.T) {
	filename := tempBondFile(t)
	if err := ioutil.WriteFile(filename, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	db := NewFileDb(filename)
	eh := db.OpenEntry(blesec.PublicAddress, mustAddr(t, "aa:bb:cc:dd:ee:f1"))
	if eh == nil {
		t.Fatal("corrupt file blocked allocation")
	}

	var keys *EntryKeys
	db.GetEntryPeerKeys(func(_ EntryHandle, k *EntryKeys) { keys = k }, eh)
	if keys != nil {
		t.Fatal("corrupt file produced key material")
	}
}

func TestFileDbMissingFileStartsEmpty(t *testing.T) {
	db := NewFileDb(tempBondFile(t))
	if db.OpenEntry(blesec.PublicAddress, mustAddr(t, "aa:bb:cc:dd:ee:f2")) == nil {
		t.Fatal("missing file blocked allocation")
	}
}

func TestFileDbSetRestoreDisablesPersistence(t *testing.T) {
	filename := tempBondFile(t)

	db := NewFileDb(filename)
	db.SetRestore(false)
	eh := db.OpenEntry(blesec.PublicAddress, mustAddr(t, "aa:bb:cc:dd:ee:f3"))
	db.SetEntryPeerLtk(eh, blesec.Ltk{1})
	db.Sync()

	if _, err := os.Stat(filename); !os.IsNotExist(err) {
		t.Fatal("sync wrote despite restore disabled")
	}
}

func TestFileDbLocalIrkSurvivesRestart(t *testing.T) {
	filename := tempBondFile(t)

	db := NewFileDb(filename)
	db.SetLocalIrk(blesec.Irk{0x42})
	db.Sync()

	reloaded := NewFileDb(filename)
	if *reloaded.LocalIrk() != (blesec.Irk{0x42}) {
		t.Fatal("local irk lost across restart")
	}
}

func TestFileDbRestoreReloadsExternalChanges(t *testing.T) {
	filename := tempBondFile(t)
	addr := mustAddr(t, "aa:bb:cc:dd:ee:f5")

	first := NewFileDb(filename)
	first.Sync()

	// a second instance stands in for another writer on the same file
	second := NewFileDb(filename)
	eh := second.OpenEntry(blesec.PublicAddress, addr)
	second.SetEntryPeerLtk(eh, blesec.Ltk{3})
	second.SetLocalIrk(blesec.Irk{0x77})
	second.Sync()

	first.Restore()
	eh = first.OpenEntry(blesec.PublicAddress, addr)
	if eh == nil {
		t.Fatal("restore missed the externally written bond")
	}

	var keys *EntryKeys
	first.GetEntryPeerKeys(func(_ EntryHandle, k *EntryKeys) { keys = k }, eh)
	if keys == nil || keys.Ltk != (blesec.Ltk{3}) {
		t.Fatalf("restored keys %+v", keys)
	}
	if *first.LocalIrk() != (blesec.Irk{0x77}) {
		t.Fatal("restore missed the local irk")
	}
}

func TestFileDbClearEntriesClearsFile(t *testing.T) {
	filename := tempBondFile(t)
	addr := mustAddr(t, "aa:bb:cc:dd:ee:f4")

	db := NewFileDb(filename)
	eh := db.OpenEntry(blesec.PublicAddress, addr)
	db.SetEntryPeerLtk(eh, blesec.Ltk{2})
	db.Sync()
	db.ClearEntries()

	reloaded := NewFileDb(filename)
	eh = reloaded.OpenEntry(blesec.PublicAddress, addr)
	var keys *EntryKeys
	reloaded.GetEntryPeerKeys(func(_ EntryHandle, k *EntryKeys) { keys = k }, eh)
	if keys != nil {
		t.Fatal("purged bond resurrected from file")
	}
}
