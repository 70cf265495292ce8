package corofleet

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testFileStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	return &FileStore{
		ConfPath: filepath.Join(dir, "corosync", "corosync.conf"),
		CIBPath:  filepath.Join(dir, "pacemaker", "cib", "cib.xml"),
		StateDir: filepath.Join(dir, "state"),
	}
}

func TestFileStoreReadWriteRemove(t *testing.T) {
	store := testFileStore(t)
	if store.Exists() {
		t.Error("fresh store must not report an existing config")
	}

	if err := store.Write("totem {\n}\n"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if !store.Exists() {
		t.Error("config missing after Write")
	}
	text, err := store.Read()
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if text != "totem {\n}\n" {
		t.Errorf("Read() = %q", text)
	}

	if err := store.Remove(); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if store.Exists() {
		t.Error("config still present after Remove")
	}
	// removing again is not an error
	if err := store.Remove(); err != nil {
		t.Errorf("second Remove() error: %v", err)
	}
}

func TestFileStoreWriteError(t *testing.T) {
	store := testFileStore(t)
	// make the parent path a file so MkdirAll fails
	parent := filepath.Dir(store.ConfPath)
	if err := os.WriteFile(parent, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := store.Write("totem {\n}\n")
	var werr *ConfigWriteError
	if !errors.As(err, &werr) {
		t.Fatalf("Write() error = %v, want *ConfigWriteError", err)
	}
	if werr.Path != store.ConfPath {
		t.Errorf("Path = %q, want %q", werr.Path, store.ConfPath)
	}
}

func TestFileStoreAuxConfigs(t *testing.T) {
	store := testFileStore(t)
	store.AuxPaths = map[string]string{
		AuxWatchdog: filepath.Join(store.StateDir, "sbd"),
	}

	if _, err := store.ReadAux(AuxWatchdog); err == nil {
		t.Error("reading a missing auxiliary config must fail")
	}
	if err := store.WriteAux("bogus", "x"); err == nil {
		t.Error("an unknown auxiliary kind must be rejected")
	}

	if err := store.WriteAux(AuxWatchdog, "SBD_DEVICE=/dev/sdx\n"); err != nil {
		t.Fatalf("WriteAux() error: %v", err)
	}
	text, err := store.ReadAux(AuxWatchdog)
	if err != nil {
		t.Fatalf("ReadAux() error: %v", err)
	}
	if text != "SBD_DEVICE=/dev/sdx\n" {
		t.Errorf("ReadAux() = %q", text)
	}
}

func TestFileStoreRemoveStateFiles(t *testing.T) {
	store := testFileStore(t)
	sub := filepath.Join(store.StateDir, "pacemaker", "pengine")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	purged := []string{
		filepath.Join(store.StateDir, "cib.xml"),
		filepath.Join(store.StateDir, "cib.xml.sig"),
		filepath.Join(store.StateDir, "hostcache"),
		filepath.Join(sub, "pe-input-0.bz2"),
		filepath.Join(sub, "core.1234"),
	}
	kept := []string{
		filepath.Join(store.StateDir, "notes.txt"),
		filepath.Join(sub, "unrelated.log"),
	}
	for _, path := range append(append([]string{}, purged...), kept...) {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.RemoveStateFiles(); err != nil {
		t.Fatalf("RemoveStateFiles() error: %v", err)
	}
	for _, path := range purged {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still present", path)
		}
	}
	for _, path := range kept {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s was removed", path)
		}
	}
}
