package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func backends(t *testing.T) map[string]func(t *testing.T) KV {
	t.Helper()
	return map[string]func(t *testing.T) KV{
		BackendMemory: func(t *testing.T) KV {
			return NewMemory()
		},
		BackendSQLite: func(t *testing.T) KV {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatalf("OpenSQLite() failed: %v", err)
			}
			return s
		},
		BackendPebble: func(t *testing.T) KV {
			s, err := OpenPebble(filepath.Join(t.TempDir(), "pebble"))
			if err != nil {
				t.Fatalf("OpenPebble() failed: %v", err)
			}
			return s
		},
	}
}

func get(t *testing.T, kv KV, key string) ([]byte, bool) {
	t.Helper()
	var (
		value []byte
		found bool
	)
	err := kv.View(context.Background(), func(r Reader) error {
		var err error
		value, found, err = r.Get(key)
		return err
	})
	if err != nil {
		t.Fatalf("View() failed: %v", err)
	}
	return value, found
}

func TestKV_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			kv := open(t)
			defer kv.Close()

			if _, found := get(t, kv, "missing"); found {
				t.Fatal("missing key reported as found")
			}

			err := kv.Update(ctx, func(tx Tx) error {
				return tx.Put("a", []byte(`[1,2]`))
			})
			if err != nil {
				t.Fatalf("Update() failed: %v", err)
			}

			v, found := get(t, kv, "a")
			if !found || string(v) != `[1,2]` {
				t.Fatalf("Get(a) = %q, %v", v, found)
			}

			err = kv.Update(ctx, func(tx Tx) error {
				return tx.Delete("a")
			})
			if err != nil {
				t.Fatalf("Update(delete) failed: %v", err)
			}
			if _, found := get(t, kv, "a"); found {
				t.Fatal("deleted key still present")
			}
		})
	}
}

func TestKV_ReadYourWritesInsideUpdate(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			kv := open(t)
			defer kv.Close()

			err := kv.Update(ctx, func(tx Tx) error {
				if err := tx.Put("k", []byte("one")); err != nil {
					return err
				}
				v, found, err := tx.Get("k")
				if err != nil {
					return err
				}
				if !found || string(v) != "one" {
					t.Errorf("Get inside Update = %q, %v", v, found)
				}
				if err := tx.Delete("k"); err != nil {
					return err
				}
				_, found, err = tx.Get("k")
				if found {
					t.Error("deleted key visible inside Update")
				}
				return err
			})
			if err != nil {
				t.Fatalf("Update() failed: %v", err)
			}
		})
	}
}

func TestKV_UpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			kv := open(t)
			defer kv.Close()

			if err := kv.Update(ctx, func(tx Tx) error {
				return tx.Put("keep", []byte("v1"))
			}); err != nil {
				t.Fatalf("seed Update() failed: %v", err)
			}

			err := kv.Update(ctx, func(tx Tx) error {
				if err := tx.Put("keep", []byte("v2")); err != nil {
					return err
				}
				if err := tx.Put("new", []byte("x")); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Update() error = %v, want boom", err)
			}

			v, _ := get(t, kv, "keep")
			if string(v) != "v1" {
				t.Errorf("keep = %q after failed update, want v1", v)
			}
			if _, found := get(t, kv, "new"); found {
				t.Error("write from failed update is visible")
			}
		})
	}
}

func TestKV_EmptyValueIsPresent(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			kv := open(t)
			defer kv.Close()

			if err := kv.Update(ctx, func(tx Tx) error {
				return tx.Put("empty", []byte{})
			}); err != nil {
				t.Fatalf("Update() failed: %v", err)
			}
			if _, found := get(t, kv, "empty"); !found {
				t.Error("empty value reported as absent")
			}
		})
	}
}

func TestKV_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			kv := open(t)
			defer kv.Close()

			err := kv.Update(ctx, func(tx Tx) error {
				return tx.Put("k", []byte("v"))
			})
			if err == nil {
				t.Fatal("Update() with cancelled context succeeded")
			}
			if _, found := get(t, kv, "k"); found {
				t.Error("write landed despite cancelled context")
			}
		})
	}
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cases := map[string]func() (KV, error){
		BackendSQLite: func() (KV, error) { return OpenSQLite(filepath.Join(dir, "reopen.db")) },
		BackendPebble: func() (KV, error) { return OpenPebble(filepath.Join(dir, "reopen-pebble")) },
	}

	for name, open := range cases {
		t.Run(name, func(t *testing.T) {
			kv, err := open()
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			if err := kv.Update(ctx, func(tx Tx) error {
				return tx.Put("workflowHistory", []byte(`[]`))
			}); err != nil {
				t.Fatalf("Update() failed: %v", err)
			}
			if err := kv.Close(); err != nil {
				t.Fatalf("Close() failed: %v", err)
			}

			kv, err = open()
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			defer kv.Close()

			v, found := get(t, kv, "workflowHistory")
			if !found || string(v) != `[]` {
				t.Errorf("after reopen got %q, %v", v, found)
			}
		})
	}
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []string{"", BackendSQLite, BackendPebble, BackendMemory} {
		kv, err := Open(backend, filepath.Join(dir, "b-"+backend))
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", backend, err)
		}
		kv.Close()
	}

	if _, err := Open("etcd", dir); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestMemory_ClosedStore(t *testing.T) {
	m := NewMemory()
	m.Close()

	err := m.View(context.Background(), func(Reader) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Errorf("View() after Close = %v, want ErrClosed", err)
	}
}

func TestPebble_CloseIdempotent(t *testing.T) {
	p, err := OpenPebble(filepath.Join(t.TempDir(), "p"))
	if err != nil {
		t.Fatalf("OpenPebble() failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	err = p.Update(context.Background(), func(Tx) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Update() after Close = %v, want ErrClosed", err)
	}
}

// SQLite specifics

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestSQLite_CloseNilDB(t *testing.T) {
	s := &SQLite{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragma_JournalMode(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_UserVersion(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestSQLite_RevisionCountsWrites(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		if err := s.Update(ctx, func(tx Tx) error {
			return tx.Put("lastSOSequence", []byte("1"))
		}); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
	}

	rev, err := s.Revision(ctx, "lastSOSequence")
	if err != nil {
		t.Fatalf("Revision() failed: %v", err)
	}
	if rev != 3 {
		t.Errorf("Revision = %d, want 3", rev)
	}

	rev, err = s.Revision(ctx, "absent")
	if err != nil || rev != 0 {
		t.Errorf("Revision(absent) = %d, %v", rev, err)
	}
}

func TestMigration_AddsRevisionToV0Database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v0.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB NOT NULL) WITHOUT ROWID`); err != nil {
		t.Fatalf("create v0 table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO kv (key, value) VALUES ('orderData', '{}')`); err != nil {
		t.Fatalf("seed v0 row: %v", err)
	}
	db.Close()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() on v0 database failed: %v", err)
	}
	defer s.Close()

	ok, err := hasColumn(s.db, "kv", "revision")
	if err != nil || !ok {
		t.Fatalf("revision column missing after migration: %v", err)
	}

	rev, err := s.Revision(context.Background(), "orderData")
	if err != nil || rev != 1 {
		t.Errorf("Revision(orderData) = %d, %v, want 1", rev, err)
	}
}
