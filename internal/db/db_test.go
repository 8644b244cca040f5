package db

import (
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/python-kurs/exercise-4-l3enR/internal/config"
)

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{name: "dsn wins", cfg: config.Config{SQLiteDSN: ":memory:", SQLitePath: "ignored.db"}, want: ":memory:"},
		{name: "plain path", cfg: config.Config{SQLitePath: filepath.Join(dir, "a", "archive.db")},
			want: "file:" + filepath.Join(dir, "a", "archive.db") + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{name: "file uri with query", cfg: config.Config{SQLitePath: "file:" + filepath.Join(dir, "b.db") + "?cache=shared"},
			want: "file:" + filepath.Join(dir, "b.db") + "?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if err != nil {
				t.Fatalf("buildDSN: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildDSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAndMigrate(t *testing.T) {
	for _, logQueries := range []bool{false, true} {
		cfg := config.Config{SQLitePath: filepath.Join(t.TempDir(), "nested", "archive.db"), SQLiteLogQueries: logQueries}

		conn, err := Open(cfg, nil)
		if err != nil {
			t.Fatalf("Open(logQueries=%v): %v", logQueries, err)
		}
		if err := Migrate(conn); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		// Second run is a no-op.
		if err := Migrate(conn); err != nil {
			t.Fatalf("Migrate again: %v", err)
		}

		var n int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if n != 1 {
			t.Errorf("applied migrations = %d, want 1", n)
		}
		for _, table := range []string{"stations", "monthly_aggregates", "renders"} {
			var name string
			err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
			if err != nil {
				t.Errorf("table %s missing: %v", table, err)
			}
		}
		if err := Close(conn); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestMigrate_OrderAndFailure(t *testing.T) {
	conn, err := Open(config.Config{SQLiteDSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = Close(conn) }()

	fsys := fstest.MapFS{
		"m/0002_second.sql": {Data: []byte(`INSERT INTO t (v) VALUES ('second');`)},
		"m/0001_first.sql":  {Data: []byte(`CREATE TABLE t (v TEXT);`)},
		"m/README.md":       {Data: []byte(`ignored`)},
		"m/0003_broken.sql": {Data: []byte(`INSERT INTO missing VALUES (1);`)},
	}

	err = migrateFS(conn, fsys, "m")
	if err == nil || !strings.Contains(err.Error(), "0003_broken.sql") {
		t.Fatalf("migrateFS error = %v, want failure naming 0003_broken.sql", err)
	}

	var v string
	if err := conn.QueryRow(`SELECT v FROM t`).Scan(&v); err != nil || v != "second" {
		t.Fatalf("first two migrations not applied in order: v=%q err=%v", v, err)
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("recorded migrations = %d, want 2 (broken one rolled back)", n)
	}
}

func TestClose_Nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close(nil) = %v, want nil", err)
	}
}
