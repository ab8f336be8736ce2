package migrations

import (
	"embed"
	"strings"
	"testing"

	"signal-backtest-lab/internal/storage/sqlscript"
)

func TestLoad_EmbeddedFilesInOrder(t *testing.T) {
	for dir, fsys := range map[string]embed.FS{"postgres": PostgresFS, "clickhouse": ClickhouseFS} {
		files, err := load(fsys, dir)
		if err != nil {
			t.Fatalf("load %s: %v", dir, err)
		}
		if len(files) == 0 {
			t.Fatalf("no %s migrations embedded", dir)
		}
		for i := 1; i < len(files); i++ {
			if files[i-1].name >= files[i].name {
				t.Errorf("%s migrations out of order: %s before %s", dir, files[i-1].name, files[i].name)
			}
		}
	}
}

func TestClickhouseMigrationsSplitCleanly(t *testing.T) {
	files, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, m := range files {
		stmts := sqlscript.Split(m.sql)
		if len(stmts) == 0 {
			t.Errorf("%s has no statements", m.name)
		}
		for _, s := range stmts {
			if !strings.Contains(strings.ToUpper(s), "IF NOT EXISTS") {
				t.Errorf("%s: statement is not idempotent: %.60s", m.name, s)
			}
		}
	}
}

func TestPending(t *testing.T) {
	files := []migration{{name: "001_a.sql"}, {name: "002_b.sql"}, {name: "003_c.sql"}}

	got := pending(files, map[string]bool{"002_b.sql": true})
	if len(got) != 2 || got[0].name != "001_a.sql" || got[1].name != "003_c.sql" {
		t.Errorf("pending = %+v", got)
	}
	if got := pending(files, map[string]bool{"001_a.sql": true, "002_b.sql": true, "003_c.sql": true}); len(got) != 0 {
		t.Errorf("expected nothing pending, got %+v", got)
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/trades?compress=lz4")
	if err != nil || db != "trades" {
		t.Errorf("databaseFromDSN = %q, %v; want trades", db, err)
	}
	for _, dsn := range []string{
		"clickhouse://localhost:9000",
		"clickhouse://localhost:9000/trades%3B%20DROP",
		"clickhouse://localhost:9000/1abc",
	} {
		if _, err := databaseFromDSN(dsn); err == nil {
			t.Errorf("databaseFromDSN(%q) should fail", dsn)
		}
	}
}
