package sqlscript

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name: "comments and blank lines",
			script: `-- header
CREATE TABLE a (x UInt8) ENGINE = Memory;

/* block; with semicolon */
CREATE TABLE b (y String) ENGINE = Memory;
`,
			want: []string{
				"CREATE TABLE a (x UInt8) ENGINE = Memory",
				"CREATE TABLE b (y String) ENGINE = Memory",
			},
		},
		{
			name:   "semicolon in literal",
			script: "INSERT INTO t VALUES ('a;b'); SELECT 1",
			want:   []string{"INSERT INTO t VALUES ('a;b')", "SELECT 1"},
		},
		{
			name:   "escaped quotes",
			script: `SELECT 'it''s;'; SELECT 'x\';y'`,
			want:   []string{`SELECT 'it''s;'`, `SELECT 'x\';y'`},
		},
		{
			name:   "quoted identifier",
			script: "SELECT \"a;b\", `c;d` FROM t;",
			want:   []string{"SELECT \"a;b\", `c;d` FROM t"},
		},
		{
			name:   "dash inside literal",
			script: "SELECT '--not a comment';",
			want:   []string{"SELECT '--not a comment'"},
		},
		{
			name:   "only comments",
			script: "-- nothing\n;\n/* here */",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.script)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split() = %q, want %q", got, tt.want)
			}
		})
	}
}
