package clickhouse

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"signal-backtest-lab/internal/storage/sqlscript"
)

// The migrations package imports this one, so the schema files are read
// from disk instead.
const schemaDir = "../migrations/clickhouse"

// setupTestDB starts a ClickHouse container with the trade feed schema
// applied. Cleanup is registered on t.
func setupTestDB(t *testing.T) *Conn {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			// No CLICKHOUSE_DB: the entrypoint would otherwise run a temporary
			// init server and the port check could pass against it.
			Env: map[string]string{
				"CLICKHOUSE_USER":     "default",
				"CLICKHOUSE_PASSWORD": "",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections"),
				wait.ForListeningPort("9000/tcp"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://default@%s/default?dial_timeout=30s", endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	applySchema(t, conn)
	return conn
}

func applySchema(t *testing.T, conn *Conn) {
	t.Helper()

	files, err := fs.Glob(os.DirFS(schemaDir), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files, "no schema files in %s", schemaDir)
	sort.Strings(files)

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(schemaDir, name))
		require.NoError(t, err)
		for _, stmt := range sqlscript.Split(string(content)) {
			require.NoError(t, conn.Exec(context.Background(), stmt), "apply %s", name)
		}
	}
}
