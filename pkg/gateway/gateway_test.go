package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphergate/cyphergate/pkg/audit"
	gerrors "github.com/cyphergate/cyphergate/pkg/errors"
	"github.com/cyphergate/cyphergate/pkg/models"
	"github.com/cyphergate/cyphergate/pkg/ratelimit"
	"github.com/cyphergate/cyphergate/pkg/readonly"
)

type fakeExecutor struct {
	records  []map[string]any
	err      error
	gotQuery string
}

func (f *fakeExecutor) Execute(_ context.Context, query string, _ map[string]any) ([]map[string]any, error) {
	f.gotQuery = query
	return f.records, f.err
}

func testGateway(t *testing.T, mutate func(*Config)) (*Gateway, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Audit.LogDirectory = dir
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := New(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g, dir
}

func lastAuditEntry(t *testing.T, dir string) audit.Entry {
	t.Helper()
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	var e audit.Entry
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &e))
	return e
}

func TestGateway_AcceptsAndInjectsLimit(t *testing.T) {
	g, _ := testGateway(t, nil)

	v := g.Check(context.Background(), models.QueryRequest{
		Query:    "MATCH (n) RETURN n",
		ClientID: "client-a",
	})

	require.True(t, v.Accepted, "reason: %s", v.Reason)
	assert.Equal(t, "MATCH (n) RETURN n LIMIT 100", v.FinalQuery)
}

func TestGateway_BoundedQueryUnchanged(t *testing.T) {
	g, _ := testGateway(t, nil)

	const q = "MATCH (n) RETURN n LIMIT 5"
	v := g.Check(context.Background(), models.QueryRequest{Query: q, ClientID: "a"})

	require.True(t, v.Accepted)
	assert.Equal(t, q, v.FinalQuery)
}

func TestGateway_InjectionDisabled(t *testing.T) {
	g, _ := testGateway(t, func(cfg *Config) {
		cfg.Injection.Enabled = false
	})

	const q = "MATCH (n) RETURN n"
	v := g.Check(context.Background(), models.QueryRequest{Query: q, ClientID: "a"})

	require.True(t, v.Accepted)
	assert.Equal(t, q, v.FinalQuery)
}

func TestGateway_RejectionStages(t *testing.T) {
	t.Run("sanitization", func(t *testing.T) {
		g, dir := testGateway(t, nil)

		v := g.Check(context.Background(), models.QueryRequest{
			Query:    "CALL apoc.load.json('http://evil.example')",
			ClientID: "a",
		})

		require.False(t, v.Accepted)
		assert.Equal(t, models.StageSanitize, v.Stage)

		e := lastAuditEntry(t, dir)
		assert.Equal(t, "error", e.EventType)
		assert.Equal(t, string(models.StageSanitize), e.ErrorType)
	})

	t.Run("complexity", func(t *testing.T) {
		g, _ := testGateway(t, nil)

		v := g.Check(context.Background(), models.QueryRequest{
			Query:    "MATCH (a) MATCH (b) MATCH (c) RETURN a, b, c",
			ClientID: "a",
		})

		require.False(t, v.Accepted)
		assert.Equal(t, models.StageComplexity, v.Stage)
	})

	t.Run("rate limit", func(t *testing.T) {
		g, _ := testGateway(t, func(cfg *Config) {
			cfg.RateLimit = ratelimit.Config{
				Enabled:           true,
				RequestsPerWindow: 10,
				WindowSeconds:     60,
				BurstSize:         1,
			}
		})

		req := models.QueryRequest{Query: "MATCH (n) RETURN n LIMIT 1", ClientID: "a"}
		require.True(t, g.Check(context.Background(), req).Accepted)

		v := g.Check(context.Background(), req)
		require.False(t, v.Accepted)
		assert.Equal(t, models.StageRateLimit, v.Stage)
		assert.Greater(t, v.RetryAfter, 0.0)
	})

	t.Run("read only", func(t *testing.T) {
		g, _ := testGateway(t, func(cfg *Config) {
			cfg.ReadOnly = readonly.Config{Enabled: true}
		})

		v := g.Check(context.Background(), models.QueryRequest{
			Query:    "CREATE (n:Node) RETURN n",
			ClientID: "a",
		})

		require.False(t, v.Accepted)
		assert.Equal(t, models.StageReadOnly, v.Stage)
		assert.Contains(t, v.Reason, "CREATE")
	})
}

func TestGateway_CanceledContextAbandonsCheck(t *testing.T) {
	g, dir := testGateway(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := g.Check(ctx, models.QueryRequest{
		Query:    "MATCH (n) RETURN n LIMIT 1",
		ClientID: "a",
	})

	require.False(t, v.Accepted)
	assert.Equal(t, models.StageCanceled, v.Stage)

	// Abandonment is not a security rejection, so nothing is audited.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGateway_SanitizationRunsFirst(t *testing.T) {
	g, _ := testGateway(t, func(cfg *Config) {
		cfg.ReadOnly = readonly.Config{Enabled: true}
	})

	// Violates both the blocklist and the read-only policy; the sanitizer
	// stage must report it.
	v := g.Check(context.Background(), models.QueryRequest{
		Query:    "CALL apoc.load.json('x') CREATE (n)",
		ClientID: "a",
	})

	require.False(t, v.Accepted)
	assert.Equal(t, models.StageSanitize, v.Stage)
}

func TestGateway_ClientsRateLimitedIndependently(t *testing.T) {
	g, _ := testGateway(t, func(cfg *Config) {
		cfg.RateLimit = ratelimit.Config{
			Enabled:           true,
			RequestsPerWindow: 10,
			WindowSeconds:     60,
			BurstSize:         1,
		}
	})

	q := "MATCH (n) RETURN n LIMIT 1"
	require.True(t, g.Check(context.Background(), models.QueryRequest{Query: q, ClientID: "a"}).Accepted)
	require.False(t, g.Check(context.Background(), models.QueryRequest{Query: q, ClientID: "a"}).Accepted)
	assert.True(t, g.Check(context.Background(), models.QueryRequest{Query: q, ClientID: "b"}).Accepted)
}

func TestGateway_ExecuteForwardsFinalQuery(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Audit.LogDirectory = dir

	exec := &fakeExecutor{records: []map[string]any{{"n": 1}}}
	g, err := New(cfg, exec, nil)
	require.NoError(t, err)
	defer g.Close()

	records, v, err := g.Execute(context.Background(), models.QueryRequest{
		Query:    "MATCH (n) RETURN n",
		ClientID: "a",
	})

	require.NoError(t, err)
	require.True(t, v.Accepted)
	assert.Len(t, records, 1)
	assert.Equal(t, "MATCH (n) RETURN n LIMIT 100", exec.gotQuery)

	e := lastAuditEntry(t, dir)
	assert.Equal(t, "response", e.EventType)
}

func TestGateway_ExecuteFailureIsAudited(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Audit.LogDirectory = dir

	exec := &fakeExecutor{err: errors.New("connection refused")}
	g, err := New(cfg, exec, nil)
	require.NoError(t, err)
	defer g.Close()

	_, v, err := g.Execute(context.Background(), models.QueryRequest{
		Query:    "MATCH (n) RETURN n LIMIT 1",
		ClientID: "a",
	})

	require.Error(t, err)
	assert.True(t, v.Accepted)
	assert.Equal(t, gerrors.CodeExecutionFailed, gerrors.GetCode(err))

	e := lastAuditEntry(t, dir)
	assert.Equal(t, string(models.StageExecution), e.ErrorType)
}

func TestGateway_ExecuteRejectedQueryNeverReachesExecutor(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Audit.LogDirectory = dir

	exec := &fakeExecutor{}
	g, err := New(cfg, exec, nil)
	require.NoError(t, err)
	defer g.Close()

	_, v, err := g.Execute(context.Background(), models.QueryRequest{
		Query:    "CALL apoc.load.json('x')",
		ClientID: "a",
	})

	require.NoError(t, err)
	assert.False(t, v.Accepted)
	assert.Empty(t, exec.gotQuery)
}

func TestGateway_ExecuteWithoutExecutor(t *testing.T) {
	g, _ := testGateway(t, nil)

	_, v, err := g.Execute(context.Background(), models.QueryRequest{
		Query:    "MATCH (n) RETURN n LIMIT 1",
		ClientID: "a",
	})

	assert.True(t, v.Accepted)
	assert.Error(t, err)
}

func TestGateway_AuditFailureDoesNotBlockVerdict(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Audit.LogDirectory = dir
	g, err := New(cfg, nil, nil)
	require.NoError(t, err)
	defer g.Close()

	// Make the log directory unwritable by replacing it with a file.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	v := g.Check(context.Background(), models.QueryRequest{
		Query:    "MATCH (n) RETURN n LIMIT 1",
		ClientID: "a",
	})
	assert.True(t, v.Accepted)
}
