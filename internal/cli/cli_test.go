package cli

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()), "fitdb %v: %s", args, out.String())
	return out.String()
}

func seeded(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fit.db")
	out := run(t, "--db", path, "seed", "--users", "2", "--activities", "5")
	assert.Equal(t, "seeded 2 users with 5 activities each\n", out)
	return path
}

func TestStatsGolden(t *testing.T) {
	path := seeded(t)
	out := run(t, "--db", path, "stats")

	g := goldie.New(t)
	g.Assert(t, "stats", []byte(out))
}

func TestSeedIsDeterministic(t *testing.T) {
	path := seeded(t)
	before := run(t, "--db", path, "stats")
	run(t, "--db", path, "seed", "--users", "2", "--activities", "5")
	assert.Equal(t, before, run(t, "--db", path, "stats"))
}

func TestDeleteUserThenPurge(t *testing.T) {
	path := seeded(t)
	user := SeedUserKey(0).String()

	assert.Equal(t, "deleted "+user+"\n", run(t, "--db", path, "delete-user", user))

	out := run(t, "--db", path, "purge")
	assert.Equal(t, "purged: gear=2 sessions=5 clients=1 records=5 laps=5 gear_links=3 total=21\n", out)

	out = run(t, "--db", path, "purge")
	assert.Equal(t, "purged: gear=0 sessions=0 clients=0 records=0 laps=0 gear_links=0 total=0\n", out)

	assert.Contains(t, run(t, "--db", path, "stats"), "total                  40\n")
}

func TestDeleteUserErrors(t *testing.T) {
	path := seeded(t)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", path, "delete-user", "not-a-uuid"})
	assert.Error(t, cmd.Execute())

	cmd = NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", path, "delete-user", SeedUserKey(7).String()})
	assert.ErrorContains(t, cmd.Execute(), "not found")
}

func TestInspect(t *testing.T) {
	path := seeded(t)
	out := run(t, "--db", path, "inspect", SeedUserKey(1).String(), "--take", "3")

	assert.Contains(t, out, "user "+SeedUserKey(1).String())
	assert.Contains(t, out, `Name: (string) (len=8) "Runner 2"`)
	assert.Contains(t, out, "gear (2):")
	assert.Contains(t, out, "clients (1):")
	assert.Contains(t, out, "activities (3 shown, more: true):")
	assert.Contains(t, out, "2024-03-05T06:31:00Z running")
}

func TestCompactAndDump(t *testing.T) {
	path := seeded(t)
	assert.Equal(t, "compacted\n", run(t, "--db", path, "compact"))

	out := run(t, "--db", path, "dump")
	assert.Contains(t, out, "sessions/gear")
	assert.Contains(t, run(t, "--db", path, "stats"), "total                  80\n")
}

func TestMemoryBackend(t *testing.T) {
	out := run(t, "--backend", "memory", "--db", "ignored", "stats")
	assert.Contains(t, out, "total                   0\n")
}

func TestPurgeJournal(t *testing.T) {
	path := seeded(t)
	dir := filepath.Join(t.TempDir(), "journal")
	run(t, "--db", path, "delete-user", SeedUserKey(1).String())
	run(t, "--db", path, "--journal", dir, "purge")

	var want strings.Builder
	for _, rc := range []struct {
		region string
		n      int
	}{
		{"clients", 1}, {"clients/users", 1},
		{"gear", 2}, {"gear/users", 2},
		{"laps", 5}, {"laps/sessions", 5},
		{"records", 5}, {"records/sessions", 5},
		{"sessions", 5}, {"sessions/gear", 3}, {"sessions/users", 5},
	} {
		fmt.Fprintf(&want, "%-18s %6d\n", rc.region, rc.n)
	}
	want.WriteString("39 entries\n")
	assert.Equal(t, want.String(), run(t, "--journal", dir, "journal", "--summary"))

	out := run(t, "journal", dir)
	assert.True(t, strings.HasSuffix(out, "\n39 entries\n"))
	assert.Contains(t, out, " gear/users ")
}
