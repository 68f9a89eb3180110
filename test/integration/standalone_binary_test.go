package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildStandaloneBinary builds the CLI and copies it outside the repo so no
// relative config lookups can leak in.
func buildStandaloneBinary(t *testing.T) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err, "go env GOMOD")
	goModPath := strings.TrimSpace(string(goModPathBytes))
	require.NotEmpty(t, goModPath, "go env GOMOD returned empty")
	repoRoot := filepath.Dir(goModPath)

	binaryPath := filepath.Join(t.TempDir(), "tradelens")
	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/tradelens")
	build.Dir = repoRoot
	build.Env = os.Environ()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "go build:\n%s", string(out))

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "tradelens")
	data, err := os.ReadFile(binaryPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(copiedBinary, data, 0o755))
	return copiedBinary, outside
}

func runBinary(t *testing.T, binary, dir string, env []string, args ...string) string {
	t.Helper()
	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "XDG_CONFIG_HOME="+filepath.Join(dir, "xdg"))
	cmd.Env = append(cmd.Env, env...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "%s failed:\n%s", strings.Join(args, " "), string(out))
	return string(out)
}

func TestStandaloneBinaryRunsOutsideRepo(t *testing.T) {
	binary, dir := buildStandaloneBinary(t)

	assert.Contains(t, runBinary(t, binary, dir, nil, "version"), "tradelens")

	help := runBinary(t, binary, dir, nil, "search", "--help")
	for _, flag := range []string{"--base", "--rarity", "--mod", "--item", "--output-format"} {
		assert.Contains(t, help, flag)
	}

	stats := runBinary(t, binary, dir,
		[]string{"TRADELENS_CACHE_MAX_ENTRIES=42", "TRADELENS_CACHE_TTL=90s"},
		"cache", "stats", "-o", "json")
	var body struct {
		MaxEntries int    `json:"max_entries"`
		TTL        string `json:"ttl"`
	}
	start := strings.Index(stats, "{")
	require.GreaterOrEqual(t, start, 0, stats)
	require.NoError(t, json.NewDecoder(strings.NewReader(stats[start:])).Decode(&body), stats)
	assert.Equal(t, 42, body.MaxEntries)
	assert.Equal(t, "1m30s", body.TTL)
}
