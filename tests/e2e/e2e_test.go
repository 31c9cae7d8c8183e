package e2e_test

import (
	"archive/zip"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/testutil"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build binary before running tests
	dir, err := os.MkdirTemp("", "layerfix-e2e")
	if err != nil {
		panic(err)
	}

	binaryPath = filepath.Join(dir, "layerfix")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/layerfix")
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("build failed: " + string(out))
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func run(t *testing.T, env []string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(binaryPath, append(args, "--log-level", "error")...)
	cmd.Env = append(os.Environ(), "OPENAI_API_KEY=", "FIXED_DIR=")
	cmd.Env = append(cmd.Env, env...)
	out, err := cmd.Output()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}
	return string(out), exitCode
}

func modelEnv(t *testing.T) []string {
	srv := testutil.NewOpenAIServer(t)
	return []string{"OPENAI_API_KEY=test-key", "OPENAI_API_BASE=" + srv.URL}
}

func TestE2E_Version(t *testing.T) {
	out, code := run(t, nil, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "layerfix")
}

func TestE2E_DetectJSON(t *testing.T) {
	out, code := run(t, nil, "detect", testutil.CopyFixture(t, "leaky"), "--json")
	require.Equal(t, 0, code)

	var rep domain.ProjectReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 4, rep.Counts.Violations)
	assert.Equal(t, domain.StageDetected, rep.Stage)
}

func TestE2E_FixWithoutKeyFails(t *testing.T) {
	_, code := run(t, nil, "fix", testutil.CopyFixture(t, "leaky"))
	assert.Equal(t, 1, code)
}

func TestE2E_FixIsIdempotent(t *testing.T) {
	env := modelEnv(t)
	fixed := filepath.Join(t.TempDir(), "fixed")

	out, code := run(t, env, "fix", testutil.CopyFixture(t, "leaky"), "--json", "-o", fixed)
	require.Equal(t, 0, code, out)
	var rep domain.ProjectReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 4, rep.Counts.Applied)

	out, code = run(t, env, "detect", fixed, "--json")
	require.Equal(t, 0, code)
	var again domain.ProjectReport
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Zero(t, again.Counts.Violations)
}

func TestE2E_FixZipToZip(t *testing.T) {
	src := testutil.CopyFixture(t, "leaky")
	archive := filepath.Join(t.TempDir(), "leaky.zip")
	writeZip(t, src, archive)
	outZip := filepath.Join(t.TempDir(), "fixed.zip")

	out, code := run(t, modelEnv(t), "fix", archive, "-o", outZip)
	require.Equal(t, 0, code, out)

	zr, err := zip.OpenReader(outZip)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "layerfix-report.json")
	assert.Contains(t, names, "src/main/java/com/example/leakydemo/OrderService.java")
}

func writeZip(t *testing.T, root, dest string) {
	t.Helper()
	f, err := os.Create(dest)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}
