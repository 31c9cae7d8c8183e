package scanner_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/scanner"
	"github.com/abdidvp/layerfix/internal/domain"
)

const fixtureDir = "../../../../testdata/java-layered/leaky"

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoader_LoadDir(t *testing.T) {
	project, err := scanner.FromConfig(domain.DefaultConfig()).LoadDir(context.Background(), fixtureDir)
	require.NoError(t, err)

	assert.Equal(t, "leaky", project.Name)
	assert.True(t, filepath.IsAbs(project.Root))
	assert.Equal(t, []string{
		"src/main/java/com/example/leakydemo/Order.java",
		"src/main/java/com/example/leakydemo/OrderController.java",
		"src/main/java/com/example/leakydemo/OrderRepository.java",
	}, project.Paths())
}

func TestLoader_LoadDir_SkipsBuildOutputAndExcludes(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	write("src/main/java/A.java", "class A {}")
	write("target/classes/B.java", "class B {}")
	write("src/generated/C.java", "class C {}")
	write("README.md", "# readme")

	project, err := scanner.New(nil, []string{"src/generated/**"}).LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main/java/A.java"}, project.Paths())
}

func TestLoader_LoadDir_Missing(t *testing.T) {
	_, err := scanner.New(nil, nil).LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoader_LoadZip(t *testing.T) {
	data := zipOf(t, map[string]string{
		"shop/src/main/java/A.java":    "class A {}",
		"shop/src/main/java/notes.txt": "text",
		"shop/.git/B.java":             "class B {}",
	})

	project, err := scanner.New(nil, nil).LoadZip(context.Background(), "shop.zip", data)
	require.NoError(t, err)
	assert.Equal(t, "shop", project.Name)
	assert.Equal(t, []string{"src/main/java/A.java"}, project.Paths())
}

func TestLoader_LoadZip_KeepsSourceRoot(t *testing.T) {
	data := zipOf(t, map[string]string{"src/A.java": "class A {}", "src/B.java": "class B {}"})
	project, err := scanner.New(nil, nil).LoadZip(context.Background(), "upload.zip", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/A.java", "src/B.java"}, project.Paths())
}

func TestLoader_LoadZip_RejectsTraversal(t *testing.T) {
	data := zipOf(t, map[string]string{"../evil/A.java": "class A {}"})
	_, err := scanner.New(nil, nil).LoadZip(context.Background(), "evil.zip", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the project root")
}

func TestLoader_LoadZip_NotAnArchive(t *testing.T) {
	_, err := scanner.New(nil, nil).LoadZip(context.Background(), "x.zip", []byte("plain text"))
	assert.Error(t, err)
}

func TestFromSources(t *testing.T) {
	project, err := scanner.FromSources("json", map[string]string{
		"OrderController":           "class OrderController {}",
		"com/example/Order.java":    "class Order {}",
		"/abs/OrderRepository.java": "interface OrderRepository {}",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"OrderController.java", "abs/OrderRepository.java", "com/example/Order.java"}, project.Paths())
}

func TestFromSources_CollidingKeys(t *testing.T) {
	for i := 0; i < 20; i++ {
		_, err := scanner.FromSources("json", map[string]string{
			"Order":      "class Order { int a; }",
			"Order.java": "class Order { int b; }",
		})
		require.ErrorIs(t, err, scanner.ErrDuplicateSource)
		assert.Equal(t, `duplicate source path: "Order" and "Order.java" both name Order.java`, err.Error())
	}

	_, err := scanner.FromSources("json", map[string]string{"a/Order.java": "x", "a\\Order.java": "y"})
	assert.ErrorIs(t, err, scanner.ErrDuplicateSource)
}
