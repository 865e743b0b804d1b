package resolver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePackage(t *testing.T, root, name, manifest string, files ...string) {
	t.Helper()
	dir := filepath.Join(root, "node_modules", name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(manifest), 0644))
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("export default {};"), 0644))
	}
}

func TestResolve_PrefersModuleField(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "vue",
		`{"module": "dist/vue.esm.js", "main": "dist/vue.cjs.js"}`,
		"dist/vue.esm.js", "dist/vue.cjs.js")

	r := NewResolver(root, time.Minute, nil)
	resolved, err := r.Resolve(context.Background(), "vue")
	require.NoError(t, err)
	assert.Equal(t, "/@modules/vue/dist/vue.esm.js", resolved)
}

func TestResolve_FallsBackToMain(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "left-pad", `{"main": "index.js"}`, "index.js")

	r := NewResolver(root, time.Minute, nil)
	resolved, err := r.Resolve(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.Equal(t, "/@modules/left-pad/index.js", resolved)
}

func TestResolve_ScopedPackage(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "@scope/pkg", `{"module": "esm/index.js"}`, "esm/index.js")

	r := NewResolver(root, time.Minute, nil)
	resolved, err := r.Resolve(context.Background(), "@scope/pkg")
	require.NoError(t, err)
	assert.Equal(t, "/@modules/@scope/pkg/esm/index.js", resolved)
}

func TestResolve_MissingPackage(t *testing.T) {
	r := NewResolver(t.TempDir(), time.Minute, nil)
	_, err := r.Resolve(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestResolve_RejectsRelativeNames(t *testing.T) {
	r := NewResolver(t.TempDir(), time.Minute, nil)

	for _, name := range []string{"", "./local", "../escape", "a/../../b"} {
		_, err := r.Resolve(context.Background(), name)
		assert.Error(t, err, "name %q must be rejected", name)
	}
}

func TestResolve_CachesWithinTTL(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "vue", `{"main": "index.js"}`, "index.js")

	r := NewResolver(root, time.Minute, nil)

	first, err := r.Resolve(context.Background(), "vue")
	require.NoError(t, err)

	// Remove the package; the cached entry still answers.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "node_modules")))

	second, err := r.Resolve(context.Background(), "vue")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_TTLExpiry(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "vue", `{"main": "index.js"}`, "index.js")

	r := NewResolver(root, time.Millisecond, nil)

	_, err := r.Resolve(context.Background(), "vue")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "node_modules")))
	time.Sleep(10 * time.Millisecond)

	_, err = r.Resolve(context.Background(), "vue")
	assert.Error(t, err, "expired entries re-resolve from disk")
}

func TestResolve_Invalidate(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "vue", `{"main": "index.js"}`, "index.js")

	r := NewResolver(root, time.Minute, nil)
	_, err := r.Resolve(context.Background(), "vue")
	require.NoError(t, err)

	r.Invalidate("vue")
	require.NoError(t, os.RemoveAll(filepath.Join(root, "node_modules")))

	_, err = r.Resolve(context.Background(), "vue")
	assert.Error(t, err)
}

// TestResolve_DeduplicatesConcurrentLookups exercises the pending-request
// dedup: many concurrent identical lookups perform one disk resolution.
func TestResolve_DeduplicatesConcurrentLookups(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "vue", `{"main": "index.js"}`, "index.js")

	r := NewResolver(root, time.Minute, nil)

	var wg sync.WaitGroup
	results := make([]string, 16)
	errs := make([]error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), "vue")
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "/@modules/vue/index.js", results[i])
	}
}

func TestFilePath(t *testing.T) {
	r := NewResolver("/project", time.Minute, nil)

	path, ok := r.FilePath("/@modules/vue/index.js")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/project", "node_modules", "vue", "index.js"), path)

	_, ok = r.FilePath("/other/vue/index.js")
	assert.False(t, ok)

	_, ok = r.FilePath("/@modules/../etc/passwd")
	assert.False(t, ok)
}
