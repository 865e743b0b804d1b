package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reheat-dev/reheat/internal/cache"
	"github.com/reheat-dev/reheat/internal/jsparse"
	"github.com/reheat-dev/reheat/internal/protocol"
	"github.com/reheat-dev/reheat/internal/registry"
	"github.com/reheat-dev/reheat/internal/transform"
	"github.com/reheat-dev/reheat/internal/watcher"
)

func testPipeline(t *testing.T, root string) (*Pipeline, *registry.ComponentRegistry, *cache.ASTCache) {
	t.Helper()

	contents := cache.NewContentCache(100, time.Minute, 1<<20)
	asts := cache.NewASTCache(100, 1<<20, time.Minute, nil)
	parser := jsparse.NewParser(jsparse.DefaultOptions())
	transformer := transform.NewTransformer(transform.Options{CompiledExt: ".js"})
	components := registry.NewComponentRegistry()

	p := New(Options{Root: root}, contents, asts, parser, transformer, components, nil)
	return p, components, asts
}

func writeSource(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessFileRewritesLocalImports(t *testing.T) {
	root := t.TempDir()
	path := writeSource(t, root, "src/app.js",
		"import util from './util.js';\nexport const run = () => util();\n")

	p, components, _ := testPipeline(t, root)

	result, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ModulePrefix+"src/app.js", result.ModulePath)
	assert.Equal(t, "App", result.Name)
	assert.Equal(t, transform.Plain, result.Classification)
	assert.False(t, result.PassThrough)
	assert.Contains(t, result.Code, "let util;")
	assert.Contains(t, result.Code, `await import("./util.js?t=`)
	assert.Len(t, result.ContentHash, 16)

	// Plain modules are not components and stay out of the registry.
	assert.Equal(t, 0, components.Count())
}

func TestProcessFileRegistersComponents(t *testing.T) {
	root := t.TempDir()
	path := writeSource(t, root, "src/components/user-profile.js",
		"import base from './base.js';\n"+
			"export default defineComponent({ name: 'UserProfile', extends: base });\n")

	p, components, _ := testPipeline(t, root)

	result, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, transform.Component, result.Classification)
	assert.Contains(t, result.Code, transform.ReloadMarker)

	info, ok := components.Get("UserProfile")
	require.True(t, ok)
	assert.Equal(t, path, info.FilePath)
	assert.Equal(t, ModulePrefix+"src/components/user-profile.js", info.ModulePath)
	assert.Equal(t, result.ContentHash, info.ContentHash)
}

func TestProcessFilePassThrough(t *testing.T) {
	root := t.TempDir()
	source := "import vue from 'vue';\nexport const x = 1;\n"
	path := writeSource(t, root, "src/lib.js", source)

	p, _, _ := testPipeline(t, root)

	result, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.True(t, result.PassThrough)
	assert.Equal(t, source, result.Code)
}

func TestProcessFileReusesParsedModules(t *testing.T) {
	root := t.TempDir()
	path := writeSource(t, root, "src/app.js",
		"import util from './util.js';\nexport const run = () => util();\n")

	p, _, asts := testPipeline(t, root)

	_, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	_, err = p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	stats := asts.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestProcessFileOutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	path := writeSource(t, other, "escape.js", "export const x = 1;\n")

	p, _, _ := testPipeline(t, root)

	_, err := p.ProcessFile(context.Background(), path)
	assert.Error(t, err)
}

func TestModulePathRoundTrip(t *testing.T) {
	root := t.TempDir()
	p, _, _ := testPipeline(t, root)

	source := filepath.Join(root, "src", "app.js")
	modulePath, err := p.ModulePath(source)
	require.NoError(t, err)
	assert.Equal(t, ModulePrefix+"src/app.js", modulePath)

	back, err := p.FilePath(modulePath)
	require.NoError(t, err)
	assert.Equal(t, source, back)

	_, err = p.FilePath(ModulePrefix + "../secrets.txt")
	assert.Error(t, err)

	_, err = p.FilePath("/elsewhere/app.js")
	assert.Error(t, err)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	good := writeSource(t, root, "src/good.js",
		"import util from './util.js';\nexport const run = () => util();\n")
	bad := writeSource(t, root, "src/bad.js", "import { from\n")
	missing := filepath.Join(root, "src", "missing.js")

	p, _, _ := testPipeline(t, root)

	items := p.ProcessBatch(context.Background(), []string{good, bad, missing})
	require.Len(t, items, 3)

	byPath := make(map[string]BatchItem, len(items))
	for _, item := range items {
		byPath[item.Path] = item
	}

	assert.NoError(t, byPath[good].Err)
	assert.NotNil(t, byPath[good].Result)
	assert.Error(t, byPath[bad].Err)
	assert.Error(t, byPath[missing].Err)
}

func TestEventFor(t *testing.T) {
	root := t.TempDir()
	p, _, _ := testPipeline(t, root)

	plain := &Result{Name: "Util", ModulePath: "/modules/src/util.js", Classification: transform.Plain}
	component := &Result{Name: "Button", Classification: transform.Component}

	tests := []struct {
		name     string
		change   watcher.ChangeEvent
		result   *Result
		expected protocol.EventKind
	}{
		{"plain modification is patchable", watcher.ChangeEvent{Type: watcher.EventTypeModified}, plain, protocol.KindComponentUpdate},
		{"component modification reloads", watcher.ChangeEvent{Type: watcher.EventTypeModified}, component, protocol.KindFullReload},
		{"deletion always reloads", watcher.ChangeEvent{Type: watcher.EventTypeDeleted}, plain, protocol.KindFullReload},
		{"rename always reloads", watcher.ChangeEvent{Type: watcher.EventTypeRenamed}, plain, protocol.KindFullReload},
		{"failed processing reloads", watcher.ChangeEvent{Type: watcher.EventTypeModified}, nil, protocol.KindFullReload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := p.EventFor(tt.change, tt.result)
			assert.Equal(t, tt.expected, event.Kind)
			if tt.expected == protocol.KindComponentUpdate {
				assert.Equal(t, "Util", event.ComponentName)
				assert.Equal(t, "/modules/src/util.js", event.ModulePath)
			}
		})
	}
}
