package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
	assert.Equal(t, "unknown", EventType(42).String())
}

func TestSourceFilter(t *testing.T) {
	assert.True(t, SourceFilter("src/app.js"))
	assert.True(t, SourceFilter("src/app.tsx"))
	assert.True(t, SourceFilter("src/widget.vue"))
	assert.True(t, SourceFilter("index.html"))
	assert.False(t, SourceFilter("README.md"))
	assert.False(t, SourceFilter("src/app.go"))
}

func TestNoNodeModulesFilter(t *testing.T) {
	sep := string(filepath.Separator)
	assert.False(t, NoNodeModulesFilter("node_modules"+sep+"lodash"+sep+"index.js"))
	assert.False(t, NoNodeModulesFilter("src"+sep+"node_modules"+sep+"x.js"))
	assert.True(t, NoNodeModulesFilter("src"+sep+"app.js"))
}

func TestNoGitFilter(t *testing.T) {
	sep := string(filepath.Separator)
	assert.False(t, NoGitFilter(".git"+sep+"HEAD"))
	assert.False(t, NoGitFilter("src"+sep+".git"+sep+"config"))
	assert.True(t, NoGitFilter("src"+sep+"app.js"))
	assert.True(t, NoGitFilter(".github"+sep+"workflows"+sep+"ci.yml"))
}

func TestGlobFilter(t *testing.T) {
	t.Run("include and exclude", func(t *testing.T) {
		filter, err := GlobFilter(
			[]string{"src/**.js", "src/**.vue"},
			[]string{"src/vendor/**"},
		)
		require.NoError(t, err)

		assert.True(t, filter("src/components/button.js"))
		assert.True(t, filter("src/app.vue"))
		assert.False(t, filter("src/vendor/lib.js"))
		assert.False(t, filter("docs/readme.md"))
	})

	t.Run("no includes means everything passes", func(t *testing.T) {
		filter, err := GlobFilter(nil, []string{"**.tmp"})
		require.NoError(t, err)

		assert.True(t, filter("src/app.js"))
		assert.False(t, filter("src/app.tmp"))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := GlobFilter([]string{"[unclosed"}, nil)
		assert.Error(t, err)
	})
}

func TestValidatePathRejectsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	fw, err := NewFileWatcher(root, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	clean, err := fw.validatePath(filepath.Join(root, "src"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src"), clean)

	err = fw.AddPath("/etc")
	assert.Error(t, err)

	err = fw.AddPath(filepath.Join(root, "..", "elsewhere"))
	assert.Error(t, err)
}

func TestDebouncerBatchesAndDeduplicates(t *testing.T) {
	d := &Debouncer{
		delay:   20 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	// Three rapid events, two for the same path.
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "a.js"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "b.js"})
	d.addEvent(ChangeEvent{Type: EventTypeDeleted, Path: "a.js"})

	select {
	case batch := <-d.output:
		require.Len(t, batch, 2)
		byPath := make(map[string]ChangeEvent, len(batch))
		for _, e := range batch {
			byPath[e.Path] = e
		}
		assert.Equal(t, EventTypeDeleted, byPath["a.js"].Type, "latest event per path wins")
		assert.Equal(t, EventTypeModified, byPath["b.js"].Type)
	case <-time.After(time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestDebouncerResetsTimerOnNewEvents(t *testing.T) {
	d := &Debouncer{
		delay:   50 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	d.addEvent(ChangeEvent{Path: "a.js"})
	time.Sleep(25 * time.Millisecond)
	d.addEvent(ChangeEvent{Path: "b.js"})

	select {
	case <-d.output:
		t.Fatal("flushed before the quiet period elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case batch := <-d.output:
		assert.Len(t, batch, 2)
	case <-time.After(time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestFileWatcherDeliversChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	fw, err := NewFileWatcher(root, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(SourceFilter)

	received := make(chan []ChangeEvent, 10)
	fw.AddHandler(func(events []ChangeEvent) error {
		received <- events
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))
	require.NoError(t, fw.AddRecursive(root))

	target := filepath.Join(root, "src", "app.js")
	require.NoError(t, os.WriteFile(target, []byte("export default {}"), 0o644))
	// Filtered extensions never reach the handler.
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "notes.md"), []byte("x"), 0o644))

	select {
	case events := <-received:
		require.NotEmpty(t, events)
		for _, e := range events {
			assert.Equal(t, target, e.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change events delivered")
	}
}
