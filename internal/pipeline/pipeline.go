// Package pipeline ties source reading, parsing, transformation, and
// component bookkeeping into the per-file processing flow the dev server
// runs on every request and every change batch.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/reheat-dev/reheat/internal/cache"
	"github.com/reheat-dev/reheat/internal/errors"
	"github.com/reheat-dev/reheat/internal/jsparse"
	"github.com/reheat-dev/reheat/internal/logging"
	"github.com/reheat-dev/reheat/internal/protocol"
	"github.com/reheat-dev/reheat/internal/registry"
	"github.com/reheat-dev/reheat/internal/transform"
	"github.com/reheat-dev/reheat/internal/watcher"
)

// ModulePrefix is the URL prefix under which transformed project modules
// are served.
const ModulePrefix = "/modules/"

// Result is the processed form of one source file.
type Result struct {
	Path           string
	ModulePath     string
	Name           string
	Code           string
	Classification transform.Classification
	ContentHash    string
	PassThrough    bool
}

// BatchItem pairs a path with its processing outcome; a failed file
// never blocks the rest of its batch.
type BatchItem struct {
	Path   string
	Result *Result
	Err    error
}

// Pipeline processes source files into servable module text.
type Pipeline struct {
	root        string
	contents    *cache.ContentCache
	asts        *cache.ASTCache
	parser      *jsparse.Parser
	transformer *transform.Transformer
	components  *registry.ComponentRegistry
	concurrency int
	logger      logging.Logger
}

// Options configures a Pipeline.
type Options struct {
	// Root is the source root; module paths are derived relative to it.
	Root string
	// Concurrency bounds parallel file processing in batches.
	Concurrency int
}

// New creates a Pipeline over the given caches and stages.
func New(
	opts Options,
	contents *cache.ContentCache,
	asts *cache.ASTCache,
	parser *jsparse.Parser,
	transformer *transform.Transformer,
	components *registry.ComponentRegistry,
	logger logging.Logger,
) *Pipeline {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{
		root:        opts.Root,
		contents:    contents,
		asts:        asts,
		parser:      parser,
		transformer: transformer,
		components:  components,
		concurrency: concurrency,
		logger:      logging.OrNop(logger).WithComponent("pipeline"),
	}
}

// ModulePath maps an absolute source path to the URL it is served under.
func (p *Pipeline) ModulePath(path string) (string, error) {
	rel, err := filepath.Rel(p.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.NewReadError(path, "file is outside the project root", err)
	}
	return ModulePrefix + filepath.ToSlash(rel), nil
}

// FilePath maps a served module URL back to the source file it came
// from, rejecting paths that escape the root.
func (p *Pipeline) FilePath(modulePath string) (string, error) {
	if !strings.HasPrefix(modulePath, ModulePrefix) {
		return "", errors.NewReadError(modulePath, "not a module path", nil)
	}
	rel := strings.TrimPrefix(modulePath, ModulePrefix)
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", errors.NewReadError(modulePath, "module path escapes the project root", nil)
	}
	return filepath.Join(p.root, clean), nil
}

// ProcessFile reads, parses, and transforms one source file. Content
// reads go through the content cache; parsed modules are reused from the
// syntax cache when the content hash matches.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*Result, error) {
	modulePath, err := p.ModulePath(path)
	if err != nil {
		return nil, err
	}

	content, err := p.contents.Read(path)
	if err != nil {
		return nil, err
	}

	mod, err := p.parsedModule(ctx, path, content)
	if err != nil {
		return nil, err
	}

	code, plan := p.transformer.Transform(content, mod)

	result := &Result{
		Path:           path,
		ModulePath:     modulePath,
		Name:           registry.DisplayName(path),
		Code:           code,
		Classification: plan.Classification,
		ContentHash:    fmt.Sprintf("%016x", xxhash.Sum64(content)),
		PassThrough:    plan.PassThrough,
	}

	if plan.Classification == transform.Component {
		p.components.Register(&registry.ComponentInfo{
			Name:           result.Name,
			FilePath:       path,
			ModulePath:     modulePath,
			Classification: plan.Classification,
			ContentHash:    result.ContentHash,
			LastMod:        time.Now(),
		})
	}

	return result, nil
}

func (p *Pipeline) parsedModule(ctx context.Context, path string, content []byte) (*jsparse.Module, error) {
	key := cache.Key(path, content, jsparse.KindModule)
	if cached, ok := p.asts.Get(key); ok {
		if mod, ok := cached.(*jsparse.Module); ok {
			return mod, nil
		}
	}

	mod, err := p.parser.Parse(path, content)
	if err != nil {
		return nil, err
	}
	p.asts.Put(ctx, key, mod)
	return mod, nil
}

// ProcessBatch processes paths concurrently. Each file's outcome is
// independent; one unparsable file is reported in its item while the
// rest of the batch proceeds.
func (p *Pipeline) ProcessBatch(ctx context.Context, paths []string) []BatchItem {
	items := make([]BatchItem, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			result, err := p.ProcessFile(ctx, path)
			items[i] = BatchItem{Path: path, Result: result, Err: err}
			if err != nil {
				p.logger.Warn(ctx, err, "file processing failed", "path", path)
			}
			return nil
		})
	}

	g.Wait()
	return items
}

// Invalidate drops the cached content for a changed or deleted file so
// the next request re-reads it.
func (p *Pipeline) Invalidate(path string) {
	p.contents.Invalidate(path)
}

// EventFor maps a processed change to the update event broadcast to
// clients. Only plain modules are patchable in place; components,
// initialization files, and core definition modules ripple too far and
// force a full reload.
func (p *Pipeline) EventFor(change watcher.ChangeEvent, result *Result) protocol.Event {
	if change.Type == watcher.EventTypeDeleted || change.Type == watcher.EventTypeRenamed {
		return protocol.FullReload()
	}
	if result == nil || !result.Classification.PatchEligible() {
		return protocol.FullReload()
	}
	return protocol.ComponentUpdate(result.Name, result.ModulePath, change.Type.String())
}
