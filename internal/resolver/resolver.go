// Package resolver maps bare third-party dependency names to servable
// paths. Results are cached with a short TTL in a cache separate from the
// content/AST caches, and concurrent identical lookups are deduplicated
// through a single in-flight request.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reheat-dev/reheat/internal/errors"
	"github.com/reheat-dev/reheat/internal/logging"
)

// ServePrefix is the URL prefix under which resolved dependencies are
// served.
const ServePrefix = "/@modules/"

// ResolvedDependency is one cached resolution.
type ResolvedDependency struct {
	Name         string
	ResolvedPath string
	Timestamp    time.Time
}

// packageManifest is the subset of package.json the resolver reads.
type packageManifest struct {
	Module string `json:"module"`
	JSNext string `json:"jsnext:main"`
	Main   string `json:"main"`
}

// Resolver resolves dependency names against a node_modules tree.
type Resolver struct {
	root string
	ttl  time.Duration

	mutex   sync.Mutex
	entries map[string]ResolvedDependency

	group  singleflight.Group
	logger logging.Logger
}

// NewResolver creates a resolver rooted at the directory containing
// node_modules.
func NewResolver(root string, ttl time.Duration, logger logging.Logger) *Resolver {
	return &Resolver{
		root:    root,
		ttl:     ttl,
		entries: make(map[string]ResolvedDependency),
		logger:  logging.OrNop(logger).WithComponent("resolver"),
	}
}

// Resolve returns the servable path for a bare dependency name. Concurrent
// identical lookups share one in-flight resolution.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
		return "", errors.NewResolveError(name, "not a bare dependency name", nil)
	}

	r.mutex.Lock()
	if dep, ok := r.entries[name]; ok && time.Since(dep.Timestamp) <= r.ttl {
		r.mutex.Unlock()
		return dep.ResolvedPath, nil
	}
	r.mutex.Unlock()

	result, err, _ := r.group.Do(name, func() (any, error) {
		resolved, err := r.lookup(name)
		if err != nil {
			return "", err
		}

		r.mutex.Lock()
		r.entries[name] = ResolvedDependency{
			Name:         name,
			ResolvedPath: resolved,
			Timestamp:    time.Now(),
		}
		r.mutex.Unlock()

		r.logger.Debug(ctx, "dependency resolved", "name", name, "path", resolved)
		return resolved, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

// lookup reads the package manifest and picks its module entry point,
// preferring ESM fields over main.
func (r *Resolver) lookup(name string) (string, error) {
	pkgDir := filepath.Join(r.root, "node_modules", filepath.FromSlash(name))
	manifestPath := filepath.Join(pkgDir, "package.json")

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", errors.NewResolveError(name, "package manifest not found", err)
	}

	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", errors.NewResolveError(name, "invalid package manifest", err)
	}

	entry := manifest.Module
	if entry == "" {
		entry = manifest.JSNext
	}
	if entry == "" {
		entry = manifest.Main
	}
	if entry == "" {
		entry = "index.js"
	}

	if _, err := os.Stat(filepath.Join(pkgDir, filepath.FromSlash(entry))); err != nil {
		return "", errors.NewResolveError(name, fmt.Sprintf("entry point %q missing", entry), err)
	}

	return ServePrefix + path.Join(name, entry), nil
}

// Invalidate removes the cached resolution for name.
func (r *Resolver) Invalidate(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.entries, name)
}

// Clear removes all cached resolutions.
func (r *Resolver) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = make(map[string]ResolvedDependency)
}

// FilePath translates a servable path produced by Resolve back into the
// on-disk file it serves.
func (r *Resolver) FilePath(servable string) (string, bool) {
	if !strings.HasPrefix(servable, ServePrefix) {
		return "", false
	}
	rel := strings.TrimPrefix(servable, ServePrefix)
	if rel == "" || strings.Contains(rel, "..") {
		return "", false
	}
	return filepath.Join(r.root, "node_modules", filepath.FromSlash(rel)), true
}
