package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/reheat-dev/reheat/internal/config"
)

// bootstrapPath is where the client bootstrap module is served.
const bootstrapPath = "/@reheat/hooks.js"

// bootstrapTemplate is the module injected into served pages, rendered
// once with the configured retry settings. It creates the hot-update
// registry consumed by transformed module initializers and opens the
// update channel with capped reconnection backoff, mirroring the
// connection state machine in the client package. The registry literal
// must stay identical to the one in the transform emitter: whichever
// script evaluates first wins the || and defines it for both.
const bootstrapTemplate = `const registry = globalThis.__reheat__ = globalThis.__reheat__ || {
  modules: Object.create(null),
  async reload() {
    for (const key of Object.keys(this.modules)) {
      await this.modules[key]();
    }
  },
  async reloadPath(path) {
    const loader = this.modules[path];
    if (!loader) return false;
    await loader();
    return true;
  },
};

let attempts = 0;
const maxRetries = %d;
const baseDelay = %d;
const maxDelay = %d;
let exhausted = false;

function notice(message) {
  console.warn("[reheat] " + message);
}

function connect() {
  const proto = location.protocol === "https:" ? "wss:" : "ws:";
  const socket = new WebSocket(proto + "//" + location.host + "/reheat");

  socket.addEventListener("open", () => {
    attempts = 0;
  });

  socket.addEventListener("message", async ({ data }) => {
    const event = JSON.parse(data);
    switch (event.kind) {
      case "full-reload":
        location.reload();
        break;
      case "component-update":
        try {
          if (!(await registry.reloadPath(event.modulePath))) {
            await registry.reload();
          }
        } catch (err) {
          notice("update failed, reloading: " + err.message);
          location.reload();
        }
        break;
      case "library-update": {
        const mod = await import(event.libraryPath + "?t=" + Date.now());
        const installed = event.globalName && mod.default && mod.default.install
          ? (globalThis[event.globalName] = mod.default, true)
          : false;
        if (!installed) location.reload();
        break;
      }
      case "error":
        notice(event.message);
        break;
    }
  });

  socket.addEventListener("close", () => {
    attempts += 1;
    if (attempts > maxRetries) {
      if (!exhausted) {
        exhausted = true;
        notice("lost connection to the dev server; restart it and refresh");
      }
      return;
    }
    const delay = Math.min(baseDelay * 2 ** (attempts - 1), maxDelay);
    setTimeout(connect, delay);
  });
}

connect();
`

func renderBootstrap(cfg config.ClientConfig) []byte {
	return []byte(fmt.Sprintf(bootstrapTemplate,
		cfg.MaxRetries,
		cfg.BaseDelay.Milliseconds(),
		cfg.MaxDelay.Milliseconds(),
	))
}

func (s *DevServer) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(s.bootstrap)
}

// handleModule serves one transformed project module.
func (s *DevServer) handleModule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, err := s.pipeline.FilePath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.pipeline.ProcessFile(r.Context(), path)
	if err != nil {
		if os.IsNotExist(unwrapAll(err)) {
			http.NotFound(w, r)
			return
		}
		s.logger.Warn(r.Context(), err, "module processing failed", "path", path)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(result.Code))
}

// handleDependency serves resolved bare-import dependencies. A request
// for a package name resolves its entry file and redirects; a request
// for a resolved file serves it directly.
func (s *DevServer) handleDependency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if path, ok := s.resolver.FilePath(r.URL.Path); ok {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, path)
			return
		}
	}

	name := strings.TrimPrefix(r.URL.Path, "/@modules/")
	resolved, err := s.resolver.Resolve(r.Context(), name)
	if err != nil {
		s.logger.Warn(r.Context(), err, "dependency resolution failed", "name", name)
		http.NotFound(w, r)
		return
	}
	if resolved == r.URL.Path {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, resolved, http.StatusFound)
}

// handleIndex serves the project's static files, injecting the bootstrap
// module into every HTML page.
func (s *DevServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/")
	if rel == "" {
		rel = "index.html"
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.config.Server.Root, clean)

	if filepath.Ext(path) != ".html" {
		http.ServeFile(w, r, path)
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	injected, err := InjectScript(content, bootstrapPath)
	if err != nil {
		s.logger.Warn(r.Context(), err, "script injection failed, serving page unmodified", "path", path)
		injected = content
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(injected)
}

func unwrapAll(err error) error {
	for {
		unwrapped, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		next := unwrapped.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}
