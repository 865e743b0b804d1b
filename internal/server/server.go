// Package server hosts the dev server: it serves transformed modules
// and resolved dependencies over HTTP and pushes update events to
// connected clients over a websocket hub.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/reheat-dev/reheat/internal/cache"
	"github.com/reheat-dev/reheat/internal/config"
	"github.com/reheat-dev/reheat/internal/jsparse"
	"github.com/reheat-dev/reheat/internal/logging"
	"github.com/reheat-dev/reheat/internal/pipeline"
	"github.com/reheat-dev/reheat/internal/protocol"
	"github.com/reheat-dev/reheat/internal/registry"
	"github.com/reheat-dev/reheat/internal/resolver"
	"github.com/reheat-dev/reheat/internal/transform"
	"github.com/reheat-dev/reheat/internal/version"
	"github.com/reheat-dev/reheat/internal/watcher"
)

// Client represents a connected update channel
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *DevServer
}

// DevServer serves the project with hot updates
type DevServer struct {
	config        *config.Config
	httpServer    *http.Server
	serverMutex   sync.RWMutex
	clients       map[*websocket.Conn]*Client
	clientsMutex  sync.RWMutex
	broadcast     chan []byte
	register      chan *Client
	unregister    chan *websocket.Conn
	registry      *registry.ComponentRegistry
	watcher       *watcher.FileWatcher
	pipeline      *pipeline.Pipeline
	resolver      *resolver.Resolver
	contents      *cache.ContentCache
	asts          *cache.ASTCache
	bootstrap     []byte
	logger        logging.Logger
	lastError     string
	lastErrorMu   sync.RWMutex
	shutdownOnce  sync.Once
	isShutdown    bool
	shutdownMutex sync.RWMutex
}

// New creates a dev server and wires the processing pipeline.
func New(cfg *config.Config, logger logging.Logger) (*DevServer, error) {
	logger = logging.OrNop(logger)

	components := registry.NewComponentRegistry()

	fileWatcher, err := watcher.NewFileWatcher(cfg.Server.Root, cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	contents := cache.NewContentCache(cfg.Cache.MaxEntries, cfg.Cache.TTL, cfg.Cache.ContentSizeCeiling)
	asts := cache.NewASTCache(cfg.Cache.MaxEntries, cfg.Cache.MaxMemory, cfg.Cache.TTL, logger)

	parser := jsparse.NewParser(jsparse.Options{
		ComponentCalls:  cfg.Transform.ComponentCalls,
		MountCalls:      cfg.Transform.MountCalls,
		ResolutionCalls: cfg.Transform.ResolutionCalls,
	})
	transformer := transform.NewTransformer(transform.Options{
		CompiledExt: cfg.Transform.CompiledExt,
	})

	pipe := pipeline.New(
		pipeline.Options{Root: cfg.Server.Root},
		contents, asts, parser, transformer, components, logger,
	)

	deps := resolver.NewResolver(cfg.Resolver.Root, cfg.Resolver.TTL, logger)

	return &DevServer{
		config:     cfg,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		registry:   components,
		watcher:    fileWatcher,
		pipeline:   pipe,
		resolver:   deps,
		contents:   contents,
		asts:       asts,
		bootstrap:  renderBootstrap(cfg.Client),
		logger:     logger.WithComponent("server"),
	}, nil
}

// Start starts the dev server and blocks until it stops.
func (s *DevServer) Start(ctx context.Context) error {
	s.setupFileWatcher(ctx)

	go s.runHub(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/reheat", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc(bootstrapPath, s.handleBootstrap)
	mux.HandleFunc(pipeline.ModulePrefix, s.handleModule)
	mux.HandleFunc(resolver.ServePrefix, s.handleDependency)
	mux.HandleFunc("/api/components", s.handleComponents)
	mux.HandleFunc("/api/cache", s.handleCache)
	mux.HandleFunc("/", s.handleIndex)

	handler := s.addMiddleware(mux)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "dev server listening", "addr", addr, "root", s.config.Server.Root)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (s *DevServer) setupFileWatcher(ctx context.Context) {
	globFilter, err := watcher.GlobFilter(s.config.Watch.Include, s.config.Watch.Exclude)
	if err != nil {
		s.logger.Warn(ctx, err, "invalid watch patterns, watching all source files")
	} else {
		s.watcher.AddFilter(globFilter)
	}
	s.watcher.AddFilter(watcher.SourceFilter)
	s.watcher.AddFilter(watcher.NoNodeModulesFilter)
	s.watcher.AddFilter(watcher.NoGitFilter)

	s.watcher.AddHandler(func(events []watcher.ChangeEvent) error {
		return s.handleFileChange(ctx, events)
	})

	for _, path := range s.config.Watch.Paths {
		if err := s.watcher.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "failed to watch path", "path", path)
		}
	}

	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Error(ctx, err, "failed to start file watcher")
	}
}

// handleFileChange reprocesses a debounced change batch and emits one
// update event per file. A file that fails to process surfaces an error
// event instead of blocking the rest of the batch.
func (s *DevServer) handleFileChange(ctx context.Context, events []watcher.ChangeEvent) error {
	changes := make(map[string]watcher.ChangeEvent, len(events))
	paths := make([]string, 0, len(events))
	for _, event := range events {
		s.logger.Info(ctx, "file changed", "path", event.Path, "type", event.Type.String())
		s.pipeline.Invalidate(event.Path)
		changes[event.Path] = event
		if event.Type != watcher.EventTypeDeleted && event.Type != watcher.EventTypeRenamed {
			paths = append(paths, event.Path)
		} else {
			s.Broadcast(protocol.FullReload())
		}
	}

	for _, item := range s.pipeline.ProcessBatch(ctx, paths) {
		if item.Err != nil {
			s.setLastError(item.Err.Error())
			s.Broadcast(protocol.Error(item.Err.Error()))
			continue
		}
		s.clearLastError()
		s.Broadcast(s.pipeline.EventFor(changes[item.Path], item.Result))
	}

	return nil
}

// Broadcast pushes one protocol event to every connected client.
func (s *DevServer) Broadcast(event protocol.Event) {
	data, err := protocol.Encode(event)
	if err != nil {
		s.logger.Error(context.Background(), err, "failed to encode update event")
		return
	}

	select {
	case s.broadcast <- data:
	default:
		s.logger.Warn(context.Background(), nil, "broadcast channel full, dropping event",
			"kind", string(event.Kind))
	}
}

func (s *DevServer) setLastError(message string) {
	s.lastErrorMu.Lock()
	s.lastError = message
	s.lastErrorMu.Unlock()
}

func (s *DevServer) clearLastError() {
	s.setLastError("")
}

// LastError returns the most recent processing error, if any.
func (s *DevServer) LastError() string {
	s.lastErrorMu.RLock()
	defer s.lastErrorMu.RUnlock()
	return s.lastError
}

func (s *DevServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// isAllowedOrigin checks if the origin is in the allowed origins list
func (s *DevServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

// handleHealth returns the server health status for health checks
func (s *DevServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.clientsMutex.RLock()
	clientCount := len(s.clients)
	s.clientsMutex.RUnlock()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"checks": map[string]interface{}{
			"server":     map[string]interface{}{"status": "healthy"},
			"components": map[string]interface{}{"status": "healthy", "count": s.registry.Count()},
			"clients":    map[string]interface{}{"status": "healthy", "count": clientCount},
		},
	}
	if lastError := s.LastError(); lastError != "" {
		health["status"] = "degraded"
		health["last_error"] = lastError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "failed to encode health response")
	}
}

// handleComponents lists discovered components.
func (s *DevServer) handleComponents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	components := s.registry.GetAll()
	list := make([]map[string]interface{}, 0, len(components))
	for _, c := range components {
		list = append(list, map[string]interface{}{
			"name":           c.Name,
			"modulePath":     c.ModulePath,
			"classification": c.Classification.String(),
			"contentHash":    c.ContentHash,
			"lastModified":   c.LastMod,
		})
	}

	response := map[string]interface{}{
		"components": list,
		"count":      len(list),
		"timestamp":  time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCache exposes cache statistics and allows a manual flush.
func (s *DevServer) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		contentStats := s.contents.Stats()
		astStats := s.asts.Stats()

		response := map[string]interface{}{
			"content": map[string]interface{}{
				"hits":      contentStats.Hits,
				"misses":    contentStats.Misses,
				"evictions": contentStats.Evictions,
				"bypasses":  contentStats.Bypasses,
				"entries":   contentStats.Entries,
			},
			"syntax": map[string]interface{}{
				"hits":      astStats.Hits,
				"misses":    astStats.Misses,
				"evictions": astStats.Evictions,
				"entries":   astStats.Entries,
				"memory":    astStats.Memory,
			},
			"timestamp": time.Now().Unix(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	case http.MethodDelete:
		s.contents.Clear()
		s.asts.Clear()
		s.resolver.Clear()

		response := map[string]interface{}{
			"message":   "Caches cleared",
			"timestamp": time.Now().Unix(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *DevServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down dev server")

		s.shutdownMutex.Lock()
		s.isShutdown = true
		s.shutdownMutex.Unlock()

		if s.watcher != nil {
			s.watcher.Stop()
		}

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
