package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

// StreamService serves normalized activity streams over HTTP. Each request
// names a source, the fetch collaborator retrieves the raw payload, the
// source adapter normalizes it, and the requested codec renders the result.
type StreamService struct {
	Config   Config
	Server   http.Server
	router   *mux.Router
	registry *source.Registry
	fetchers map[string]Fetcher
}

// NewService wires the registry and per-source fetchers into an http server.
func NewService(cfg Config, registry *source.Registry) *StreamService {
	svc := &StreamService{
		Config:   cfg,
		router:   mux.NewRouter(),
		registry: registry,
		fetchers: make(map[string]Fetcher),
	}
	for _, name := range registry.Names() {
		svc.fetchers[name] = NewHTTPFetcher(cfg.Sources[name].Token)
	}
	svc.addHandlers()

	svc.Server = http.Server{
		Handler:      svc.router,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}
	return svc
}

func (s *StreamService) addHandlers() {
	s.router.HandleFunc("/", homeHandler).Methods("GET")
	s.router.HandleFunc("/{source}/{userID}", s.handleActor).Methods("GET")
	s.router.HandleFunc("/{source}/{userID}/{groupID}", s.handleActivities).Methods("GET")
	s.router.HandleFunc("/{source}/{userID}/{groupID}/{appID}", s.handleActivities).Methods("GET")
	s.router.HandleFunc("/{source}/{userID}/{groupID}/{appID}/{activityID}", s.handleActivities).Methods("GET")
}

// Close anything related to the service before exiting
func (s *StreamService) Close() {
	telemetry.LogCounters()
}

func (s *StreamService) ListenAndServe() error {
	if s.Config.Server.useTLS() {
		telemetry.Log("tls listener starting on port %d", s.Config.Server.Port)
		return s.Server.ListenAndServeTLS(s.Config.Server.Certificate, s.Config.Server.PrivateKey)
	}
	telemetry.Log("http listener starting on port %d", s.Config.Server.Port)
	return s.Server.ListenAndServe()
}

// lookupSource resolves the {source} path segment against the registry.
func (s *StreamService) lookupSource(name string) (source.Source, Fetcher, error) {
	src, ok := s.registry.Lookup(name)
	if !ok {
		return nil, nil, source.NewNotFoundError(
			fmt.Sprintf("unknown source %q, have %s", name, strings.Join(s.registry.Names(), ", ")))
	}
	return src, s.fetchers[src.Name()], nil
}

func homeHandler(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "homeHandler")
	telemetry.Increment("home_requests", 1)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<html><title>granary</title>
<body>
<p>This is <a href="https://github.com/sarajaksa/granary">granary</a>,
a normalization proxy that fetches social network activity and serves it as
JSON, Atom, RSS or microformats2.</p>
</body>
</html>`)
}
