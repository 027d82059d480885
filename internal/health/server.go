package health

import (
	"context"
	"fmt"
	"log"
	"net/http"
)

// Server provides HTTP health endpoints for Kubernetes probes.
type Server struct {
	status *Status
	server *http.Server
	port   int
}

// NewServer creates a probe server backed by the given status.
func NewServer(status *Status, port int) *Server {
	return &Server{status: status, port: port}
}

// Start begins serving health endpoints. Blocks until the context is
// canceled or the server fails.
func (h *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// /healthz - liveness probe: checks the Slack connection
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if h.status.IsConnected() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("disconnected"))
		}
	})

	// /readyz - readiness probe: the process is ready once it is serving.
	// Even if temporarily disconnected, it can still queue events.
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	h.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", h.port),
		Handler: mux,
	}

	log.Printf("health: starting health server on :%d", h.port)

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("health: shutting down health server")
		return h.server.Shutdown(context.Background())
	case err := <-errCh:
		return fmt.Errorf("health server error: %w", err)
	}
}
