package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/SilentByte/aviator5g/internal/registry"
)

// Server is the broker acceptor: it binds one TCP endpoint, performs
// the transport handshake for each inbound socket, and hands each
// accepted connection to a Handler. Grounded on server/server.go,
// trimmed to the single /ws route this relay needs (no REST surface,
// no static index page).
type Server struct {
	addr      string
	tlsConfig *tls.Config
	handler   *Handler
}

// NewServer constructs a Server bound to addr (host:port). tlsConfig may
// be nil, in which case the server speaks plain ws://.
func NewServer(addr string, tlsConfig *tls.Config, reg *registry.Registry) *Server {
	return &Server{
		addr:      addr,
		tlsConfig: tlsConfig,
		handler:   NewHandler(reg),
	}
}

// Run binds addr and serves until ctx is canceled, at which point it
// shuts the HTTP server down with a bounded grace period; upgraded
// websocket connections are not waited for. A bind failure is returned
// immediately without blocking.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.handler)

	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		TLSConfig:         s.tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[broker] shutdown: %v", err)
		}
	}()

	log.Printf("[broker] listening on %s", s.addr)

	var serveErr error
	if s.tlsConfig != nil {
		serveErr = httpSrv.ServeTLS(ln, "", "")
	} else {
		serveErr = httpSrv.Serve(ln)
	}

	if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
		return nil
	}
	return serveErr
}
