// Command broker runs the teleoperation relay's central broker: it
// binds one TCP endpoint, upgrades inbound sockets to websockets, and
// fans out Control/LatencyRequest/LatencyResponse frames between
// identified pilots and vehicles sharing a group id.
//
// Keeps the shape of server/main.go but drops what this relay doesn't
// need: no store, no REST API, no TURN/ICE wiring.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/SilentByte/aviator5g/internal/broker"
	"github.com/SilentByte/aviator5g/internal/registry"
)

func main() {
	host := flag.String("host", "localhost", "listen host")
	port := flag.Int("port", 9000, "listen port")
	useTLS := flag.Bool("tls", false, "serve wss:// with a self-signed certificate")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	metricsInterval := flag.Duration("metrics-interval", 5*time.Second, "connection-count metrics log interval")
	flag.Parse()

	addr := net.JoinHostPort(*host, fmt.Sprintf("%d", *port))

	var tlsConfig *tls.Config
	if *useTLS {
		cfg, fingerprint, err := broker.GenerateTLSConfig(*certValidity, *host)
		if err != nil {
			log.Fatalf("[broker] %v", err)
		}
		log.Printf("[broker] TLS certificate fingerprint: %s", fingerprint)
		tlsConfig = cfg
	}

	reg := registry.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[broker] shutting down...")
		cancel()
	}()

	go broker.RunMetrics(ctx, reg, *metricsInterval)

	srv := broker.NewServer(addr, tlsConfig, reg)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("[broker] %v", err)
	}
}
