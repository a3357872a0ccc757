// Command relay runs the termchat relay server: a WebSocket-based store-
// and-forward hub for peers that cannot establish a direct QUIC
// connection. Grounded on server/main.go's flag-based bootstrap and
// graceful-shutdown shape.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/labstack/echo/v4"

	"termchat/internal/relay"
)

func main() {
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:]) {
			return
		}
	}

	addr := flag.String("addr", ":8443", "HTTP/WebSocket listen address")
	maxOfflineQueue := flag.Int("max-offline-queue", relay.DefaultMaxOfflineQueue, "maximum queued messages per offline peer")
	maxRooms := flag.Int("max-rooms", relay.DefaultMaxRooms, "maximum registered rooms")
	flag.Parse()

	cfg := relay.DefaultConfig()
	cfg.MaxOfflineQueue = *maxOfflineQueue
	cfg.MaxRooms = *maxRooms

	srv := relay.NewServer(cfg)

	e := echo.New()
	e.HideBanner = true
	srv.Register(e, *addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[relay] shutting down...")
		srv.Shutdown()
		cancel()
		e.Close()
	}()

	log.Printf("[relay] listening on %s", *addr)
	if err := e.Start(*addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[relay] %v", err)
	}
	<-ctx.Done()
}
