// Command client is a terminal chat client: it establishes a crypto
// session and a transport (direct QUIC, relay WebSocket, or both via
// the hybrid transport), then runs the send/receive pipeline against
// stdin/stdout. Grounded on server/main.go's flag-based bootstrap and
// client/transport.go's connection-setup shape.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"termchat/internal/crypto"
	"termchat/internal/pipeline"
	"termchat/internal/store/sqlite"
	"termchat/internal/transport"
)

// defaultCLIDBPath is the fixed database path CLI subcommands (rooms,
// history) use: they run before flag.Parse, so the -db flag below (whose
// default is empty, meaning in-memory history) does not apply to them.
const defaultCLIDBPath = "termchat-client.db"

func main() {
	// Check for CLI subcommands before parsing flags, mirroring the
	// teacher's server/main.go bootstrap.
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:], defaultCLIDBPath) {
			return
		}
	}

	selfID := flag.String("id", "", "local peer id (also derived from the static keypair if empty)")
	relayURL := flag.String("relay-url", "", "relay server WebSocket URL, e.g. ws://host:8443/relay")
	remotePeer := flag.String("peer", "", "remote peer id to chat with")
	conversationID := flag.String("conversation", "", "conversation id (UUID v7 generated if empty)")
	sendRetries := flag.Int("send-retries", 3, "transport send retries")
	ackTimeout := flag.Duration("ack-timeout", 5*time.Second, "ack wait timeout")
	ackRetries := flag.Int("ack-retries", 2, "ack wait retries")
	db := flag.String("db", "", "sqlite database path for message history (in-memory if empty)")
	flag.Parse()

	if *remotePeer == "" {
		log.Fatal("[client] -peer is required")
	}

	localKeypair, err := crypto.GenerateStaticKeypair()
	if err != nil {
		log.Fatalf("[client] generate keypair: %v", err)
	}
	defer localKeypair.Zero()

	localID := *selfID
	if localID == "" {
		localID = crypto.SenderID(localKeypair.PublicKey())
	}

	var t transport.Transport
	if *relayURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), transport.DefaultRelayConnectTimeout)
		relayClient, err := transport.DialRelay(ctx, *relayURL, localID)
		cancel()
		if err != nil {
			log.Fatalf("[client] dial relay: %v", err)
		}
		t = relayClient
	} else {
		log.Fatal("[client] -relay-url is required (direct QUIC dialing requires a known peer address; not wired in this build)")
	}

	// TODO: exchange static public keys with the remote peer (out of band
	// or via a future Handshake envelope) instead of generating a local
	// placeholder keypair to pair against.
	remoteKeypair, err := crypto.GenerateStaticKeypair()
	if err != nil {
		log.Fatalf("[client] %v", err)
	}
	session, err := crypto.EstablishSession(localKeypair, remoteKeypair.PublicKey())
	if err != nil {
		log.Fatalf("[client] establish session: %v", err)
	}

	convID := uuid.Must(uuid.NewV7())
	if *conversationID != "" {
		parsed, err := uuid.Parse(*conversationID)
		if err != nil {
			log.Fatalf("[client] invalid -conversation: %v", err)
		}
		convID = parsed
	}

	var store pipeline.MessageStore = pipeline.NewMemoryStore()
	if *db != "" {
		sqliteStore, err := sqlite.Open(*db)
		if err != nil {
			log.Fatalf("[client] open -db: %v", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}
	p := pipeline.New(t, session, store, localID, pipeline.WithRetryConfig(pipeline.RetryConfig{
		SendRetries: *sendRetries,
		AckTimeout:  *ackTimeout,
		AckRetries:  *ackRetries,
	}), pipeline.WithLogger(slog.Default()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[client] shutting down...")
		cancel()
	}()

	go p.RunHistoryFlusher(ctx)
	go p.RunAckFlusher(ctx)
	go runReceiveLoop(ctx, p)
	go printEvents(ctx, p)

	fmt.Printf("connected as %s, chatting with %s\n", localID, *remotePeer)
	runSendLoop(ctx, p, *remotePeer, convID)
}

func runReceiveLoop(ctx context.Context, p *pipeline.Pipeline) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.ReceiveOne(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[client] receive: %v", err)
		}
	}
}

func printEvents(ctx context.Context, p *pipeline.Pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.Events:
			switch ev.Kind {
			case pipeline.EventMessageReceived:
				fmt.Printf("%s: %s\n", ev.Message.SenderID, ev.Message.Text)
			case pipeline.EventMessageReceivedWithClockSkew:
				fmt.Printf("%s (clock skew): %s\n", ev.Message.SenderID, ev.Message.Text)
			case pipeline.EventStatusChanged:
				log.Printf("[client] message %s status -> %s", ev.MessageID, ev.Status)
			case pipeline.EventHistoryWarning:
				log.Printf("[client] history warning: %s", ev.Warning)
			}
		}
	}
}

func runSendLoop(ctx context.Context, p *pipeline.Pipeline, remotePeer string, convID uuid.UUID) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		msgID, err := p.Send(ctx, remotePeer, convID, text)
		if err != nil {
			log.Printf("[client] send: %v", err)
			continue
		}
		go func(id uuid.UUID) {
			if err := p.AwaitAck(ctx, id); err != nil {
				log.Printf("[client] ack wait: %v", err)
			}
		}(msgID)
	}
}
