package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"termchat/internal/relay"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "status":
		runStatus(args[1:])
		return true
	default:
		return false
	}
}

// runStatus queries a running relay's /status endpoint and prints its
// bind address, peer count, and room count.
func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8443", "relay base URL to query")
	fs.Parse(args)

	base := strings.TrimRight(*addr, "/")
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "[relay] status: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var report relay.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		fmt.Fprintf(os.Stderr, "[relay] status: decode response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("bind address: %s\n", report.BindAddr)
	fmt.Printf("peers online: %d\n", report.PeerCount)
	fmt.Printf("rooms registered: %d\n", report.RoomCount)
}
