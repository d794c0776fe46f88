package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
	"github.com/eldtechnologies/ironpulse/internal/protocol"
)

func main() {
	keyHex := flag.String("key", os.Getenv("INTEGRITY_KEY"), "Hex-encoded integrity key (default $INTEGRITY_KEY)")
	clientID := flag.String("client", "", "Client ID")
	command := flag.String("cmd", "", "Command, e.g. Check")
	payload := flag.String("payload", "", "Raw payload")
	channel := flag.String("channel", "", "Build a Store payload for this channel from the body")
	msgType := flag.String("type", "text", "Message type for -channel")
	bodyFile := flag.String("body", "", "File containing the message body for -channel (or use stdin)")
	flag.Parse()

	if *clientID == "" || *command == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -client <id> -cmd <command> [-payload <payload>] [-key <hex>]")
		fmt.Fprintln(os.Stderr, "       sign -client <id> -cmd Store -channel <name> [-type <type>] [-body <file>]")
		fmt.Fprintln(os.Stderr, "  Reads the Store body from stdin if -body not specified")
		os.Exit(1)
	}

	h, err := crypto.NewHasherFromHex(*keyHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid key: %v\n", err)
		os.Exit(1)
	}

	p := *payload
	if *channel != "" {
		var body []byte
		if *bodyFile != "" {
			body, err = os.ReadFile(*bodyFile)
		} else {
			body, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
			os.Exit(1)
		}
		p = protocol.EncodeStorePayload(h, *channel, *msgType, hex.EncodeToString(body))
	}

	// Output the request line, ready to pipe into nc -N
	fmt.Print(protocol.EncodeRequest(h, *command, p, *clientID))
}
