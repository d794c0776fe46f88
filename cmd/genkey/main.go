package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	adminToken := flag.Bool("admin-token", false, "Also generate an admin token and its bcrypt hash")
	flag.Parse()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	fmt.Printf("INTEGRITY_KEY=%s\n", hex.EncodeToString(key))

	if !*adminToken {
		return
	}

	token := make([]byte, 24)
	if _, err := rand.Read(token); err != nil {
		panic(err)
	}
	tokenHex := hex.EncodeToString(token)
	hash, err := bcrypt.GenerateFromPassword([]byte(tokenHex), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash admin token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Admin token:      %s\n", tokenHex)
	fmt.Printf("ADMIN_TOKEN_HASH=%s\n", hash)
}
