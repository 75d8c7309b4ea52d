package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"MatrixConnectionRelay/internal/auth"
)

func main() {
	out := flag.String("out", "relay_jwt.pub", "where to write the PEM public key")
	subject := flag.String("sub", "local-dev", "token subject")
	issuer := flag.String("iss", "matrix-dev", "token issuer")
	audience := flag.String("aud", "matrix-relay", "token audience")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	fmt.Print("\n=== Relay Test Token Generator ===\n\n")

	key, pubPEM, err := auth.GenerateTestKey()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, pubPEM, 0644); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.SignTestToken(key, *subject, *issuer, *audience, *ttl)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Public key: %s\n\n", *out)
	fmt.Println("Relay config:")
	fmt.Printf("   RELAY_AUTH_PUBLIC_KEY_FILE=%s\n", *out)
	fmt.Printf("   RELAY_AUTH_ISSUER=%s\n", *issuer)
	fmt.Printf("   RELAY_AUTH_AUDIENCE=%s\n\n", *audience)
	fmt.Println("Token:")
	fmt.Printf("   %s\n\n", token)
	fmt.Println("Usage:")
	fmt.Printf("   go run ./cmd/ask -token %s \"Is this the real world?\"\n\n", token)
}
