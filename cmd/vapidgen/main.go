// Package main generates a VAPID key pair for pushgate deployments.
package main

import (
	"fmt"
	"os"

	"github.com/trovehunt/pushgate/pkg/vapid"
)

func main() {
	keys, err := vapid.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate VAPID keys: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("# Add to the environment of both the API and the worker.")
	fmt.Println("# The private key must never reach a client.")
	fmt.Printf("export VAPID_PUBLIC_KEY=%s\n", keys.PublicKey)
	fmt.Printf("export VAPID_PRIVATE_KEY=%s\n", keys.PrivateKey)
}
