// Command issue-token prints a bearer token scoped to one association, for
// local development and scripting against the server. In production the
// member portal issues tokens with the same JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mmynk/vereinsledger/internal/auth"
	"github.com/mmynk/vereinsledger/pkg/logging"
)

func main() {
	logging.Setup()

	associationID := flag.Int64("association", 0, "association id the token is scoped to")
	subject := flag.String("subject", "", "portal user, recorded e.g. as closing reviewer")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	token, err := auth.NewJWTManager(secret, *ttl).Generate(*subject, *associationID, *name)
	if err != nil {
		slog.Error("Failed to issue token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
