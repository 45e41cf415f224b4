// Command issue-token prints a bearer token for a user id, signed with the
// server's JWT_SECRET. Intended for local testing and scripted smoke checks.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/Clark-Hu/watchlist-api/internal/auth"
)

func main() {
	var (
		user    = flag.String("user", "", "user id to place in the sub claim")
		ttl     = flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TTL_MINUTES or 1h)")
		envFile = flag.String("env", ".env", "optional dotenv file")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fail("load %s: %v", *envFile, err)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fail("JWT_SECRET is required")
	}
	if *user == "" {
		fail("-user is required")
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Hour
		if minutes, err := strconv.Atoi(os.Getenv("JWT_TTL_MINUTES")); err == nil && minutes > 0 {
			lifetime = time.Duration(minutes) * time.Minute
		}
	}

	token, err := auth.NewManager(secret, lifetime).Issue(*user)
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(token)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "issue-token: "+format+"\n", args...)
	os.Exit(1)
}
