package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rtconf/rtconf/internal/auth"
	"github.com/rtconf/rtconf/internal/config"
	"github.com/rtconf/rtconf/internal/store"
)

// runUpdateUser creates or updates a user record and prints the client
// token. Updating an existing user rotates the token.
func runUpdateUser(args []string) error {
	fs := flag.NewFlagSet("update-user", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to a YAML config file")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: rtconf update-user <username> <password>")
	}
	username, password := rest[0], rest[1]

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	sc := cfg.StoreConfig()
	// The CLI never subscribes; keeping the bus closed stops Close from
	// broadcasting the shutdown sentinel to running servers.
	sc.OpenNotify = false

	ctx := context.Background()
	backend, err := store.Open(ctx, sc)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = backend.Close(ctx) }()

	rec, err := auth.New(backend).UpdateUser(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Printf("user %s updated\ntoken: %s\n", rec.Username, rec.Token)
	return nil
}
