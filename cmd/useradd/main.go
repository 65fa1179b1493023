// Command useradd creates a local account in the database configured for
// the server. It accepts the server's config flags alongside its own:
//
//	useradd -c config.json -u bob [-email bob@example.com] [-admin] [-password-stdin]
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gainsborouo/ta-source/internal/server"
	"github.com/gainsborouo/ta-source/internal/server/config"
	"github.com/gainsborouo/ta-source/internal/useradd"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	args := os.Args[1:]

	opts, err := useradd.ParseOptions(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(args)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return useradd.Run(ctx, app.AuthService(), opts, os.Stdin, os.Stdout)
}
