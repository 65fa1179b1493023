package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/gainsborouo/ta-source/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-driver     database driver, "pgx" or "sqlite"
//	-d string   database DSN
//	-s string   token HMAC secret key
//	-t int      access token validity, seconds
//	-l string   root directory of per-course log files
//	-f string   frontend base URL
//
// Only these flags are considered; everything else in args is ignored.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-driver", "-d", "-s", "-t", "-l", "-f"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDriver, "driver", config.DatabaseDriver, "database driver (pgx or sqlite)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	ttl := fs.Int("t", int(config.AccessTokenValidityDuration.Seconds()), "access token validity (in seconds)")
	fs.StringVar(&config.LogsRoot, "l", config.LogsRoot, "root directory of course logs")
	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend base URL")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: flags: %w", err)
	}

	config.AccessTokenValidityDuration = time.Duration(*ttl) * time.Second
	return nil
}
