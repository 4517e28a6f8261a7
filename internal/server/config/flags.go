package config

import (
	"flag"
	"os"
	"time"

	"github.com/cryptguard/cryptguard/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-o string   allowed CORS origin
//	-t int      access token validity, minutes
//	-r int      refresh token validity, hours
//	-b string   storage backend ("pinata" or "s3")
//	-l string   ledger JSON-RPC URL
//	-n string   registry contract address
//
// Secrets are deliberately not flag-settable; they come from the JSON file
// so they do not show up in process listings.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-o", "-t", "-r", "-b", "-l", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.CORSOrigin, "o", config.CORSOrigin, "allowed CORS origin")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Hours()), "refresh token validity (in hours)")

	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend (pinata or s3)")
	fs.StringVar(&config.LedgerRPCURL, "l", config.LedgerRPCURL, "ledger JSON-RPC URL")
	fs.StringVar(&config.ContractAddress, "n", config.ContractAddress, "registry contract address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Hour
}
