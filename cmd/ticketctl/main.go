// ticketctl drives the ticket store from a terminal: it loads the caller's
// tickets from the gateway and applies one change per invocation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/gateway"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/store"
)

const tokenEnv = "TICKETDESK_TOKEN"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	gatewayURL string
	token      string
	tokenFile  string
	timeout    time.Duration
	verbose    bool
}

func run(args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var opts globalOptions
	flagSet := pflag.NewFlagSet("ticketctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&opts.gatewayURL, "gateway", cfg.Gateway.BaseURL, "ticket gateway base URL")
	flagSet.StringVar(&opts.token, "token", "", "bearer token (default $"+tokenEnv+")")
	flagSet.StringVar(&opts.tokenFile, "token-file", "", "read the bearer token from this file on every request")
	flagSet.DurationVar(&opts.timeout, "timeout", cfg.Gateway.Timeout(), "per-request gateway timeout")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(flagSet)
		return pflag.ErrHelp
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	logger, err := observability.NewCLILogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	gw := gateway.NewHTTPGateway(opts.gatewayURL, opts.credentials(), gateway.WithLogger(logger))
	s := store.New(gw, store.Options{Logger: logger, Timeout: opts.timeout})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := &commandEnv{store: s, out: stdout, logger: logger}
	return cmd.run(ctx, env, rest[1:])
}

func (o globalOptions) credentials() auth.CredentialProvider {
	switch {
	case strings.TrimSpace(o.token) != "":
		return auth.StaticToken(o.token)
	case o.tokenFile != "":
		return auth.FileToken{Path: o.tokenFile}
	default:
		// Read at request time, after flag parsing.
		return auth.TokenFunc(func(ctx context.Context) (string, error) {
			return auth.StaticToken(os.Getenv(tokenEnv)).Token(ctx)
		})
	}
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ticketctl manages support tickets on the remote ticket gateway.

Usage:
  ticketctl [flags] <command> [command flags] [args]

Commands:
`)
	for _, name := range commandOrder {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flagSet.FlagUsages())
}

type commandEnv struct {
	store  *store.Store
	out    io.Writer
	logger *zap.Logger
}
