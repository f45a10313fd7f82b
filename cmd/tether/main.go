// Tether command-line utilities.
//
// A single binary with subcommands for working against an MQTT broker
// carrying Tether traffic: send, receive, topics, record, playback and
// recordings. Run "tether --help" for details.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/RandomStudio/tether/internal/cli"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// A missing .env file is normal.
	_ = godotenv.Load() //nolint:errcheck // Optional file

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the command line in args, writing user output to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	root := cli.NewRootCmd(fmt.Sprintf("%s (%s)", version, commit), out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
