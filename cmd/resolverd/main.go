// Command resolverd hosts the Request Resolver: it loads a declared schema
// and rule set from a config directory, prepares the physical model,
// verifies/creates the backing tables, and runs the engine until asked to
// stop. The HTTP (or any other transport) front-end that actually accepts
// client requests is an external collaborator (spec §1) — this binary only
// owns process lifecycle, configuration, and the embeddable *resolver.Server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "resolverd",
	Short: "Declarative request-resolution engine",
	Long: `resolverd loads schema.toml, rules.yaml, and settings.yaml from a
config directory, prepares the physical schema, and runs the Request
Resolver as a long-lived process.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "./config",
		"directory containing schema.toml, rules.yaml, and settings.yaml")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
