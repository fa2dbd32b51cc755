package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/latticedb/resolver/internal/config"
	"github.com/latticedb/resolver/internal/resolver"
	"github.com/latticedb/resolver/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the request resolver until interrupted",
	Long: `Loads schema.toml, rules.yaml, and settings.yaml from --config-dir,
migrates the physical schema, and keeps the engine running so an embedding
front-end (out of this binary's scope, see spec §1) can call Server.Resolve.
rules.yaml is hot-reloaded on edit; schema.toml and settings.yaml require a
restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	l, err := prepare(configDir)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:  "resolverd",
		OTLPEndpoint: l.settings.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Printf("resolverd: telemetry shutdown: %v", err)
		}
	}()

	srv, dispatcher, err := buildServer(ctx, l)
	if err != nil {
		return err
	}

	if l.settings.NATSURL != "" {
		nc, err := nats.Connect(l.settings.NATSURL, nats.Name("resolverd"))
		if err != nil {
			return fmt.Errorf("connecting to NATS at %s: %w", l.settings.NATSURL, err)
		}
		defer nc.Close()
		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("opening JetStream context: %w", err)
		}
		dispatcher.SetJetStream(js)
	}

	rulesPath := filepath.Join(configDir, "rules.yaml")
	if err := config.WatchRules(ctx, rulesPath, func(spec map[string]resolver.TableRuleSpec) {
		rs, err := resolver.CompileRules(l.declared, spec)
		if err != nil {
			log.Printf("resolverd: rules.yaml reload rejected, keeping previous ruleset: %v", err)
			return
		}
		srv.SetRules(rs)
		log.Printf("resolverd: reloaded rules.yaml")
	}); err != nil {
		return fmt.Errorf("watching %s: %w", rulesPath, err)
	}

	log.Printf("resolverd: serving %d physical tables via %s", len(l.model), l.settings.DriverName)
	<-ctx.Done()
	log.Printf("resolverd: shutting down")
	if err := srv.Driver.Destroy(context.Background()); err != nil {
		log.Printf("resolverd: closing driver: %v", err)
	}
	return nil
}
