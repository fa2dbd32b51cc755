package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/latticedb/resolver/internal/config"
	"github.com/latticedb/resolver/internal/driver"
	_ "github.com/latticedb/resolver/internal/driver/sqlengine" // registers "mysql"/"dolt" backends
	"github.com/latticedb/resolver/internal/plugin"
	"github.com/latticedb/resolver/internal/resolver"
	"github.com/latticedb/resolver/internal/schema"
)

// loaded bundles everything prepare loads from configDir before a driver
// connection is opened, so both `migrate` (schema only) and `serve` (full
// engine) build on the same startup sequence.
type loaded struct {
	settings config.Settings
	declared schema.DeclaredSchema
	model    schema.PhysicalModel
	ruleSpec map[string]resolver.TableRuleSpec
}

// prepare loads settings/schema/rules but does not require a dialable
// DSN — `validate` runs this without a database; `migrate`/`serve` call
// settings.Validate() themselves before opening a driver.
func prepare(dir string) (*loaded, error) {
	settings, err := config.LoadSettings(filepath.Join(dir, "settings.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	rawSchema, err := config.LoadSchema(filepath.Join(dir, "schema.toml"))
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	model, declared, err := schema.Prepare(rawSchema)
	if err != nil {
		return nil, fmt.Errorf("preparing schema: %w", err)
	}

	ruleSpec, err := config.LoadRules(filepath.Join(dir, "rules.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	return &loaded{settings: settings, declared: declared, model: model, ruleSpec: ruleSpec}, nil
}

// migrateSchema creates (or verifies) every physical table, then adds
// foreign keys in a second pass — mirroring schema.Prepare's own two-pass
// split so cyclic references (User.contacts = [User]) never need a table's
// own foreign key before every table exists.
func migrateSchema(ctx context.Context, d driver.Driver, model schema.PhysicalModel) error {
	for name, phys := range model {
		if err := d.CreateTable(ctx, name, phys, phys.Indexes); err != nil {
			return fmt.Errorf("creating table %s: %w", name, err)
		}
	}
	for name, phys := range model {
		if err := d.ProcessTable(ctx, name, phys); err != nil {
			return fmt.Errorf("verifying table %s: %w", name, err)
		}
	}
	fks := make(map[string]any, len(model))
	for name, phys := range model {
		fks[name] = phys
	}
	if err := d.CreateForeignKeys(ctx, fks); err != nil {
		return fmt.Errorf("creating foreign keys: %w", err)
	}
	return nil
}

// buildServer opens the driver, migrates the schema, compiles rules, and
// returns a ready-to-use Server plus its dispatcher (so the caller can
// register plugins before the first request).
func buildServer(ctx context.Context, l *loaded) (*resolver.Server, *plugin.Dispatcher, error) {
	if err := l.settings.Validate(); err != nil {
		return nil, nil, err
	}

	d, err := driver.Open(ctx, l.settings.DriverName, l.settings.DSN, driver.Options{
		MaxOpenConns: l.settings.MaxOpenConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening driver %s: %w", l.settings.DriverName, err)
	}

	if err := migrateSchema(ctx, d, l.model); err != nil {
		return nil, nil, err
	}

	rs, err := resolver.CompileRules(l.declared, l.ruleSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("compiling rules: %w", err)
	}

	dispatcher := plugin.NewDispatcher()
	if err := dispatcher.RunPreRequisites(l.declared); err != nil {
		return nil, nil, fmt.Errorf("plugin preRequisite: %w", err)
	}

	srv := resolver.New(l.model, l.declared, rs, dispatcher, d, l.settings.PrivateKey)
	return srv, dispatcher, nil
}

// compileRulesOnly runs CompileRules without opening a driver, for
// `validate`'s database-free dry run.
func compileRulesOnly(l *loaded) (*resolver.Ruleset, error) {
	return resolver.CompileRules(l.declared, l.ruleSpec)
}
