// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

// Package main is auditctl, the administrative command-line tool for the
// aal2-audit store. It exposes the consumer operations of the audit core
// over a local store:
//
//	auditctl log -user alice -action authentication_success -outcome success
//	auditctl query -user alice -outcome failure -limit 50
//	auditctl export -format csv -start 2026-08-01T00:00:00Z > audit.csv
//	auditctl cleanup -retention-days 30
//	auditctl stats
//	auditctl backup -out audit.bak
//
// Configuration follows the usual layering (defaults, config file,
// environment); see the config package. The store path can be overridden
// with STORE_PATH.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/cmscom/aal2-audit/internal/audit"
	"github.com/cmscom/aal2-audit/internal/config"
	"github.com/cmscom/aal2-audit/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "auditctl: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	store, err := openStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Cannot open audit store")
	}
	defer store.Close()

	container, err := store.Container(cfg.Store.Scope)
	if err != nil {
		logging.Fatal().Err(err).Str("scope", cfg.Store.Scope).Msg("Cannot open audit container")
	}

	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "log":
		err = runLog(ctx, container, args)
	case "query":
		err = runQuery(ctx, container, args)
	case "export":
		err = runExport(ctx, container, args)
	case "cleanup":
		err = runCleanup(ctx, container, args)
	case "stats":
		err = runStats(ctx, container)
	case "backup":
		err = runBackup(ctx, store, args)
	case "restore":
		err = runRestore(ctx, store, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "auditctl %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: auditctl <log|query|export|cleanup|stats|backup|restore> [flags]")
}

func openStore(cfg *config.Config) (*audit.Store, error) {
	if cfg.Store.InMemory {
		return audit.OpenInMemory()
	}
	return audit.Open(cfg.Store.Path)
}

func runLog(ctx context.Context, c *audit.Container, args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	user := fs.String("user", "", "user ID (default anonymous)")
	action := fs.String("action", "", "action type (required)")
	outcome := fs.String("outcome", "", "outcome: success or failure (required)")
	ip := fs.String("ip", "", "source IP address")
	userAgent := fs.String("user-agent", "", "user agent")
	metaJSON := fs.String("metadata", "", "metadata as a JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var metadata map[string]any
	if *metaJSON != "" {
		if err := json.Unmarshal([]byte(*metaJSON), &metadata); err != nil {
			return fmt.Errorf("parse -metadata: %w", err)
		}
	}

	// The CLI surfaces validation failures directly instead of failing
	// open; an operator wants to know the event was rejected.
	event, err := audit.NewEvent(*user, audit.ActionType(*action), audit.Outcome(*outcome), *ip, *userAgent, metadata)
	if err != nil {
		return err
	}

	eventID, err := c.AddEvent(ctx, event)
	if err != nil {
		return err
	}

	fmt.Println(eventID)
	return nil
}

// filterFlags registers the shared filter flags on fs and returns a
// builder that assembles the QueryFilter after parsing.
func filterFlags(fs *flag.FlagSet) func() (audit.QueryFilter, error) {
	user := fs.String("user", "", "filter by user ID")
	action := fs.String("action", "", "filter by action type")
	outcome := fs.String("outcome", "", "filter by outcome")
	start := fs.String("start", "", "start of time range (RFC 3339)")
	end := fs.String("end", "", "end of time range (RFC 3339)")

	build := func() (audit.QueryFilter, error) {
		filter := audit.QueryFilter{
			UserID:     *user,
			ActionType: *action,
			Outcome:    *outcome,
		}
		if *start != "" {
			t, err := time.Parse(time.RFC3339, *start)
			if err != nil {
				return filter, fmt.Errorf("parse -start: %w", err)
			}
			filter.StartTime = &t
		}
		if *end != "" {
			t, err := time.Parse(time.RFC3339, *end)
			if err != nil {
				return filter, fmt.Errorf("parse -end: %w", err)
			}
			filter.EndTime = &t
		}
		return filter, nil
	}
	return build
}

func runQuery(ctx context.Context, c *audit.Container, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	buildFilter := filterFlags(fs)
	limit := fs.Int("limit", 100, "maximum number of results (0 = all)")
	offset := fs.Int("offset", 0, "number of results to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter, err := buildFilter()
	if err != nil {
		return err
	}

	result, err := audit.QueryAuditLogs(ctx, c, filter, *limit, *offset)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runExport(ctx context.Context, c *audit.Container, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	buildFilter := filterFlags(fs)
	format := fs.String("format", audit.FormatCSV, "export format: csv or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter, err := buildFilter()
	if err != nil {
		return err
	}

	export, err := audit.ExportAuditLogs(ctx, c, *format, filter)
	if err != nil {
		return err
	}

	logging.Info().Str("filename", export.Filename).Str("content_type", export.ContentType).Msg("Export ready")
	_, err = os.Stdout.Write(export.Content)
	return err
}

func runCleanup(ctx context.Context, c *audit.Container, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	retention := fs.Int("retention-days", 0, "retention period in days (0 = container policy)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := audit.CleanupOldLogs(ctx, c, *retention)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runStats(ctx context.Context, c *audit.Container) error {
	stats, err := audit.GetAuditStats(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runBackup(ctx context.Context, store *audit.Store, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	out := fs.String("out", "", "backup file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	_, err := store.Backup(ctx, w)
	return err
}

func runRestore(ctx context.Context, store *audit.Store, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	in := fs.String("in", "", "backup file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := io.Reader(os.Stdin)
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	return store.Restore(ctx, r)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
