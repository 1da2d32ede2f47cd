package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cookkie03/davsync/pkg/auth"
	"github.com/cookkie03/davsync/pkg/backup"
	"github.com/cookkie03/davsync/pkg/config"
	"github.com/cookkie03/davsync/pkg/dav"
	"github.com/cookkie03/davsync/pkg/dedupe"
	"github.com/cookkie03/davsync/pkg/engine"
	"github.com/cookkie03/davsync/pkg/model"
	"github.com/cookkie03/davsync/pkg/notify"
	"github.com/cookkie03/davsync/pkg/notion"
	"github.com/cookkie03/davsync/pkg/people"
	"github.com/cookkie03/davsync/pkg/rrule"
	"github.com/cookkie03/davsync/pkg/store"
)

var dryRun bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "davsync",
		Short:         "Bidirectional sync between DAV collections and hosted databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"log every intended write without executing it")

	root.AddCommand(syncCmd(), backupCmd(), dedupeCmd(), authCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatalf("davsync: %v", err)
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sync [tasks|contacts]",
		Short:     "Run one full reconciliation pass for a domain",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"tasks", "contacts"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, closeStore, err := buildEngine(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			defer closeStore()

			start := time.Now()
			stats, err := e.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync %s: %w", args[0], err)
			}
			log.Printf("sync %s finished in %s: %s", args[0], time.Since(start).Round(time.Millisecond), stats)
			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "backup [tasks|contacts]",
		Short:     "Export both sides of a domain and prune old exports",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"tasks", "contacts"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			exporters, err := buildExporters(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}

			dir, results := backup.Run(cmd.Context(), cfg.BackupDir, backup.DefaultTimeout, exporters...)
			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					log.Printf("backup %s failed: %v", res.Name, res.Err)
				} else {
					log.Printf("backup %s done in %s", res.Name, res.Duration.Round(time.Millisecond))
				}
			}
			if dir == "" {
				return fmt.Errorf("backup produced no directory")
			}

			manifest, err := backup.LoadManifest(filepath.Join(cfg.BackupDir, "manifest.json"))
			if err != nil {
				return fmt.Errorf("loading backup manifest: %w", err)
			}
			manifest.Record(dir, time.Now())
			cutoff := time.Now().AddDate(0, 0, -cfg.BackupRetentionDays)
			for _, pruned := range manifest.Sweep(cutoff) {
				log.Printf("backup pruned %s", pruned.Dir)
			}
			if err := manifest.Save(); err != nil {
				return fmt.Errorf("saving backup manifest: %w", err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d exports failed", failed, len(results))
			}
			return nil
		},
	}
}

func dedupeCmd() *cobra.Command {
	var side string
	cmd := &cobra.Command{
		Use:       "dedupe [tasks|contacts]",
		Short:     "Remove fingerprint-identical duplicates from one side",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"tasks", "contacts"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ad, err := buildAdapter(cmd.Context(), cfg, args[0], side)
			if err != nil {
				return err
			}
			report, err := dedupe.Scrub(cmd.Context(), ad, dryRun)
			if err != nil {
				return err
			}
			log.Printf("dedupe %s/%s: %d duplicate groups, %d removed",
				args[0], side, len(report.Groups), report.Removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&side, "side", "a", `which side to scrub: "a" (DAV) or "b" (hosted)`)
	return cmd
}

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Run the Google consent flow and cache the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.Authorize(cmd.Context(), auth.PeopleScopes); err != nil {
				return fmt.Errorf("authorizing: %w", err)
			}
			fmt.Println("Authorization complete.")
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DryRun {
		dryRun = true
	}
	return cfg, nil
}

// buildEngine wires one domain's adapters, store, hooks, and notifier.
func buildEngine(ctx context.Context, cfg *config.Config, domain string) (*engine.Engine, func(), error) {
	a, b, err := buildSides(ctx, cfg, domain)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(domainStatePath(cfg.StateFile, domain))
	if err != nil {
		return nil, nil, fmt.Errorf("opening link state: %w", err)
	}

	e := engine.New(a, b, st)
	e.DryRun = dryRun
	e.Notifier = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
	e.Authority, err = cfg.AuthoritySide()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if domain == "tasks" {
		e.Hooks = &engine.Hooks{
			NextOccurrence: rrule.Advance,
			ShouldSkip: func(rec *model.Record) bool {
				return rec.Done && !rec.Recurring()
			},
		}
	}
	return e, func() { st.Close() }, nil
}

func buildSides(ctx context.Context, cfg *config.Config, domain string) (engine.Adapter, engine.Adapter, error) {
	switch domain {
	case "tasks":
		if err := cfg.RequireTasks(); err != nil {
			return nil, nil, err
		}
		cl := dav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
		cl.Discover(ctx, dav.KindCalendar)
		b := notion.NewDatabase(cfg.NotionToken, cfg.NotionDatabaseID)
		return dav.NewTasks(cl), b, nil
	case "contacts":
		if err := cfg.RequireContacts(); err != nil {
			return nil, nil, err
		}
		cl := dav.NewClient(cfg.CardDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
		cl.Discover(ctx, dav.KindAddressbook)
		a := dav.NewContacts(cl)
		srv, err := auth.PeopleService(ctx)
		if err != nil {
			return nil, nil, err
		}
		return a, people.NewContacts(srv), nil
	default:
		return nil, nil, fmt.Errorf("unknown domain %q", domain)
	}
}

func buildAdapter(ctx context.Context, cfg *config.Config, domain, side string) (engine.Adapter, error) {
	a, b, err := buildSides(ctx, cfg, domain)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(side) {
	case "a":
		return a, nil
	case "b":
		return b, nil
	default:
		return nil, fmt.Errorf("invalid side %q: want \"a\" or \"b\"", side)
	}
}

func buildExporters(ctx context.Context, cfg *config.Config, domain string) ([]backup.Exporter, error) {
	switch domain {
	case "tasks":
		if err := cfg.RequireTasks(); err != nil {
			return nil, err
		}
		return []backup.Exporter{
			&backup.DAVExporter{
				Client: dav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword),
				Label:  "caldav",
			},
			&backup.RecordExporter{Adapter: notion.NewDatabase(cfg.NotionToken, cfg.NotionDatabaseID)},
		}, nil
	case "contacts":
		if err := cfg.RequireContacts(); err != nil {
			return nil, err
		}
		srv, err := auth.PeopleService(ctx)
		if err != nil {
			return nil, err
		}
		return []backup.Exporter{
			&backup.DAVExporter{
				Client: dav.NewClient(cfg.CardDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword),
				Label:  "carddav",
			},
			&backup.RecordExporter{Adapter: people.NewContacts(srv)},
		}, nil
	default:
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
}

// domainStatePath gives each domain its own link database next to the
// configured one: links.db becomes links-tasks.db and links-contacts.db.
func domainStatePath(base, domain string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + domain + ext
}
