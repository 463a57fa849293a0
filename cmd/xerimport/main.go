package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/xerimport/internal/config"
	"github.com/JonMunkholm/xerimport/internal/core"
	"github.com/JonMunkholm/xerimport/internal/inbox"
	"github.com/JonMunkholm/xerimport/internal/logging"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const usage = `usage: xerimport [-env file] <command> [args]

commands:
  migrate                  create the import control table
  import <file>...         import export files, one transaction each
  list                     list imports, newest first
  tables                   list stored tables and their columns
  export <id|all> <dir>    write stored rows as CSV files
  delete <id>              remove one import and its rows
  watch                    import files from the inbox on a schedule
`

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load if present")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Overload so the file wins over a stale shell environment
	if err := godotenv.Overload(*envFile); err != nil {
		slog.Debug("no env file loaded", "file", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	closeLogs := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.SeqURL)
	code := run(cfg, flag.Arg(0), flag.Args()[1:])
	closeLogs()
	os.Exit(code)
}

func run(cfg *config.Config, cmd string, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return 1
	}
	defer pool.Close()

	service, err := core.NewService(pool, cfg.Import)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		return 1
	}

	switch cmd {
	case "migrate":
		err = service.EnsureSchema(ctx)
	case "import":
		err = importFiles(ctx, service, cfg, args, os.Stdout)
	case "list":
		err = listImports(ctx, service, os.Stdout)
	case "tables":
		err = listTables(ctx, service, os.Stdout)
	case "export":
		err = export(ctx, service, args, os.Stdout)
	case "delete":
		err = deleteImport(ctx, service, args, os.Stdout)
	case "watch":
		err = watch(ctx, service, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", core.FormatUserError(err))
		slog.Debug("command failed", "command", cmd, "error", err)
		return 1
	}
	return 0
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Debug("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}

func importFiles(ctx context.Context, service *core.Service, cfg *config.Config, paths []string, out io.Writer) error {
	if len(paths) == 0 {
		return errors.New("import needs at least one file")
	}
	if err := service.EnsureSchema(ctx); err != nil {
		return err
	}

	var failed int
	for _, path := range paths {
		if err := core.CheckExtension(path, cfg.Inbox.Extension); err != nil {
			fmt.Fprintf(out, "%s: %s\n", path, core.FormatUserError(err))
			failed++
			continue
		}

		result, err := service.ImportFile(ctx, path)
		if err != nil {
			fmt.Fprintf(out, "%s: %s\n", path, core.FormatUserError(err))
			failed++
			continue
		}

		fmt.Fprintf(out, "%s: import %d, %d tables, %d rows stored, %d skipped (%s)\n",
			path, result.ImportID, len(result.Tables), result.Inserted(), result.Skipped(),
			result.Duration.Round(time.Millisecond))
		for _, t := range result.Tables {
			if t.Error != "" {
				fmt.Fprintf(out, "  %s: skipped: %s\n", t.Table, t.Error)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

func listImports(ctx context.Context, service *core.Service, out io.Writer) error {
	imports, err := service.ListImports(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tUPLOADED\tRUN")
	for _, rec := range imports {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", rec.ID, rec.FileName, rec.UploadedAt.Local().Format(time.DateTime), rec.RunID)
	}
	return w.Flush()
}

func listTables(ctx context.Context, service *core.Service, out io.Writer) error {
	tables, err := service.StoredTables(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tCOLUMNS")
	for _, table := range tables {
		cols, err := service.TableColumns(ctx, table)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", table, strings.Join(cols[:len(cols)-1], ", "))
	}
	return w.Flush()
}

func export(ctx context.Context, service *core.Service, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: export <id|all> <dir>")
	}

	var (
		files []string
		err   error
	)
	if args[0] == "all" {
		files, err = service.ExportAll(ctx, args[1])
	} else {
		id, perr := parseID(args[0])
		if perr != nil {
			return perr
		}
		files, err = service.ExportImport(ctx, id, args[1])
	}
	for _, f := range files {
		fmt.Fprintln(out, f)
	}
	return err
}

func deleteImport(ctx context.Context, service *core.Service, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: delete <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	deleted, err := service.DeleteImport(ctx, id)
	if err != nil {
		return err
	}
	var total int64
	for _, n := range deleted {
		total += n
	}
	fmt.Fprintf(out, "deleted import %d: %d rows from %d tables\n", id, total, len(deleted))
	return nil
}

func watch(ctx context.Context, service *core.Service, cfg *config.Config) error {
	if err := service.EnsureSchema(ctx); err != nil {
		return err
	}

	w, err := inbox.New(cfg.Inbox, service)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Inbox.ShutdownTimeout)
	defer cancel()

	select {
	case <-w.Stop().Done():
	case <-shutdownCtx.Done():
		slog.Warn("inbox sweep did not finish in time")
	}

	if status := service.LimiterStatus(); status.Active > 0 {
		slog.Info("waiting for imports to complete", "active", status.Active)
		if err := service.WaitForImports(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		}
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid import id %q", s)
	}
	return id, nil
}
