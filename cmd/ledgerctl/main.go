package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/odyssey-erp/ledgercore/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/ledgercore/internal/app"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  migrate                          apply pending schema migrations
  configure --type T --prefix P    create or update a numbering series
  peek --type T                    show the next document number
  allocate --type T                consume the next document number
  advance --type T --to N          move a counter so later numbers exceed N
  reconcile                        rebuild stock balances from movements
  integrity                        list unbalanced journal entries
  jobs trigger NAME | jobs stats   enqueue a job or inspect the queue
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	slog.SetDefault(app.NewLogger(cfg, stderr))

	command, rest := args[0], args[1:]
	flags := pflag.NewFlagSet(command, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	docType := flags.StringP("type", "t", "", "document type")
	prefix := flags.String("prefix", "", "number prefix")
	width := flags.Int("width", sequence.DefaultDigitWidth, "zero-padded digit width")
	to := flags.Int64("to", 0, "advance target")
	jsonOut := flags.Bool("json", false, "print JSON")
	if err := flags.Parse(rest); err != nil {
		return 2
	}
	out := cli.Output{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr}

	switch command {
	case "migrate":
		changed, err := db.Migrate(cfg.PGDSN)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "migrate: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "migrations applied (changed=%t)\n", changed)
		return 0
	case "jobs":
		return runJobs(ctx, cfg, flags.Args(), stdout, stderr)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 2, ApplicationName: "ledgerctl"})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "connect database: %v\n", err)
		return 1
	}
	defer pool.Close()

	sequences := sequence.NewService(sequence.NewRepository(pool), sequence.Config{MaxAttempts: cfg.SequenceMaxAttempts}, nil)
	ledgerCLI := cli.NewLedgerCLI(
		sequences,
		inventory.NewService(inventory.NewRepository(pool), inventory.ServiceConfig{Precision: cfg.CurrencyPrecision}, nil),
		ledger.NewService(ledger.NewRepository(pool), sequences, ledger.ServiceConfig{Precision: cfg.CurrencyPrecision}, nil),
	)

	switch command {
	case "configure":
		return ledgerCLI.ConfigureCommand(ctx, sequence.ConfigInput{DocumentType: *docType, Prefix: *prefix, DigitWidth: *width}, out)
	case "peek":
		return ledgerCLI.PeekCommand(ctx, *docType, out)
	case "allocate":
		return ledgerCLI.AllocateCommand(ctx, *docType, out)
	case "advance":
		return ledgerCLI.AdvanceCommand(ctx, *docType, *to, out)
	case "reconcile":
		return ledgerCLI.ReconcileCommand(ctx, out)
	case "integrity":
		return ledgerCLI.IntegrityCommand(ctx, out)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: job name required")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s\n", info.Type, info.ID)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "queue %s: pending %d, active %d, scheduled %d, retry %d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
}
