// Command bindle-store manages a bindle storage root: it creates and reads
// invoices and parcels, yanks invoices and delivers queued index events.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	bindle "github.com/wolfeidau/bindle-store"
	"github.com/wolfeidau/bindle-store/indexsync"
	"github.com/wolfeidau/bindle-store/search"
	"github.com/wolfeidau/bindle-store/storage"
	"github.com/wolfeidau/bindle-store/telemetry"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Root         string `help:"Storage root directory." default:"./bindles" env:"BINDLE_STORE_ROOT" type:"path"`
	Index        string `help:"Path of the search index database. Indexing is disabled when empty." env:"BINDLE_STORE_INDEX" type:"path"`
	Outbox       string `help:"Path of the index event log. When set, index updates are queued and delivered by the sync command." env:"BINDLE_STORE_OUTBOX" type:"path"`
	IDScheme     string `help:"Invoice id scheme (${enum})." enum:"concat,length-prefixed" default:"concat" env:"BINDLE_STORE_ID_SCHEME"`
	LogLevel     string `help:"Log level (${enum})." enum:"debug,info,warn,error" default:"info" env:"BINDLE_LOG_LEVEL"`
	LogFormat    string `help:"Log format (${enum})." enum:"text,plain,json" default:"text" env:"BINDLE_LOG_FORMAT"`
	NoColor      bool   `help:"Disable coloured log output." env:"NO_COLOR"`
	OTLPEndpoint string `help:"OTLP gRPC endpoint for metrics export (e.g. localhost:4317)." env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// CLI is the command line of bindle-store.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Print version and exit."`

	CreateInvoice CreateInvoiceCmd `cmd:"" help:"Store an invoice read from a TOML manifest and list its missing parcels."`
	GetInvoice    GetInvoiceCmd    `cmd:"" help:"Print an invoice identified by <name>/<version>."`
	Yank          YankCmd          `cmd:"" help:"Mark an invoice as yanked."`
	CreateParcel  CreateParcelCmd  `cmd:"" help:"Store a parcel blob with its label."`
	GetParcel     GetParcelCmd     `cmd:"" help:"Write a parcel blob to stdout."`
	GetLabel      GetLabelCmd      `cmd:"" help:"Print the label of a parcel."`
	Search        SearchCmd        `cmd:"" help:"Query the search index."`
	Sync          SyncCmd          `cmd:"" help:"Deliver queued index events from the outbox."`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("bindle-store"),
		kong.Description("Content addressed bindle storage."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	level, err := telemetry.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	handler, err := telemetry.NewLogHandler(os.Stderr, level, cli.LogFormat, cli.NoColor)
	if err != nil {
		return err
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	a, err := newApp(ctx, &cli.Globals, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Error("closing", telemetry.ErrAttr(cerr))
		}
	}()

	return kctx.Run(a)
}

// app holds the resources opened for one command invocation.
type app struct {
	logger *slog.Logger
	store  *storage.FileStorage
	index  *search.BoltEngine
	outbox *indexsync.Outbox

	metricsShutdown func(context.Context) error
}

func newApp(ctx context.Context, g *Globals, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	scheme, err := bindle.ParseIDScheme(g.IDScheme)
	if err != nil {
		return nil, err
	}

	a.metricsShutdown, err = telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "bindle-store",
		ServiceVersion:   version,
		OTLPEndpoint:     g.OTLPEndpoint,
		EnablePrometheus: true,
	})
	if err != nil {
		return nil, fmt.Errorf("initialising metrics: %w", err)
	}

	opts := []storage.Option{
		storage.WithLogger(logger),
		storage.WithIDScheme(scheme),
	}

	if g.Index != "" {
		a.index, err = search.OpenBoltEngine(g.Index, search.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	}

	switch {
	case g.Outbox != "":
		if a.index == nil {
			return nil, errors.New("--outbox requires --index")
		}
		a.outbox, err = indexsync.OpenOutbox(g.Outbox, a.index, indexsync.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithSyncer(a.outbox))
	case a.index != nil:
		opts = append(opts, storage.WithIndexer(a.index))
	}

	a.store, err = storage.New(g.Root, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases everything newApp opened, outbox before index.
func (a *app) Close() error {
	var errs []error
	if a.outbox != nil {
		errs = append(errs, a.outbox.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.metricsShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metricsShutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}
