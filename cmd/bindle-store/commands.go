package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	bindle "github.com/wolfeidau/bindle-store"
	"github.com/wolfeidau/bindle-store/search"
	"github.com/wolfeidau/bindle-store/telemetry"
)

var stdout io.Writer = os.Stdout

// CreateInvoiceCmd stores an invoice manifest.
type CreateInvoiceCmd struct {
	Manifest kong.FileContentFlag `arg:"" help:"Invoice TOML file."`
}

func (c *CreateInvoiceCmd) Run(ctx context.Context, a *app) error {
	inv, err := bindle.UnmarshalInvoice(c.Manifest)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	missing, err := a.store.CreateInvoice(ctx, inv)
	if err != nil {
		return err
	}
	a.logger.Info("invoice created", "name", inv.Name(), "missing", len(missing))

	if len(missing) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHA256\tNAME\tMEDIA TYPE")
	for _, l := range missing {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.SHA256, l.Name, l.MediaType)
	}
	return tw.Flush()
}

// GetInvoiceCmd prints an invoice.
type GetInvoiceCmd struct {
	ID     string `arg:"" help:"Invoice identifier <name>/<version>."`
	Yanked bool   `help:"Return the invoice even if it is yanked."`
}

func (c *GetInvoiceCmd) Run(ctx context.Context, a *app) error {
	get := a.store.GetInvoice
	if c.Yanked {
		get = a.store.GetYankedInvoice
	}
	inv, err := get(ctx, c.ID)
	if err != nil {
		return err
	}
	data, err := bindle.MarshalInvoice(inv)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

// YankCmd yanks an invoice.
type YankCmd struct {
	ID string `arg:"" help:"Invoice identifier <name>/<version>."`
}

func (c *YankCmd) Run(ctx context.Context, a *app) error {
	inv, err := a.store.GetYankedInvoice(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := a.store.YankInvoice(ctx, inv); err != nil {
		return err
	}
	a.logger.Info("invoice yanked", "name", inv.Name())
	return nil
}

// CreateParcelCmd stores a parcel.
type CreateParcelCmd struct {
	Label kong.FileContentFlag `required:"" help:"Label TOML file."`
	Data  *os.File             `arg:"" help:"Parcel content, - for stdin."`
}

func (c *CreateParcelCmd) Run(ctx context.Context, a *app) error {
	defer c.Data.Close()

	label, err := bindle.UnmarshalLabel(c.Label)
	if err != nil {
		return fmt.Errorf("reading label: %w", err)
	}
	if err := a.store.CreateParcel(ctx, label, c.Data); err != nil {
		return err
	}
	a.logger.Info("parcel created", "sha256", label.SHA256, "name", label.Name)
	return nil
}

// GetParcelCmd writes a parcel blob to stdout.
type GetParcelCmd struct {
	SHA256 string `arg:"" name:"sha256" help:"Parcel digest."`
}

func (c *GetParcelCmd) Run(ctx context.Context, a *app) error {
	label, err := a.store.GetLabel(ctx, c.SHA256)
	if err != nil {
		return err
	}
	rc, err := a.store.GetParcel(ctx, label)
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(stdout, rc)
	return err
}

// GetLabelCmd prints a parcel label.
type GetLabelCmd struct {
	SHA256 string `arg:"" name:"sha256" help:"Parcel digest."`
}

func (c *GetLabelCmd) Run(ctx context.Context, a *app) error {
	label, err := a.store.GetLabel(ctx, c.SHA256)
	if err != nil {
		return err
	}
	data, err := bindle.MarshalLabel(label)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

// SearchCmd queries the search index.
type SearchCmd struct {
	Name    string `arg:"" help:"Exact bindle name."`
	Version string `arg:"" optional:"" help:"Exact version. All versions when omitted."`
	Yanked  bool   `help:"Include yanked invoices."`
}

func (c *SearchCmd) Run(ctx context.Context, a *app) error {
	if a.index == nil {
		return errors.New("search requires --index")
	}
	found, err := a.index.Query(ctx, c.Name, c.Version, search.QueryOptions{Yanked: c.Yanked})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tYANKED\tPARCELS")
	for _, inv := range found {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", inv.Bindle.Name, inv.Bindle.Version, inv.IsYanked(), len(inv.Parcels))
	}
	return tw.Flush()
}

// SyncCmd delivers queued index events.
type SyncCmd struct {
	Once           bool   `help:"Deliver pending events once and exit."`
	MetricsAddress string `help:"Serve Prometheus metrics on this address while running." env:"BINDLE_METRICS_ADDRESS"`
}

func (c *SyncCmd) Run(ctx context.Context, a *app) error {
	if a.outbox == nil {
		return errors.New("sync requires --outbox")
	}

	if c.Once {
		n, err := a.outbox.Drain(ctx)
		a.logger.Info("outbox drained", "delivered", n)
		return err
	}

	if c.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.PrometheusHandler())
		srv := &http.Server{
			Addr:              c.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", telemetry.ErrAttr(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.logger.Info("serving metrics", "address", c.MetricsAddress)
	}

	a.logger.Info("delivering index events")
	if err := a.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
