// Command order-import loads historical orders from gzipped JSONL exports
// into an open register session.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/clubos/internal/domain/money"
	"github.com/xenking/clubos/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	recordBuffer  = 1024
)

func main() {
	var (
		dataDir     string
		sessionID   string
		databaseURL string
		couponValue string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz order exports")
	flag.StringVar(&sessionID, "session-id", "", "open register session to import into")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponValue, "coupon-value", money.CouponValue.String(), "currency value of one coupon")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if sessionID == "" {
		slog.Error("--session-id is required")
		os.Exit(1)
	}
	coupon, err := decimal.NewFromString(couponValue)
	if err != nil || coupon.IsNegative() {
		slog.Error("invalid --coupon-value", slog.String("value", couponValue))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, sessionID, databaseURL, money.NewCalculator(coupon)); err != nil {
		slog.Error("order import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, dataDir, sessionID, databaseURL string, calc money.Calculator) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list exports")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}
	sort.Strings(files)

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	session, err := postgres.NewRegisterStore(pool).Get(ctx, sessionID)
	if err != nil {
		return errors.Wrapf(err, "load session %s", sessionID)
	}
	if !session.Open() {
		return errors.Errorf("session %s is closed", sessionID)
	}

	orders := postgres.NewOrderStore(pool)
	existing, err := orders.ListBySession(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "list session orders")
	}

	im := newImporter(orders, calc, session, bloomCapacity)
	ids := make([]string, len(existing))
	for i, o := range existing {
		ids[i] = o.ID
	}
	im.seed(ids)

	slog.Info("importing orders",
		slog.String("session_id", sessionID),
		slog.Int("files", len(files)),
		slog.Int("existing", len(existing)),
	)

	if err := importFiles(ctx, files, im); err != nil {
		return err
	}

	slog.Info("order import completed",
		slog.Int("imported", im.stats.Imported),
		slog.Int("duplicates", im.stats.Duplicates),
	)
	return nil
}

// importFiles decodes files concurrently and feeds a single writer, so
// duplicate detection sees records in one order.
func importFiles(ctx context.Context, files []string, im *importer) error {
	g, ctx := errgroup.WithContext(ctx)
	records := make(chan record, recordBuffer)

	decoders, dctx := errgroup.WithContext(ctx)
	for _, f := range files {
		decoders.Go(func() error {
			return streamFile(dctx, f, func(rec record) error {
				select {
				case records <- rec:
					return nil
				case <-dctx.Done():
					return dctx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		defer close(records)
		return decoders.Wait()
	})

	g.Go(func() error {
		var n int
		for rec := range records {
			if err := im.add(ctx, rec); err != nil {
				return errors.Wrapf(err, "import order %s", rec.ID)
			}
			n++
			if n%progressEvery == 0 {
				slog.Info("import progress", slog.Int("records", n))
			}
		}
		return nil
	})

	return g.Wait()
}
