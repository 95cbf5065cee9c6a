package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/clubos/internal/domain/scope"
	"github.com/xenking/clubos/internal/handler"
	"github.com/xenking/clubos/internal/storage/postgres"
)

type facilitySeed struct {
	id      string
	name    string
	primary bool
}

const (
	demoTenantID   = "demo-club"
	demoTenantName = "Demo Sports Club"
)

var demoFacilities = []facilitySeed{
	{id: "demo-club-bar", name: "Club Bar", primary: true},
	{id: "demo-club-pitch", name: "Football Pitch"},
}

func main() {
	var (
		databaseURL string
		jwtSecret   string
		userID      string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "HMAC secret for the printed token (or CLUBOS_JWT_SECRET env)")
	flag.StringVar(&userID, "user-id", "demo-staff", "staff user id to seed")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed token")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("CLUBOS_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, userID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")

	if jwtSecret == "" {
		slog.Warn("no JWT secret given, skipping token")
		return
	}
	token, err := handler.NewToken([]byte(jwtSecret), userID, tokenTTL)
	if err != nil {
		slog.Error("sign token failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Println(token)
}

func run(ctx context.Context, databaseURL, userID string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewScopeStore(pool)

	if err := store.UpsertTenant(ctx, demoTenantID, demoTenantName); err != nil {
		return errors.Wrap(err, "upsert tenant")
	}
	slog.Info("upserted tenant", slog.String("id", demoTenantID))

	for _, f := range demoFacilities {
		if err := store.UpsertFacility(ctx, scope.Facility{
			ID:        f.id,
			TenantID:  demoTenantID,
			IsPrimary: f.primary,
		}, f.name); err != nil {
			return errors.Wrapf(err, "upsert facility %s", f.id)
		}
		slog.Info("upserted facility", slog.String("id", f.id), slog.String("name", f.name))
	}

	if err := store.AddTenantMember(ctx, userID, demoTenantID, true); err != nil {
		return errors.Wrap(err, "add tenant member")
	}
	if err := store.AddFacilityMember(ctx, userID, demoFacilities[0].id, true); err != nil {
		return errors.Wrap(err, "add facility member")
	}
	slog.Info("seeded staff user",
		slog.String("user_id", userID),
		slog.String("facility_id", demoFacilities[0].id),
	)

	return nil
}
