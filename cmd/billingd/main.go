package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/propkit/billing/modules/billing"
	"github.com/propkit/billing/pkg/catalog"
	"github.com/propkit/billing/pkg/config"
	"github.com/propkit/billing/pkg/entitlement"
	"github.com/propkit/billing/pkg/httpserver"
	"github.com/propkit/billing/pkg/logger"
	"github.com/propkit/billing/pkg/pg"
	"github.com/propkit/billing/pkg/planchange"
	"github.com/propkit/billing/pkg/redis"
	"github.com/propkit/billing/pkg/subscription"
	"github.com/propkit/billing/pkg/upsell"
)

type appConfig struct {
	Logger logger.Config
	HTTP   httpserver.Config
	PG     pg.Config
	Redis  redis.Config
	Paddle subscription.PaddleConfig

	PlansPath    string `env:"BILLING_PLANS_PATH" envDefault:"plans.yaml"`
	CooldownDays int    `env:"BILLING_COOLDOWN_DAYS" envDefault:"10"`
}

func main() {
	ctx := context.Background()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.FromConfig(cfg.Logger, logger.WithAttr(slog.String("service", "billingd")))

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "billingd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	cat, err := catalog.New(ctx, catalog.NewYAMLSource(cfg.PlansPath))
	if err != nil {
		return err
	}

	provider, err := subscription.NewPaddleProvider(cfg.Paddle)
	if err != nil {
		return err
	}

	subStore := billing.NewPGSubscriptionStore(pool)
	recorder := billing.NewPGChangeRecorder(pool)
	upsellStore := billing.NewPGUpsellStore(pool)
	admins := billing.AdminVerifier(pool)

	lifecycle := subscription.NewService(subStore, provider,
		subscription.NewRedisDeduper(rdb, 0),
		subscription.WithLogger(log))

	orchestrator := planchange.New(cat, subStore, provider, recorder, admins,
		planchange.NewRedisChargeLedger(rdb, 0),
		planchange.WithCooldownWindow(time.Duration(cfg.CooldownDays)*24*time.Hour),
		planchange.WithLogger(log))

	resolver := entitlement.NewResolver(cat, subStore, billing.AccountVerifier(pool),
		entitlement.WithCounter(catalog.ResourceListings, billing.ActiveListingsCounter(pool)),
		entitlement.WithCounter(catalog.ResourceFeaturedListings, billing.FeaturedThisMonthCounter(upsellStore, nil)))

	upsells := upsell.NewService(upsellCatalog(), upsellStore, subStore, provider,
		upsell.WithLogger(log))

	r := chi.NewRouter()
	r.Get("/healthz", httpserver.HealthHandler(log))
	r.Get("/readyz", httpserver.HealthHandler(log, pg.Healthcheck(pool), redis.Healthcheck(rdb)))
	r.Route("/billing", func(r chi.Router) {
		r.Use(billing.ActorFromHeaders)
		r.Mount("/", billing.Router(billing.Services{
			Orchestrator: orchestrator,
			Lifecycle:    lifecycle,
			Resolver:     resolver,
			Upsells:      upsells,
			Provider:     provider,
			Subs:         subStore,
			Log:          log,
		}))
	})

	return httpserver.New(cfg.HTTP, log).Run(ctx, r)
}

// upsellCatalog is the fixed add-on sheet. Prices are charged through the
// processor at purchase time; revisions ship as deployments.
func upsellCatalog() []upsell.Upsell {
	return []upsell.Upsell{
		{
			ID:        "extra_photos",
			Name:      "Extra photo slots",
			PriceID:   "pri_upsell_extra_photos",
			Price:     catalog.Money{Amount: 999, Currency: "USD"},
			Recurring: true,
			Duration:  30 * 24 * time.Hour,
		},
		{
			ID:       "featured_7d",
			Name:     "Featured listing, 7 days",
			PriceID:  "pri_upsell_featured_7d",
			Price:    catalog.Money{Amount: 2900, Currency: "USD"},
			Duration: 7 * 24 * time.Hour,
		},
		{
			ID:       "featured_30d",
			Name:     "Featured listing, 30 days",
			PriceID:  "pri_upsell_featured_30d",
			Price:    catalog.Money{Amount: 9900, Currency: "USD"},
			Duration: 30 * 24 * time.Hour,
		},
		{
			ID:        "open_house_pack",
			Name:      "Extra open house events",
			PriceID:   "pri_upsell_open_house",
			Price:     catalog.Money{Amount: 1900, Currency: "USD"},
			Recurring: true,
			Duration:  30 * 24 * time.Hour,
		},
	}
}
