package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/slye-labs/slye-backend/api/controllers"
	webhookcontrollers "github.com/slye-labs/slye-backend/api/controllers/webhooks"
	"github.com/slye-labs/slye-backend/api/middleware"
	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/internal/generations"
	"github.com/slye-labs/slye-backend/internal/niches"
	"github.com/slye-labs/slye-backend/internal/payments"
	"github.com/slye-labs/slye-backend/pkg/config"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/pagination"
)

const generationSubmitPolicy = "generations"

// GenerationService is the orchestrator surface exposed over HTTP.
type GenerationService interface {
	Start(ctx context.Context, input generations.StartInput) (generations.StartResult, error)
	Sync(ctx context.Context, id, userID uuid.UUID) (*models.Generation, error)
	SyncByTaskID(ctx context.Context, taskID string) (*models.Generation, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (generations.Page, error)
}

type CreditService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (credits.TransactionPage, error)
}

type PaymentService interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, packageID string) (string, error)
	Confirm(ctx context.Context, sessionID string, callerID uuid.UUID) (credits.GrantResult, error)
	Catalog() *payments.Catalog
}

type StripeVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Store backs request idempotency and submission rate limiting.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type Params struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Store         Store
	Generations   GenerationService
	Niches        *niches.Registry
	Credits       CreditService
	Payments      PaymentService
	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeEvents  StripeVerifier
	WebhookGuard  WebhookGuard
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func (p Params) validate() error {
	switch {
	case p.Config == nil:
		return errors.New("router config is required")
	case p.Logger == nil:
		return errors.New("router logger is required")
	case p.Store == nil:
		return errors.New("router store is required")
	case p.Generations == nil:
		return errors.New("generation service is required")
	case p.Niches == nil:
		return errors.New("niche registry is required")
	case p.Credits == nil:
		return errors.New("credit service is required")
	case p.Payments == nil:
		return errors.New("payment service is required")
	}
	return nil
}

func NewRouter(p Params) (http.Handler, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	cfg := p.Config
	logg := p.Logger
	origin := cfg.App.Origin()

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(origin),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Store,
		}, logg))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeEvents, p.WebhookGuard, logg))
		r.Post("/callbacks/kie", controllers.KieCallback(p.Generations, cfg.Kie.CallbackToken, logg))

		r.Get("/generation-types", controllers.ListGenerationTypes(p.Niches))
		r.Get("/credits/packages", controllers.ListCreditPackages(p.Payments.Catalog()))

		// Browser navigations: these authenticate themselves and answer with redirects.
		r.Get("/credits/checkout", controllers.CreditCheckout(p.Payments, cfg.Auth, origin, logg))
		r.Get("/credits/confirm", controllers.ConfirmCheckout(p.Payments, cfg.Auth, origin, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Auth, logg))

			r.Route("/generations", func(r chi.Router) {
				submitPolicy := middleware.NewRateLimitPolicy(generationSubmitPolicy, cfg.Generation.SubmitLimit, cfg.Generation.SubmitWindow)
				r.With(
					middleware.Idempotency(p.Store, cfg.Generation.IdempotencyTTL, logg),
					middleware.UserRateLimit(submitPolicy, p.Store, logg),
				).Post("/", controllers.CreateGeneration(p.Generations, logg))
				r.Get("/", controllers.ListGenerations(p.Generations, logg))
				r.Get("/{id}", controllers.GetGeneration(p.Generations, logg))
			})

			r.Route("/credits", func(r chi.Router) {
				r.Get("/balance", controllers.CreditBalance(p.Credits, logg))
				r.Get("/transactions", controllers.ListCreditTransactions(p.Credits, logg))
			})
		})
	})

	return r, nil
}
