// Package generations orchestrates generation requests: credit reservation,
// backend submission with compensation, and status reconciliation.
package generations

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/internal/niches"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/metrics"
	"github.com/slye-labs/slye-backend/pkg/outbox"
	"github.com/slye-labs/slye-backend/pkg/outbox/payloads"
	"github.com/slye-labs/slye-backend/pkg/pagination"
)

const (
	msgStartFailed      = "Failed to start generation."
	msgStartRateLimited = "Service rate limited. Please retry."
	msgSyncRateLimited  = "Service rate limited. Retry shortly."
	msgSyncFailed       = "Failed to fetch generation status."
	msgNotFound         = "Generation not found."
	msgMissingOutput    = "Missing output from backend."
	msgBackendFailed    = "Generation failed"
	msgCreditUpdate     = "Credit update failed."
	msgNeverSubmitted   = "Generation did not start. Credits refunded."
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ledger is the part of credits.Service the orchestrator depends on.
type ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, input credits.ReserveInput) error
	Refund(ctx context.Context, tx *gorm.DB, input credits.RefundInput) (int, error)
}

// Service is the generation orchestrator.
type Service struct {
	db          txRunner
	repo        Repository
	ledger      ledger
	niches      *niches.Registry
	backends    *backends.Registry
	events      eventEmitter
	metrics     *metrics.DomainMetrics
	logg        *logger.Logger
	callbackURL string
	now         func() time.Time
}

type ServiceParams struct {
	DB          txRunner
	Repository  Repository
	Ledger      ledger
	Niches      *niches.Registry
	Backends    *backends.Registry
	Outbox      eventEmitter
	Metrics     *metrics.DomainMetrics
	Logger      *logger.Logger
	CallbackURL string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("generations db is required")
	case params.Repository == nil:
		return nil, errors.New("generations repository is required")
	case params.Ledger == nil:
		return nil, errors.New("credit ledger is required")
	case params.Niches == nil:
		return nil, errors.New("niche registry is required")
	case params.Backends == nil:
		return nil, errors.New("backend registry is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox service is required")
	}
	if err := params.Niches.Validate(params.Backends); err != nil {
		return nil, err
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "generations", Output: io.Discard})
	}
	return &Service{
		db:          params.DB,
		repo:        params.Repository,
		ledger:      params.Ledger,
		niches:      params.Niches,
		backends:    params.Backends,
		events:      params.Outbox,
		metrics:     params.Metrics,
		logg:        logg,
		callbackURL: params.CallbackURL,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// StartInput is a generation request from an authenticated user.
type StartInput struct {
	UserID  uuid.UUID
	Type    string
	Prompt  string
	Options models.VideoOptions
}

// StartResult is returned once the backend accepted the task.
type StartResult struct {
	ID     uuid.UUID              `json:"id"`
	TaskID string                 `json:"taskId"`
	Status enums.GenerationStatus `json:"status"`
}

// Page is one page of a user's generations.
type Page struct {
	Generations []models.Generation
	NextCursor  string
}

// Start reserves credits, submits the task and compensates on submission failure.
// Insufficient credits never create a generation row or reach the backend.
func (s *Service) Start(ctx context.Context, input StartInput) (StartResult, error) {
	cfg, err := s.niches.GetConfig(input.Type)
	if err != nil {
		return StartResult{}, pkgerrors.New(pkgerrors.CodeValidation, "Invalid generation type: "+input.Type)
	}
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return StartResult{}, pkgerrors.New(pkgerrors.CodeValidation, "Prompt is required.")
	}
	opts := cfg.MergeOptions(input.Options)
	if opts.AspectRatio != "" && !opts.AspectRatio.IsValid() {
		return StartResult{}, pkgerrors.New(pkgerrors.CodeValidation, "Invalid aspect ratio: "+string(opts.AspectRatio))
	}
	backend, err := s.backends.Get(cfg.Backend)
	if err != nil {
		return StartResult{}, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, msgStartFailed)
	}

	gen := &models.Generation{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Type:        cfg.Type,
		Prompt:      prompt,
		Status:      enums.GenerationStatusPending,
		CreditsUsed: cfg.CreditCost,
		Metadata: models.GenerationMetadata{
			Backend:      string(backend.Name()),
			Model:        cfg.Model,
			VideoOptions: opts,
		},
	}
	ctx = s.logg.WithGenerationID(s.logg.WithUserID(ctx, input.UserID.String()), gen.ID.String())

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, gen); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, msgStartFailed)
		}
		return s.ledger.Reserve(ctx, tx, credits.ReserveInput{
			UserID:       input.UserID,
			Amount:       cfg.CreditCost,
			Description:  cfg.UsageDescription(),
			GenerationID: &gen.ID,
		})
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeInsufficientCredits) {
			s.metrics.GenerationStarted(cfg.Type, metrics.OutcomeRejected)
			return StartResult{}, err
		}
		s.metrics.GenerationStarted(cfg.Type, metrics.OutcomeFailure)
		s.recordReservationFailure(ctx, gen)
		return StartResult{}, err
	}

	task, err := backend.CreateTask(ctx, prompt, cfg.Model, backends.Options{
		AspectRatio: string(opts.AspectRatio),
		Mode:        opts.Mode,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		rateLimited := backends.IsRateLimited(err)
		s.metrics.BackendCall(string(backend.Name()), "create_task", callOutcome(rateLimited))
		s.logg.Error(ctx, "generation submission failed", err)
		reason := msgStartFailed
		if rateLimited {
			reason = msgStartRateLimited
		}
		if compErr := s.compensate(ctx, gen, cfg, reason); compErr != nil {
			s.logg.Error(ctx, "generation compensation failed", compErr)
		}
		if rateLimited {
			s.metrics.GenerationStarted(cfg.Type, metrics.OutcomeRateLimited)
			return StartResult{}, pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, msgStartRateLimited)
		}
		s.metrics.GenerationStarted(cfg.Type, metrics.OutcomeFailure)
		return StartResult{}, pkgerrors.Wrap(pkgerrors.CodeBackend, err, msgStartFailed)
	}
	s.metrics.BackendCall(string(backend.Name()), "create_task", metrics.OutcomeSuccess)

	meta := gen.Metadata
	meta.TaskID = task.TaskID
	updated, err := s.repo.UpdateIfActive(ctx, gen.ID, map[string]any{
		"status":   enums.GenerationStatusProcessing,
		"metadata": meta,
	})
	if err != nil {
		s.metrics.GenerationStarted(cfg.Type, metrics.OutcomeFailure)
		s.logg.Error(s.logg.WithTaskID(ctx, task.TaskID), "failed to record submitted task", err)
		return StartResult{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, msgStartFailed)
	}
	if !updated {
		s.logg.Warn(s.logg.WithTaskID(ctx, task.TaskID), "generation left active state before submission was recorded")
	}

	s.metrics.GenerationStarted(cfg.Type, metrics.OutcomeSuccess)
	s.logg.Info(s.logg.WithTaskID(ctx, task.TaskID), "generation submitted")
	return StartResult{ID: gen.ID, TaskID: task.TaskID, Status: enums.GenerationStatusProcessing}, nil
}

// compensate marks gen failed and refunds its credits in one transaction.
// The conditional status update makes it safe to run twice.
func (s *Service) compensate(ctx context.Context, gen *models.Generation, cfg niches.Config, reason string) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateIfActive(ctx, gen.ID, map[string]any{
			"status":        enums.GenerationStatusFailed,
			"error_message": reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := s.ledger.Refund(ctx, tx, credits.RefundInput{
			UserID:       gen.UserID,
			Amount:       gen.CreditsUsed,
			Description:  cfg.RefundDescription(),
			GenerationID: &gen.ID,
		}); err != nil {
			return err
		}
		gen.Status = enums.GenerationStatusFailed
		gen.ErrorMessage = &reason
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGenerationFailed,
			AggregateType: enums.AggregateGeneration,
			AggregateID:   gen.ID,
			Data: payloads.GenerationFailedEvent{
				GenerationID:    gen.ID,
				UserID:          gen.UserID,
				Type:            gen.Type,
				Backend:         gen.Metadata.Backend,
				Status:          enums.GenerationStatusFailed,
				CreditsUsed:     gen.CreditsUsed,
				ErrorMessage:    reason,
				CreditsRefunded: gen.CreditsUsed,
			},
		})
	})
}

// recordReservationFailure keeps a failed row for a reservation that did not commit.
// No credits moved, so nothing is refunded.
func (s *Service) recordReservationFailure(ctx context.Context, gen *models.Generation) {
	msg := msgCreditUpdate
	failed := *gen
	failed.Status = enums.GenerationStatusFailed
	failed.ErrorMessage = &msg
	if err := s.repo.Create(ctx, &failed); err != nil {
		s.logg.Error(ctx, "failed to record reservation failure", err)
	}
}

// Get returns the caller's generation without contacting the backend.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*models.Generation, error) {
	gen, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return gen, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (Page, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "Invalid cursor.")
	}
	rows, next, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to list generations")
	}
	return Page{Generations: rows, NextCursor: next}, nil
}

// Sync reconciles the caller's generation with its backend. Another user's
// generation is reported as not found.
func (s *Service) Sync(ctx context.Context, id, userID uuid.UUID) (*models.Generation, error) {
	gen, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return s.reconcile(s.logg.WithGenerationID(ctx, id.String()), gen)
}

// SyncByTaskID reconciles the generation that owns a backend task. Used by
// provider callbacks and the cron worker, which are not user scoped.
func (s *Service) SyncByTaskID(ctx context.Context, taskID string) (*models.Generation, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "taskId is required")
	}
	gen, err := s.repo.FindByTaskID(ctx, taskID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return s.reconcile(s.logg.WithGenerationID(ctx, gen.ID.String()), gen)
}

// SyncRecord reconciles an already loaded generation for the cron worker.
// A row that was checked but not moved, or whose check failed for a reason
// other than throttling, gets its updated_at bumped so it rotates to the
// back of the next batch.
func (s *Service) SyncRecord(ctx context.Context, gen *models.Generation) (*models.Generation, error) {
	ctx = s.logg.WithGenerationID(ctx, gen.ID.String())
	before := gen.Status
	synced, err := s.reconcile(ctx, gen)
	switch {
	case err != nil && pkgerrors.Is(err, pkgerrors.CodeRateLimit):
		return nil, err
	case err != nil:
		s.touch(ctx, gen.ID)
		return nil, err
	case !synced.Status.IsTerminal() && synced.Status == before:
		s.touch(ctx, gen.ID)
	}
	return synced, nil
}

func (s *Service) touch(ctx context.Context, id uuid.UUID) {
	if _, err := s.repo.Touch(ctx, id); err != nil {
		s.logg.Error(ctx, "failed to bump generation check time", err)
	}
}

func (s *Service) reconcile(ctx context.Context, gen *models.Generation) (*models.Generation, error) {
	if gen.Status.IsTerminal() {
		return gen, nil
	}
	taskID := gen.Metadata.ExternalTaskID()
	if taskID == "" {
		return gen, nil
	}

	backend, fellBack := s.backends.Resolve(backends.Name(gen.Metadata.Backend))
	if fellBack {
		s.logg.Warn(s.logg.WithField(ctx, "recorded_backend", gen.Metadata.Backend), "recorded backend not registered, using default")
	}

	status, err := backend.GetTaskStatus(ctx, taskID)
	if err != nil {
		rateLimited := backends.IsRateLimited(err)
		s.metrics.BackendCall(string(backend.Name()), "get_task_status", callOutcome(rateLimited))
		if rateLimited {
			return nil, pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, msgSyncRateLimited)
		}
		s.logg.Error(s.logg.WithTaskID(ctx, taskID), "generation status fetch failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, msgSyncFailed)
	}
	s.metrics.BackendCall(string(backend.Name()), "get_task_status", metrics.OutcomeSuccess)

	next, output, errMsg := mapTaskStatus(status)
	if !gen.Status.CanTransitionTo(next) {
		// a requeued task keeps its processing row
		next, output, errMsg = gen.Status, "", ""
	}
	s.metrics.GenerationSynced(string(backend.Name()), string(next))
	if next == gen.Status && (output == "" || stringValue(gen.OutputURL) == output) {
		return gen, nil
	}

	updates := map[string]any{"status": next}
	if output != "" {
		updates["output_url"] = output
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}

	applied := false
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIfActive(ctx, gen.ID, updates)
		if err != nil || !ok {
			return err
		}
		applied = true
		gen.Status = next
		if output != "" {
			gen.OutputURL = &output
		}
		if errMsg != "" {
			gen.ErrorMessage = &errMsg
		}
		return s.emitTerminal(ctx, tx, gen)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to update generation")
	}
	if !applied {
		// another writer moved the row first; return what it wrote
		latest, err := s.repo.Get(ctx, gen.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to reload generation")
		}
		return latest, nil
	}
	if next.IsTerminal() {
		s.logg.Info(s.logg.WithField(ctx, "status", string(next)), "generation reached terminal state")
	}
	return gen, nil
}

func (s *Service) emitTerminal(ctx context.Context, tx *gorm.DB, gen *models.Generation) error {
	switch gen.Status {
	case enums.GenerationStatusCompleted:
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGenerationCompleted,
			AggregateType: enums.AggregateGeneration,
			AggregateID:   gen.ID,
			Data: payloads.GenerationCompletedEvent{
				GenerationID: gen.ID,
				UserID:       gen.UserID,
				Type:         gen.Type,
				Backend:      gen.Metadata.Backend,
				Model:        gen.Metadata.Model,
				Status:       gen.Status,
				CreditsUsed:  gen.CreditsUsed,
				OutputURL:    stringValue(gen.OutputURL),
			},
		})
	case enums.GenerationStatusFailed:
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGenerationFailed,
			AggregateType: enums.AggregateGeneration,
			AggregateID:   gen.ID,
			Data: payloads.GenerationFailedEvent{
				GenerationID: gen.ID,
				UserID:       gen.UserID,
				Type:         gen.Type,
				Backend:      gen.Metadata.Backend,
				Status:       gen.Status,
				CreditsUsed:  gen.CreditsUsed,
				ErrorMessage: stringValue(gen.ErrorMessage),
			},
		})
	}
	return nil
}

// ListProcessing returns processing generations not touched since cutoff.
func (s *Service) ListProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.Generation, error) {
	return s.repo.ListByStatus(ctx, enums.GenerationStatusProcessing, cutoff, limit)
}

// FailStalePending fails and refunds pending generations older than olderThan.
// A pending row that old never received a task id, so its credits are returned.
func (s *Service) FailStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	rows, err := s.repo.ListByStatus(ctx, enums.GenerationStatusPending, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to list stale generations")
	}
	var errs error
	failed := 0
	for i := range rows {
		gen := &rows[i]
		if gen.Metadata.ExternalTaskID() != "" {
			continue
		}
		cfg, err := s.niches.GetConfig(gen.Type)
		if err != nil {
			cfg = niches.Config{Type: gen.Type, DisplayName: gen.Type}
		}
		genCtx := s.logg.WithGenerationID(ctx, gen.ID.String())
		if err := s.compensate(genCtx, gen, cfg, msgNeverSubmitted); err != nil {
			s.logg.Error(genCtx, "stale generation compensation failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if gen.Status == enums.GenerationStatusFailed {
			failed++
		}
	}
	return failed, errs
}

func mapTaskStatus(status backends.TaskStatus) (enums.GenerationStatus, string, string) {
	switch status.State {
	case backends.TaskCompleted:
		if strings.TrimSpace(status.OutputURL) == "" {
			return enums.GenerationStatusFailed, "", msgMissingOutput
		}
		return enums.GenerationStatusCompleted, status.OutputURL, ""
	case backends.TaskFailed:
		msg := strings.TrimSpace(status.Error)
		if msg == "" {
			msg = msgBackendFailed
		}
		return enums.GenerationStatusFailed, "", msg
	case backends.TaskProcessing:
		return enums.GenerationStatusProcessing, "", ""
	default:
		return enums.GenerationStatusPending, "", ""
	}
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msgNotFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to load generation")
}

func callOutcome(rateLimited bool) string {
	if rateLimited {
		return metrics.OutcomeRateLimited
	}
	return metrics.OutcomeFailure
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
