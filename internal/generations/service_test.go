package generations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/internal/niches"
	"github.com/slye-labs/slye-backend/pkg/db"
	"github.com/slye-labs/slye-backend/pkg/db/dbtest"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/outbox"
)

type fakeBackend struct {
	mu          sync.Mutex
	name        backends.Name
	createErr   error
	taskID      string
	status      backends.TaskStatus
	statusErr   error
	createCalls int
	statusCalls int
	lastOpts    backends.Options
}

func (f *fakeBackend) Name() backends.Name { return f.name }

func (f *fakeBackend) CreateTask(_ context.Context, _, _ string, opts backends.Options) (backends.CreateTaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastOpts = opts
	if f.createErr != nil {
		return backends.CreateTaskResult{}, f.createErr
	}
	return backends.CreateTaskResult{TaskID: f.taskID}, nil
}

func (f *fakeBackend) GetTaskStatus(_ context.Context, _ string) (backends.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return f.status, f.statusErr
}

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	backend *fakeBackend
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromGorm(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	ledger, err := credits.NewService(credits.ServiceParams{
		DB:         client,
		Repository: credits.NewRepository(conn),
		Outbox:     events,
	})
	require.NoError(t, err)

	backend := &fakeBackend{name: backends.Kie, taskID: "task-123"}
	backendRegistry, err := backends.NewRegistry(backends.Kie, backend)
	require.NoError(t, err)
	nicheRegistry, err := niches.NewDefaultRegistry()
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:         client,
		Repository: NewRepository(conn),
		Ledger:     ledger,
		Niches:     nicheRegistry,
		Backends:   backendRegistry,
		Outbox:     events,
	})
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, backend: backend}
}

func seedProfile(t *testing.T, conn *gorm.DB, balance int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, conn.Create(&models.Profile{ID: id, Credits: balance}).Error)
	return id
}

func seedGeneration(t *testing.T, conn *gorm.DB, userID uuid.UUID, status enums.GenerationStatus, meta models.GenerationMetadata) *models.Generation {
	t.Helper()
	gen := &models.Generation{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        niches.TypeASMRVideo,
		Prompt:      "rain on a tin roof",
		Status:      status,
		CreditsUsed: 5,
		Metadata:    meta,
	}
	require.NoError(t, conn.Create(gen).Error)
	return gen
}

func balanceOf(t *testing.T, conn *gorm.DB, userID uuid.UUID) int {
	t.Helper()
	var p models.Profile
	require.NoError(t, conn.Where("id = ?", userID).First(&p).Error)
	return p.Credits
}

func countRows(t *testing.T, conn *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func loadGeneration(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Generation {
	t.Helper()
	var gen models.Generation
	require.NoError(t, conn.Where("id = ?", id).First(&gen).Error)
	return gen
}

func startInput(userID uuid.UUID) StartInput {
	return StartInput{UserID: userID, Type: niches.TypeASMRVideo, Prompt: "  soap cutting  "}
}

func TestStartReservesAndSubmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := seedProfile(t, f.conn, 12)

	res, err := f.svc.Start(ctx, startInput(userID))
	require.NoError(t, err)
	assert.Equal(t, "task-123", res.TaskID)
	assert.Equal(t, enums.GenerationStatusProcessing, res.Status)
	assert.Equal(t, 7, balanceOf(t, f.conn, userID))

	gen := loadGeneration(t, f.conn, res.ID)
	assert.Equal(t, enums.GenerationStatusProcessing, gen.Status)
	assert.Equal(t, "soap cutting", gen.Prompt)
	assert.Equal(t, 5, gen.CreditsUsed)
	assert.Equal(t, "task-123", gen.Metadata.TaskID)
	assert.Equal(t, "kie", gen.Metadata.Backend)
	assert.Equal(t, "grok-imagine/text-to-video", gen.Metadata.Model)
	assert.Equal(t, enums.AspectRatioPortrait, gen.Metadata.AspectRatio)
	assert.Equal(t, "normal", gen.Metadata.Mode)

	var usage models.CreditTransaction
	require.NoError(t, f.conn.Where("generation_id = ?", res.ID).First(&usage).Error)
	assert.Equal(t, -5, usage.Amount)
	assert.Equal(t, enums.CreditTransactionUsage, usage.Type)
	require.NotNil(t, usage.Description)
	assert.Equal(t, "ASMR Video generation", *usage.Description)

	assert.Equal(t, "9:16", f.backend.lastOpts.AspectRatio)
}

func TestStartInsufficientCreditsNeverSubmits(t *testing.T) {
	f := newFixture(t)
	userID := seedProfile(t, f.conn, 4)

	_, err := f.svc.Start(context.Background(), startInput(userID))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientCredits))
	assert.Equal(t, 402, pkgerrors.As(err).Status())
	assert.Equal(t, "Insufficient credits.", pkgerrors.As(err).Message())

	assert.Zero(t, f.backend.createCalls)
	assert.Zero(t, countRows(t, f.conn, &models.Generation{}, "user_id = ?", userID))
	assert.Zero(t, countRows(t, f.conn, &models.CreditTransaction{}, "user_id = ?", userID))
	assert.Equal(t, 4, balanceOf(t, f.conn, userID))
}

func TestStartRefundsOnBackendFailure(t *testing.T) {
	f := newFixture(t)
	userID := seedProfile(t, f.conn, 10)
	f.backend.createErr = &backends.Error{Backend: backends.Kie, Op: "createTask", StatusCode: 500, Message: "boom"}

	_, err := f.svc.Start(context.Background(), startInput(userID))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeBackend))
	assert.Equal(t, "Failed to start generation.", pkgerrors.As(err).Message())
	assert.Equal(t, 500, pkgerrors.As(err).Status())

	assert.Equal(t, 10, balanceOf(t, f.conn, userID))

	var gen models.Generation
	require.NoError(t, f.conn.Where("user_id = ?", userID).First(&gen).Error)
	assert.Equal(t, enums.GenerationStatusFailed, gen.Status)
	require.NotNil(t, gen.ErrorMessage)
	assert.Equal(t, "Failed to start generation.", *gen.ErrorMessage)

	var txs []models.CreditTransaction
	require.NoError(t, f.conn.Where("generation_id = ?", gen.ID).Order("amount ASC").Find(&txs).Error)
	require.Len(t, txs, 2)
	assert.Equal(t, enums.CreditTransactionUsage, txs[0].Type)
	assert.Equal(t, enums.CreditTransactionRefund, txs[1].Type)
	assert.Equal(t, -txs[0].Amount, txs[1].Amount)
	require.NotNil(t, txs[1].Description)
	assert.Equal(t, "ASMR Video generation failed", *txs[1].Description)

	assert.EqualValues(t, 1, countRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventGenerationFailed))
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventCreditsRefunded))
}

func TestStartRateLimitedSurfaces429(t *testing.T) {
	f := newFixture(t)
	userID := seedProfile(t, f.conn, 10)
	f.backend.createErr = &backends.Error{Backend: backends.Kie, Op: "createTask", StatusCode: 429, Err: backends.ErrRateLimited}

	_, err := f.svc.Start(context.Background(), startInput(userID))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRateLimit))
	assert.Equal(t, "Service rate limited. Please retry.", pkgerrors.As(err).Message())
	assert.Equal(t, 10, balanceOf(t, f.conn, userID))
}

func TestStartStoresCallerFacingFailureMessage(t *testing.T) {
	f := newFixture(t)
	userID := seedProfile(t, f.conn, 10)
	f.backend.createErr = &backends.Error{
		Backend:    backends.Kie,
		Op:         "createTask",
		StatusCode: 502,
		Message:    "<html>nginx upstream 10.0.3.7:8080 timeout</html>",
	}

	_, err := f.svc.Start(context.Background(), startInput(userID))
	require.Error(t, err)

	var gen models.Generation
	require.NoError(t, f.conn.Where("user_id = ?", userID).First(&gen).Error)
	require.NotNil(t, gen.ErrorMessage)
	assert.Equal(t, "Failed to start generation.", *gen.ErrorMessage)

	var event models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventGenerationFailed).First(&event).Error)
	assert.NotContains(t, string(event.Payload), "nginx")
	assert.NotContains(t, string(event.Payload), "10.0.3.7")
}

func TestStartRateLimitedStoresRetryMessage(t *testing.T) {
	f := newFixture(t)
	userID := seedProfile(t, f.conn, 10)
	f.backend.createErr = &backends.Error{Backend: backends.Kie, Op: "createTask", StatusCode: 429, Message: "quota exceeded for key sk-123", Err: backends.ErrRateLimited}

	_, err := f.svc.Start(context.Background(), startInput(userID))
	require.Error(t, err)

	var gen models.Generation
	require.NoError(t, f.conn.Where("user_id = ?", userID).First(&gen).Error)
	require.NotNil(t, gen.ErrorMessage)
	assert.Equal(t, "Service rate limited. Please retry.", *gen.ErrorMessage)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	userID := seedProfile(t, f.conn, 10)

	cases := []struct {
		name  string
		input StartInput
		msg   string
	}{
		{name: "unknown type", input: StartInput{UserID: userID, Type: "podcast", Prompt: "hi"}, msg: "Invalid generation type: podcast"},
		{name: "blank prompt", input: StartInput{UserID: userID, Type: niches.TypeGeneral, Prompt: "   "}, msg: "Prompt is required."},
		{name: "bad aspect ratio", input: StartInput{UserID: userID, Type: niches.TypeGeneral, Prompt: "hi", Options: models.VideoOptions{AspectRatio: "5:4"}}, msg: "Invalid aspect ratio: 5:4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Start(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
			assert.Equal(t, tc.msg, pkgerrors.As(err).Message())
		})
	}
	assert.Zero(t, f.backend.createCalls)
	assert.Equal(t, 10, balanceOf(t, f.conn, userID))
}

func TestSyncHidesOtherUsersGenerations(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t1"})

	_, err := f.svc.Sync(context.Background(), gen.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.Equal(t, "Generation not found.", pkgerrors.As(err).Message())
	assert.Zero(t, f.backend.statusCalls)
}

func TestSyncTerminalSkipsBackend(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusCompleted, models.GenerationMetadata{Backend: "kie", TaskID: "t1"})

	for i := 0; i < 3; i++ {
		got, err := f.svc.Sync(context.Background(), gen.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, enums.GenerationStatusCompleted, got.Status)
	}
	assert.Zero(t, f.backend.statusCalls)
}

func TestSyncWithoutTaskIDReturnsCurrentState(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusPending, models.GenerationMetadata{Backend: "kie"})

	got, err := f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.GenerationStatusPending, got.Status)
	assert.Zero(t, f.backend.statusCalls)
}

func TestSyncCompletesAndEmitsEvent(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t1"})
	f.backend.status = backends.TaskStatus{State: backends.TaskCompleted, OutputURL: "https://cdn.example/v.mp4"}

	got, err := f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.GenerationStatusCompleted, got.Status)
	require.NotNil(t, got.OutputURL)
	assert.Equal(t, "https://cdn.example/v.mp4", *got.OutputURL)

	stored := loadGeneration(t, f.conn, gen.ID)
	assert.Equal(t, enums.GenerationStatusCompleted, stored.Status)
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.OutboxEvent{}, "event_type = ? AND aggregate_id = ?", enums.EventGenerationCompleted, gen.ID))

	_, err = f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.statusCalls)
}

func TestSyncCompletedWithoutOutputFails(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t1"})
	f.backend.status = backends.TaskStatus{State: backends.TaskCompleted}

	got, err := f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.GenerationStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Missing output from backend.", *got.ErrorMessage)
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventGenerationFailed))
}

func TestSyncBackendFailureUsesDefaultMessage(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t1"})
	f.backend.status = backends.TaskStatus{State: backends.TaskFailed}

	got, err := f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Generation failed", *got.ErrorMessage)
}

func TestSyncUnchangedSkipsWrite(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t1"})
	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, f.conn.Model(&models.Generation{}).Where("id = ?", gen.ID).UpdateColumn("updated_at", past).Error)
	f.backend.status = backends.TaskStatus{State: backends.TaskProcessing}

	got, err := f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.GenerationStatusProcessing, got.Status)

	stored := loadGeneration(t, f.conn, gen.ID)
	assert.True(t, stored.UpdatedAt.Equal(past), "expected updated_at untouched, got %v", stored.UpdatedAt)
}

func TestSyncNeverMovesProcessingBackToPending(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t1"})
	f.backend.status = backends.TaskStatus{State: backends.TaskPending}

	got, err := f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.GenerationStatusProcessing, got.Status)
	assert.Equal(t, enums.GenerationStatusProcessing, loadGeneration(t, f.conn, gen.ID).Status)

	rows, err := f.svc.ListProcessing(context.Background(), time.Now().UTC().Add(time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, gen.ID, rows[0].ID)

	f.backend.status = backends.TaskStatus{State: backends.TaskCompleted, OutputURL: "https://cdn.example/out.mp4"}
	got, err = f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.GenerationStatusCompleted, got.Status)
}

func TestSyncRecordRotatesCheckedRows(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	age := func(gen *models.Generation) {
		require.NoError(t, f.conn.Model(&models.Generation{}).Where("id = ?", gen.ID).UpdateColumn("updated_at", past).Error)
	}

	t.Run("still processing", func(t *testing.T) {
		gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t-still"})
		age(gen)
		f.backend.status, f.backend.statusErr = backends.TaskStatus{State: backends.TaskProcessing}, nil

		loaded := loadGeneration(t, f.conn, gen.ID)
		_, err := f.svc.SyncRecord(context.Background(), &loaded)
		require.NoError(t, err)
		assert.True(t, loadGeneration(t, f.conn, gen.ID).UpdatedAt.After(past))
	})

	t.Run("malformed payload", func(t *testing.T) {
		gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t-bad"})
		age(gen)
		f.backend.statusErr = &backends.Error{Backend: backends.Kie, Op: "recordInfo", Err: backends.ErrMalformedResponse}

		loaded := loadGeneration(t, f.conn, gen.ID)
		_, err := f.svc.SyncRecord(context.Background(), &loaded)
		require.Error(t, err)
		stored := loadGeneration(t, f.conn, gen.ID)
		assert.Equal(t, enums.GenerationStatusProcessing, stored.Status)
		assert.True(t, stored.UpdatedAt.After(past))
	})

	t.Run("rate limited", func(t *testing.T) {
		gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t-slow"})
		age(gen)
		f.backend.statusErr = &backends.Error{Backend: backends.Kie, Op: "recordInfo", StatusCode: 429, Err: backends.ErrRateLimited}

		loaded := loadGeneration(t, f.conn, gen.ID)
		_, err := f.svc.SyncRecord(context.Background(), &loaded)
		require.Error(t, err)
		assert.True(t, loadGeneration(t, f.conn, gen.ID).UpdatedAt.Equal(past))
	})
}

func TestSyncRateLimitedIsDistinguished(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", TaskID: "t1"})
	f.backend.statusErr = &backends.Error{Backend: backends.Kie, Op: "recordInfo", StatusCode: 429, Err: backends.ErrRateLimited}

	_, err := f.svc.Sync(context.Background(), gen.ID, owner)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRateLimit))
	assert.Equal(t, "Service rate limited. Retry shortly.", pkgerrors.As(err).Message())

	f.backend.statusErr = errors.New("connection reset")
	_, err = f.svc.Sync(context.Background(), gen.ID, owner)
	require.Error(t, err)
	assert.Equal(t, 502, pkgerrors.As(err).Status())
}

func TestSyncFallsBackToDefaultBackend(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "retired", TaskID: "t1"})
	f.backend.status = backends.TaskStatus{State: backends.TaskProcessing}

	_, err := f.svc.Sync(context.Background(), gen.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.statusCalls)
}

func TestSyncByTaskIDMatchesLegacyKey(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	gen := seedGeneration(t, f.conn, owner, enums.GenerationStatusProcessing, models.GenerationMetadata{Backend: "kie", LegacyTaskID: "legacy-9"})
	f.backend.status = backends.TaskStatus{State: backends.TaskCompleted, OutputURL: "https://cdn.example/legacy.mp4"}

	got, err := f.svc.SyncByTaskID(context.Background(), "legacy-9")
	require.NoError(t, err)
	assert.Equal(t, gen.ID, got.ID)
	assert.Equal(t, enums.GenerationStatusCompleted, got.Status)

	_, err = f.svc.SyncByTaskID(context.Background(), "missing")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestFailStalePendingRefunds(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 5)
	stale := seedGeneration(t, f.conn, owner, enums.GenerationStatusPending, models.GenerationMetadata{Backend: "kie"})
	fresh := seedGeneration(t, f.conn, owner, enums.GenerationStatusPending, models.GenerationMetadata{Backend: "kie"})
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.conn.Model(&models.Generation{}).Where("id = ?", stale.ID).UpdateColumn("updated_at", past).Error)

	failed, err := f.svc.FailStalePending(context.Background(), 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 10, balanceOf(t, f.conn, owner))
	assert.Equal(t, enums.GenerationStatusFailed, loadGeneration(t, f.conn, stale.ID).Status)
	assert.Equal(t, enums.GenerationStatusPending, loadGeneration(t, f.conn, fresh.ID).Status)

	failed, err = f.svc.FailStalePending(context.Background(), 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, 10, balanceOf(t, f.conn, owner))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	owner := seedProfile(t, f.conn, 0)
	for i := 0; i < 3; i++ {
		seedGeneration(t, f.conn, owner, enums.GenerationStatusCompleted, models.GenerationMetadata{Backend: "kie"})
	}
	seedGeneration(t, f.conn, uuid.New(), enums.GenerationStatusCompleted, models.GenerationMetadata{Backend: "kie"})

	page, err := f.svc.List(context.Background(), owner, paginationParams(2, ""))
	require.NoError(t, err)
	require.Len(t, page.Generations, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := f.svc.List(context.Background(), owner, paginationParams(2, page.NextCursor))
	require.NoError(t, err)
	require.Len(t, next.Generations, 1)
	assert.Empty(t, next.NextCursor)

	_, err = f.svc.List(context.Background(), owner, paginationParams(2, "%%%"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestStartConcurrentSubmissionsRespectBalance(t *testing.T) {
	f := newFixture(t)
	userID := seedProfile(t, f.conn, 10)

	const callers = 6
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Start(context.Background(), startInput(userID))
		}(i)
	}
	close(start)
	wg.Wait()

	started := 0
	for _, err := range errs {
		if err == nil {
			started++
			continue
		}
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientCredits), "unexpected start error: %v", err)
	}
	assert.Equal(t, 2, started)
	assert.Equal(t, 2, f.backend.createCalls)
	assert.Zero(t, balanceOf(t, f.conn, userID))
	assert.EqualValues(t, 2, countRows(t, f.conn, &models.Generation{}, "user_id = ?", userID))
}
