package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/internal/generations"
	"github.com/slye-labs/slye-backend/internal/niches"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/pagination"
)

type stubGenerationService struct {
	startInput generations.StartInput
	startFn    func(generations.StartInput) (generations.StartResult, error)
	syncFn     func(id, userID uuid.UUID) (*models.Generation, error)
	listParams pagination.Params
	page       generations.Page
	listErr    error
}

func (s *stubGenerationService) Start(_ context.Context, input generations.StartInput) (generations.StartResult, error) {
	s.startInput = input
	return s.startFn(input)
}

func (s *stubGenerationService) Sync(_ context.Context, id, userID uuid.UUID) (*models.Generation, error) {
	return s.syncFn(id, userID)
}

func (s *stubGenerationService) List(_ context.Context, _ uuid.UUID, params pagination.Params) (generations.Page, error) {
	s.listParams = params
	return s.page, s.listErr
}

func postGeneration(handler http.Handler, userID uuid.UUID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generations", strings.NewReader(body))
	if userID != uuid.Nil {
		req = withUser(req, userID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateGenerationSuccess(t *testing.T) {
	genID := uuid.New()
	svc := &stubGenerationService{startFn: func(in generations.StartInput) (generations.StartResult, error) {
		return generations.StartResult{ID: genID, TaskID: "task-1", Status: enums.GenerationStatusProcessing}, nil
	}}
	userID := uuid.New()

	rec := postGeneration(CreateGeneration(svc, testLogger()), userID,
		`{"type":"asmr_video","prompt":"  soap cutting  ","options":{"aspectRatio":"16:9","mode":"fun"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["id"] != genID.String() || body["taskId"] != "task-1" || body["status"] != "processing" {
		t.Fatalf("unexpected body %v", body)
	}
	in := svc.startInput
	if in.UserID != userID || in.Prompt != "soap cutting" || in.Type != "asmr_video" {
		t.Fatalf("unexpected start input %+v", in)
	}
	if in.Options.AspectRatio != enums.AspectRatioLandscape || in.Options.Mode != "fun" {
		t.Fatalf("unexpected options %+v", in.Options)
	}
}

func TestCreateGenerationValidation(t *testing.T) {
	svc := &stubGenerationService{startFn: func(generations.StartInput) (generations.StartResult, error) {
		t.Fatal("service should not be called")
		return generations.StartResult{}, nil
	}}
	cases := map[string]string{
		"missing type":     `{"prompt":"hi"}`,
		"blank prompt":     `{"type":"general","prompt":"   "}`,
		"bad aspect ratio": `{"type":"general","prompt":"hi","options":{"aspectRatio":"4:3"}}`,
		"malformed":        `{"type":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postGeneration(CreateGeneration(svc, testLogger()), uuid.New(), body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
		})
	}
}

func TestCreateGenerationMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient credits", pkgerrors.New(pkgerrors.CodeInsufficientCredits, "Insufficient credits."), http.StatusPaymentRequired},
		{"rate limited", pkgerrors.New(pkgerrors.CodeRateLimit, "Service rate limited. Please retry."), http.StatusTooManyRequests},
		{"backend", pkgerrors.New(pkgerrors.CodeBackend, "Failed to start generation."), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubGenerationService{startFn: func(generations.StartInput) (generations.StartResult, error) {
				return generations.StartResult{}, tc.err
			}}
			rec := postGeneration(CreateGeneration(svc, testLogger()), uuid.New(), `{"type":"general","prompt":"hi"}`)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			var body errorBody
			decodeBody(t, rec, &body)
			if body.Error == "" {
				t.Fatal("expected error message")
			}
		})
	}
}

func TestCreateGenerationRequiresUser(t *testing.T) {
	rec := postGeneration(CreateGeneration(&stubGenerationService{}, testLogger()), uuid.Nil, `{"type":"general","prompt":"hi"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestGetGenerationReturnsProjection(t *testing.T) {
	userID := uuid.New()
	genID := uuid.New()
	output := "https://cdn.example/video.mp4"
	svc := &stubGenerationService{syncFn: func(id, uid uuid.UUID) (*models.Generation, error) {
		if id != genID || uid != userID {
			t.Fatalf("unexpected ids %s %s", id, uid)
		}
		return &models.Generation{
			ID:          genID,
			UserID:      userID,
			Type:        "general",
			Prompt:      "hi",
			Status:      enums.GenerationStatusCompleted,
			OutputURL:   &output,
			CreditsUsed: 5,
			Metadata: models.GenerationMetadata{
				Backend:      "kie",
				LegacyTaskID: "legacy-task",
			},
			CreatedAt: time.Now(),
		}, nil
	}}

	req := withURLParam(withUser(httptest.NewRequest(http.MethodGet, "/api/v1/generations/"+genID.String(), nil), userID), "id", genID.String())
	rec := httptest.NewRecorder()
	GetGeneration(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body generationResponse
	decodeBody(t, rec, &body)
	if body.Status != enums.GenerationStatusCompleted || body.OutputURL == nil || *body.OutputURL != output {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Metadata.TaskID != "legacy-task" {
		t.Fatalf("expected legacy task id surfaced, got %q", body.Metadata.TaskID)
	}
}

func TestGetGenerationNotFound(t *testing.T) {
	svc := &stubGenerationService{syncFn: func(uuid.UUID, uuid.UUID) (*models.Generation, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Generation not found.")
	}}
	for _, id := range []string{"not-a-uuid", uuid.NewString()} {
		req := withURLParam(withUser(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()), "id", id)
		rec := httptest.NewRecorder()
		GetGeneration(svc, testLogger())(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("id %q: expected 404 got %d", id, rec.Code)
		}
	}
}

func TestListGenerationsPassesPagination(t *testing.T) {
	svc := &stubGenerationService{page: generations.Page{
		Generations: []models.Generation{{ID: uuid.New(), Status: enums.GenerationStatusPending}},
		NextCursor:  "next",
	}}
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/generations?limit=10&cursor=abc", nil), uuid.New())
	rec := httptest.NewRecorder()
	ListGenerations(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.listParams.Limit != 10 || svc.listParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.listParams)
	}
	var body generationListResponse
	decodeBody(t, rec, &body)
	if len(body.Generations) != 1 || body.NextCursor != "next" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestListGenerationsRejectsBadLimit(t *testing.T) {
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/generations?limit=0", nil), uuid.New())
	rec := httptest.NewRecorder()
	ListGenerations(&stubGenerationService{}, testLogger())(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestListGenerationTypes(t *testing.T) {
	registry, err := niches.NewRegistry(niches.Config{Type: "general", DisplayName: "General Video", Backend: backends.Kie, Model: "m", CreditCost: 5})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	rec := httptest.NewRecorder()
	ListGenerationTypes(registry)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/generation-types", nil))

	var body struct {
		Types []generationTypeResponse `json:"types"`
	}
	decodeBody(t, rec, &body)
	if len(body.Types) != 1 || body.Types[0].CreditCost != 5 || body.Types[0].DisplayName != "General Video" {
		t.Fatalf("unexpected body %+v", body)
	}
}
