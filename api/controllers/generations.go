package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/api/middleware"
	"github.com/slye-labs/slye-backend/api/responses"
	"github.com/slye-labs/slye-backend/api/validators"
	"github.com/slye-labs/slye-backend/internal/generations"
	"github.com/slye-labs/slye-backend/internal/niches"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/pagination"
)

const maxPromptLength = 4000

type generationStarter interface {
	Start(ctx context.Context, input generations.StartInput) (generations.StartResult, error)
}

type generationSyncer interface {
	Sync(ctx context.Context, id, userID uuid.UUID) (*models.Generation, error)
}

type generationLister interface {
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (generations.Page, error)
}

type nicheCatalog interface {
	List() []niches.Config
}

type createGenerationRequest struct {
	Type    string                   `json:"type" validate:"required,max=64"`
	Prompt  string                   `json:"prompt" validate:"required,max=4000"`
	Options *generationOptionsRequest `json:"options,omitempty"`
}

type generationOptionsRequest struct {
	AspectRatio string `json:"aspectRatio,omitempty" validate:"omitempty,oneof=9:16 16:9 1:1"`
	Mode        string `json:"mode,omitempty" validate:"omitempty,max=32"`
}

// CreateGeneration reserves credits and submits the prompt to the type's backend.
func CreateGeneration(svc generationStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized"))
			return
		}

		var req createGenerationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		prompt := validators.SanitizeString(req.Prompt, maxPromptLength)
		if prompt == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Prompt is required."))
			return
		}

		input := generations.StartInput{
			UserID: userID,
			Type:   strings.TrimSpace(req.Type),
			Prompt: prompt,
		}
		if req.Options != nil {
			input.Options = models.VideoOptions{
				AspectRatio: enums.AspectRatio(req.Options.AspectRatio),
				Mode:        strings.TrimSpace(req.Options.Mode),
			}
		}

		result, err := svc.Start(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetGeneration syncs the caller's generation with its backend and returns it.
func GetGeneration(svc generationSyncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized"))
			return
		}

		id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "Generation not found."))
			return
		}

		gen, err := svc.Sync(ctx, id, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newGenerationResponse(gen))
	}
}

// ListGenerations returns the caller's generations, newest first.
func ListGenerations(svc generationLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized"))
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.List(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		resp := generationListResponse{
			Generations: make([]generationResponse, 0, len(page.Generations)),
			NextCursor:  page.NextCursor,
		}
		for i := range page.Generations {
			resp.Generations = append(resp.Generations, newGenerationResponse(&page.Generations[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

// ListGenerationTypes returns every configured generation type with its cost.
func ListGenerationTypes(catalog nicheCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs := catalog.List()
		resp := make([]generationTypeResponse, 0, len(configs))
		for _, cfg := range configs {
			resp = append(resp, newGenerationTypeResponse(cfg))
		}
		responses.WriteSuccess(w, map[string]any{"types": resp})
	}
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor, err := validators.ParseQueryString(r, "cursor", 256)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}
