package controllers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/slye-labs/slye-backend/api/responses"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

const maxCallbackBody = 1 << 20

type taskSyncer interface {
	SyncByTaskID(ctx context.Context, taskID string) (*models.Generation, error)
}

type kieCallbackPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
		State  string `json:"state"`
	} `json:"data"`
}

// KieCallback handles kie.ai completion pushes. The payload only names the
// task; the generation is re-read from the provider through the normal sync
// path, so a forged body cannot set an outcome.
func KieCallback(svc taskSyncer, token string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if token == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "kie callbacks are not configured"))
			return
		}
		given := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback body"))
			return
		}
		var payload kieCallbackPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback body"))
			return
		}
		taskID := strings.TrimSpace(payload.Data.TaskID)
		if taskID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "taskId is required"))
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{"task_id": taskID, "callback_state": payload.Data.State})
		gen, err := svc.SyncByTaskID(ctx, taskID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(logg.WithGenerationID(ctx, gen.ID.String()), "kie.callback.synced")
		responses.WriteSuccess(w, map[string]any{"received": true, "status": gen.Status})
	}
}
