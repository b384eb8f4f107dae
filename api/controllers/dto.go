package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/internal/niches"
	"github.com/slye-labs/slye-backend/internal/payments"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
)

// generationResponse is the persisted generation projection returned to callers.
type generationResponse struct {
	ID           uuid.UUID              `json:"id"`
	Type         string                 `json:"type"`
	Prompt       string                 `json:"prompt"`
	Status       enums.GenerationStatus `json:"status"`
	OutputURL    *string                `json:"output_url"`
	ErrorMessage *string                `json:"error_message"`
	CreditsUsed  int                    `json:"credits_used"`
	Metadata     generationMetadataDTO  `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

type generationMetadataDTO struct {
	Backend     string            `json:"backend,omitempty"`
	Model       string            `json:"model,omitempty"`
	TaskID      string            `json:"taskId,omitempty"`
	AspectRatio enums.AspectRatio `json:"aspectRatio,omitempty"`
	Mode        string            `json:"mode,omitempty"`
}

func newGenerationResponse(gen *models.Generation) generationResponse {
	return generationResponse{
		ID:           gen.ID,
		Type:         gen.Type,
		Prompt:       gen.Prompt,
		Status:       gen.Status,
		OutputURL:    gen.OutputURL,
		ErrorMessage: gen.ErrorMessage,
		CreditsUsed:  gen.CreditsUsed,
		Metadata: generationMetadataDTO{
			Backend:     gen.Metadata.Backend,
			Model:       gen.Metadata.Model,
			TaskID:      gen.Metadata.ExternalTaskID(),
			AspectRatio: gen.Metadata.AspectRatio,
			Mode:        gen.Metadata.Mode,
		},
		CreatedAt: gen.CreatedAt,
		UpdatedAt: gen.UpdatedAt,
	}
}

type generationListResponse struct {
	Generations []generationResponse `json:"generations"`
	NextCursor  string               `json:"nextCursor,omitempty"`
}

type generationTypeResponse struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	CreditCost  int    `json:"creditCost"`
	Backend     string `json:"backend"`
}

func newGenerationTypeResponse(cfg niches.Config) generationTypeResponse {
	return generationTypeResponse{
		Type:        cfg.Type,
		DisplayName: cfg.DisplayName,
		CreditCost:  cfg.CreditCost,
		Backend:     string(cfg.Backend),
	}
}

type balanceResponse struct {
	Credits int `json:"credits"`
}

type transactionResponse struct {
	ID              uuid.UUID                   `json:"id"`
	Amount          int                         `json:"amount"`
	Type            enums.CreditTransactionType `json:"type"`
	Description     *string                     `json:"description"`
	StripePaymentID *string                     `json:"stripe_payment_id"`
	GenerationID    *uuid.UUID                  `json:"generation_id"`
	CreatedAt       time.Time                   `json:"created_at"`
}

func newTransactionResponse(txn models.CreditTransaction) transactionResponse {
	return transactionResponse{
		ID:              txn.ID,
		Amount:          txn.Amount,
		Type:            txn.Type,
		Description:     txn.Description,
		StripePaymentID: txn.StripePaymentID,
		GenerationID:    txn.GenerationID,
		CreatedAt:       txn.CreatedAt,
	}
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"nextCursor,omitempty"`
}

type packageResponse struct {
	payments.Package
	DisplayPrice string `json:"displayPrice"`
}
