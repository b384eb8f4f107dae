package niches

import (
	"context"
	"errors"
	"testing"

	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBackend struct{ name backends.Name }

func (n nopBackend) Name() backends.Name { return n.name }
func (n nopBackend) CreateTask(context.Context, string, string, backends.Options) (backends.CreateTaskResult, error) {
	return backends.CreateTaskResult{}, nil
}
func (n nopBackend) GetTaskStatus(context.Context, string) (backends.TaskStatus, error) {
	return backends.TaskStatus{}, nil
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{TypeASMRVideo, TypeGeneral}, reg.ListTypes())

	cfg, err := reg.GetConfig(TypeASMRVideo)
	require.NoError(t, err)
	assert.Equal(t, backends.Kie, cfg.Backend)
	assert.Equal(t, "grok-imagine/text-to-video", cfg.Model)
	assert.Equal(t, 5, cfg.CreditCost)
	assert.Equal(t, "ASMR Video generation", cfg.UsageDescription())
	assert.Equal(t, "ASMR Video generation failed", cfg.RefundDescription())

	cost, err := reg.CreditCost(TypeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestGetConfigUnknownType(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)

	_, err = reg.GetConfig("karaoke")
	assert.True(t, errors.Is(err, ErrUnknownType))
	_, err = reg.CreditCost("karaoke")
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestNewRegistryRejectsInvalidEntries(t *testing.T) {
	valid := Config{Type: "x", Backend: backends.Kie, Model: "m", CreditCost: 1}

	_, err := NewRegistry(valid, valid)
	assert.Error(t, err)

	bad := valid
	bad.CreditCost = 0
	_, err = NewRegistry(bad)
	assert.Error(t, err)

	bad = valid
	bad.Model = ""
	_, err = NewRegistry(bad)
	assert.Error(t, err)
}

func TestMergeOptions(t *testing.T) {
	cfg := DefaultConfigs()[0]

	merged := cfg.MergeOptions(models.VideoOptions{AspectRatio: "16:9"})
	assert.Equal(t, enums.AspectRatioLandscape, merged.AspectRatio)
	assert.Equal(t, "normal", merged.Mode)

	merged = cfg.MergeOptions(models.VideoOptions{})
	assert.Equal(t, cfg.Defaults, merged)
}

func TestValidateAgainstBackends(t *testing.T) {
	reg, err := NewRegistry(Config{Type: "x", Backend: "veo", Model: "m", CreditCost: 1})
	require.NoError(t, err)

	backendReg, err := backends.NewRegistry(backends.Kie, nopBackend{name: backends.Kie})
	require.NoError(t, err)

	assert.True(t, errors.Is(reg.Validate(backendReg), backends.ErrUnknownBackend))
}
