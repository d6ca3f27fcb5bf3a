package container

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ctscan/config"
	"ctscan/internal/domain/entity"
)

func TestNew_MissingModelIsUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Inference.ModelPath = filepath.Join(t.TempDir(), "model.ctm")

	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	require.False(t, c.Model.Available())
	require.Equal(t, cfg.Inference.ModelPath, c.AnalysisService.Model().Path())
}

func TestNew_InvalidThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Inference.Threshold = 1.5

	_, err := New(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestStages_Order(t *testing.T) {
	stages := Stages(config.Default(), zap.NewNop())
	require.Len(t, stages, 3)
	require.Equal(t, entity.StageIngestion, stages[0].Name())
	require.Equal(t, entity.StagePrepare, stages[1].Name())
	require.Equal(t, entity.StageTraining, stages[2].Name())
}
