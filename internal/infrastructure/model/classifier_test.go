package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ctscan/internal/domain/entity"
)

func TestClassifier_RejectsForeignTensorSize(t *testing.T) {
	b, err := NewPrepareStage(poolingPrepareConfig(t.TempDir()), nil, nil).Build(context.Background())
	require.NoError(t, err)
	clf, err := NewClassifier(b)
	require.NoError(t, err)
	defer clf.Close()

	_, err = clf.Predict(context.Background(), entity.NewImageTensor(32))
	require.ErrorContains(t, err, "model expects 16")

	score, err := clf.Predict(context.Background(), entity.NewImageTensor(16))
	require.NoError(t, err)
	require.GreaterOrEqual(t, float64(score), 0.0)
	require.LessOrEqual(t, float64(score), 1.0)
}
