package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"ctscan/config"
)

func TestPrepareStage_TwiceIsStructurallyEquivalent(t *testing.T) {
	dir := t.TempDir()
	cfg := poolingPrepareConfig(dir)
	stage := NewPrepareStage(cfg, nil, nil)
	ctx := context.Background()

	require.NoError(t, stage.Run(ctx))
	first, err := ReadBundle(cfg.BaseModelPath)
	require.NoError(t, err)

	require.NoError(t, stage.Run(ctx))
	second, err := ReadBundle(cfg.BaseModelPath)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Architecture(), second.Architecture()); diff != "" {
		t.Fatalf("architecture differs (-first +second):\n%s", diff)
	}
	require.Equal(t, Architecture{
		InputSize: 16,
		Backbone:  BackboneSpec{Kind: config.BackbonePooling, Grid: 2, FeatureDim: 12},
		HeadDim:   12,
	}, first.Architecture())
	require.False(t, first.Manifest.Trained)

	// базовая модель открывается
	backbone, err := first.OpenBackbone()
	require.NoError(t, err)
	require.NoError(t, backbone.Close())
}

func TestPrepareStage_ONNXWithoutFetcher(t *testing.T) {
	cfg := poolingPrepareConfig(t.TempDir())
	cfg.Backbone = config.BackboneONNX
	cfg.BackboneSource = "https://example.com/vgg16.onnx"

	err := NewPrepareStage(cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	_, statErr := os.Stat(cfg.BaseModelPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestReadBundle_Missing(t *testing.T) {
	_, err := ReadBundle(filepath.Join(t.TempDir(), "model.ctm"))
	require.ErrorIs(t, err, ErrArtifactNotFound)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadBundle_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ctm")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := ReadBundle(path)
	require.Error(t, err)
	require.False(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteBundle_InvalidLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.ctm")

	b := &Bundle{
		Manifest: Manifest{
			Format:    BundleFormat,
			Version:   BundleVersion,
			InputSize: 16,
			Backbone:  BackboneSpec{Kind: config.BackbonePooling, Grid: 2, FeatureDim: 12},
		},
		Head: NewHead(5, 1),
	}
	require.Error(t, WriteBundle(path, b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWriteBundle_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "model.ctm")
	stage := NewPrepareStage(poolingPrepareConfig(t.TempDir()), nil, nil)
	b, err := stage.Build(context.Background())
	require.NoError(t, err)

	require.NoError(t, WriteBundle(path, b))
	got, err := ReadBundle(path)
	require.NoError(t, err)
	require.Equal(t, b.Head, got.Head)
	require.Equal(t, b.Manifest.Backbone, got.Manifest.Backbone)
	require.True(t, b.Manifest.CreatedAt.Equal(got.Manifest.CreatedAt))
}
