package model

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ctscan/config"
)

// writeScan сохраняет однотонный PNG-снимок
func writeScan(t *testing.T, path string, gray uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 24, 24))
	for i := range img.Pix {
		img.Pix[i] = gray
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// writeDataset создаёт датасет: светлые снимки положительного класса, тёмные отрицательного
func writeDataset(t *testing.T, root string, perClass int) {
	t.Helper()
	for i := 0; i < perClass; i++ {
		writeScan(t, filepath.Join(root, "adenocarcinoma", "pos_"+string(rune('a'+i))+".png"), uint8(200+i*5))
		writeScan(t, filepath.Join(root, "normal", "neg_"+string(rune('a'+i))+".png"), uint8(20+i*5))
	}
}

func poolingPrepareConfig(dir string) PrepareConfig {
	return PrepareConfig{
		BaseModelPath: filepath.Join(dir, "prepare_base_model", "base_model.ctm"),
		Backbone:      config.BackbonePooling,
		InputSize:     16,
		PoolingGrid:   2,
		PositiveClass: "adenocarcinoma",
		Seed:          42,
	}
}
