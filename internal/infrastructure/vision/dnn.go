//go:build gocv
// +build gocv

package vision

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"ctscan/internal/domain/entity"
)

// DNNBackbone предобученная сеть в формате ONNX, исполняемая через OpenCV DNN.
// Сеть принимает NCHW float32 в [0,1], выход разворачивается в вектор признаков.
type DNNBackbone struct {
	mu         sync.Mutex
	net        gocv.Net
	inputSize  int
	featureDim int
}

// NewDNNBackbone загружает ONNX-сеть из байтов. featureDim <= 0 означает
// определить длину выхода пробным прогоном.
func NewDNNBackbone(model []byte, inputSize, featureDim int) (*DNNBackbone, error) {
	if len(model) == 0 {
		return nil, errors.New("empty onnx model")
	}
	net, err := gocv.ReadNetFromONNXBytes(model)
	if err != nil {
		return nil, fmt.Errorf("read onnx backbone: %w", err)
	}
	if net.Empty() {
		net.Close()
		return nil, errors.New("read onnx backbone: empty network")
	}

	b := &DNNBackbone{net: net, inputSize: inputSize, featureDim: featureDim}
	if featureDim <= 0 {
		probe, err := b.Extract(entity.NewImageTensor(inputSize))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("probe onnx backbone: %w", err)
		}
		b.featureDim = len(probe)
	}
	return b, nil
}

func (b *DNNBackbone) FeatureDim() int {
	return b.featureDim
}

// Extract прогоняет тензор через сеть
func (b *DNNBackbone) Extract(tensor entity.ImageTensor) ([]float64, error) {
	if tensor.Size != b.inputSize {
		return nil, fmt.Errorf("tensor size %d, backbone expects %d", tensor.Size, b.inputSize)
	}

	mat, err := gocv.NewMatFromBytes(tensor.Size, tensor.Size, gocv.MatTypeCV32FC3, float32Bytes(tensor.Pixels))
	if err != nil {
		return nil, fmt.Errorf("tensor to mat: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(tensor.Size, tensor.Size), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	// gocv.Net не потокобезопасен
	b.mu.Lock()
	b.net.SetInput(blob, "")
	out := b.net.Forward("")
	b.mu.Unlock()
	defer out.Close()

	values, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read backbone output: %w", err)
	}
	if b.featureDim > 0 && len(values) != b.featureDim {
		return nil, fmt.Errorf("backbone output has %d values, want %d", len(values), b.featureDim)
	}

	features := make([]float64, len(values))
	for i, v := range values {
		features[i] = float64(v)
	}
	return features, nil
}

func (b *DNNBackbone) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.net.Close()
}

func float32Bytes(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

var _ Backbone = (*DNNBackbone)(nil)
