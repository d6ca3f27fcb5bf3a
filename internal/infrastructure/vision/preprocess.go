package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

var (
	// ErrUnsupportedFormat расширение или содержимое не JPEG/PNG
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrUndecodable байты не декодируются как изображение
	ErrUndecodable = errors.New("image cannot be decoded")
	// ErrImageTooLarge заявленный размер изображения превышает MaxPixels
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// MaxPixels предел площади снимка до декодирования: 10 МБ сжатого PNG
// могут заявить размер, который не поместится в память
const MaxPixels = 4096 * 4096

// DefaultInputSize размер стороны входа модели
const DefaultInputSize = 224

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

var allowedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
}

// IsImageFile проверяет расширение файла
func IsImageFile(name string) bool {
	return allowedExt[strings.ToLower(filepath.Ext(name))]
}

// Preprocessor декодирует снимок и приводит его к квадрату Size x Size в RGB с яркостями [0,1]
type Preprocessor struct {
	Size int
}

// NewPreprocessor создаёт препроцессор; size <= 0 означает DefaultInputSize
func NewPreprocessor(size int) *Preprocessor {
	if size <= 0 {
		size = DefaultInputSize
	}
	return &Preprocessor{Size: size}
}

// Prepare проверяет расширение и декодируемость, затем строит тензор
func (p *Preprocessor) Prepare(upload entity.Upload) (entity.ImageTensor, entity.ScanInfo, error) {
	img, info, err := Decode(upload.Name, upload.Data)
	if err != nil {
		return entity.ImageTensor{}, entity.ScanInfo{}, err
	}
	return p.Tensor(img), info, nil
}

// PrepareFile читает снимок с диска и строит тензор
func (p *Preprocessor) PrepareFile(path string) (entity.ImageTensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entity.ImageTensor{}, fmt.Errorf("read image: %w", err)
	}
	tensor, _, err := p.Prepare(entity.Upload{Name: filepath.Base(path), Data: data})
	return tensor, err
}

// Decode проверяет расширение и декодирует изображение
func Decode(name string, data []byte) (image.Image, entity.ScanInfo, error) {
	if !IsImageFile(name) {
		return nil, entity.ScanInfo{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, entity.ScanInfo{}, fmt.Errorf("%w: %s: %v", ErrUndecodable, name, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, entity.ScanInfo{}, fmt.Errorf("%w: %s is %dx%d", ErrImageTooLarge, name, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, entity.ScanInfo{}, fmt.Errorf("%w: %s: %v", ErrUndecodable, name, err)
	}
	if !allowedFormats[format] {
		return nil, entity.ScanInfo{}, fmt.Errorf("%w: %s is %s", ErrUnsupportedFormat, name, format)
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, entity.ScanInfo{}, fmt.Errorf("%w: %s: empty image", ErrUndecodable, name)
	}

	return img, entity.ScanInfo{
		Name:      name,
		SizeBytes: len(data),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    format,
	}, nil
}

// Tensor масштабирует изображение билинейно и нормирует каналы в [0,1]
func (p *Preprocessor) Tensor(img image.Image) entity.ImageTensor {
	dst := image.NewRGBA(image.Rect(0, 0, p.Size, p.Size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	t := entity.NewImageTensor(p.Size)
	for y := 0; y < p.Size; y++ {
		for x := 0; x < p.Size; x++ {
			i := dst.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				t.Set(x, y, c, float32(dst.Pix[i+c])/255)
			}
		}
	}
	return t
}

var _ port.ImagePreprocessor = (*Preprocessor)(nil)
