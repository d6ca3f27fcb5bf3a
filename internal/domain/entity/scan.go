package entity

import "fmt"

// Upload загруженный пользователем файл
type Upload struct {
	Name string
	Data []byte
}

// ScanInfo метаданные снимка для боковой панели
type ScanInfo struct {
	Name      string
	SizeBytes int
	Width     int
	Height    int
	Format    string
}

// SizeKB размер файла в килобайтах
func (s ScanInfo) SizeKB() string {
	return fmt.Sprintf("%.1f KB", float64(s.SizeBytes)/1024)
}

// Resolution разрешение исходного снимка
func (s ScanInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ImageTensor изображение Size x Size в RGB (HWC), значения в [0,1]
type ImageTensor struct {
	Size   int
	Pixels []float32
}

// NewImageTensor выделяет тензор нужного размера
func NewImageTensor(size int) ImageTensor {
	return ImageTensor{Size: size, Pixels: make([]float32, size*size*3)}
}

// At возвращает значение канала c пикселя (x, y)
func (t ImageTensor) At(x, y, c int) float32 {
	return t.Pixels[(y*t.Size+x)*3+c]
}

// Set записывает значение канала c пикселя (x, y)
func (t ImageTensor) Set(x, y, c int, v float32) {
	t.Pixels[(y*t.Size+x)*3+c] = v
}

// Mirror возвращает горизонтально отражённую копию (аугментация при обучении)
func (t ImageTensor) Mirror() ImageTensor {
	out := NewImageTensor(t.Size)
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			for c := 0; c < 3; c++ {
				out.Set(t.Size-1-x, y, c, t.At(x, y, c))
			}
		}
	}
	return out
}
