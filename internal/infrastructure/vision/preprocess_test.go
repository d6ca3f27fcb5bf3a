package vision

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"ctscan/internal/domain/entity"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestPreprocessor_PrepareResizesAndNormalizes(t *testing.T) {
	p := NewPreprocessor(0)
	data := encodePNG(t, solidImage(640, 480, color.RGBA{R: 255, G: 128, B: 0, A: 255}))

	tensor, info, err := p.Prepare(entity.Upload{Name: "scan.PNG", Data: data})
	require.NoError(t, err)
	require.Equal(t, DefaultInputSize, tensor.Size)
	require.Len(t, tensor.Pixels, 224*224*3)
	require.Equal(t, "640x480", info.Resolution())
	require.Equal(t, "png", info.Format)
	require.Equal(t, len(data), info.SizeBytes)

	require.InDelta(t, 1.0, tensor.At(100, 100, 0), 1e-6)
	require.InDelta(t, 128.0/255, tensor.At(100, 100, 1), 1e-6)
	require.InDelta(t, 0.0, tensor.At(100, 100, 2), 1e-6)
	for _, v := range tensor.Pixels {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestPreprocessor_PrepareJPEG(t *testing.T) {
	p := NewPreprocessor(32)
	data := encodeJPEG(t, solidImage(50, 70, color.Gray{Y: 200}))

	tensor, info, err := p.Prepare(entity.Upload{Name: "scan_01.jpeg", Data: data})
	require.NoError(t, err)
	require.Equal(t, 32, tensor.Size)
	require.Equal(t, "jpeg", info.Format)
	require.InDelta(t, 200.0/255, tensor.At(16, 16, 1), 0.02)
}

func TestPreprocessor_RejectsExtension(t *testing.T) {
	p := NewPreprocessor(32)
	data := encodePNG(t, solidImage(8, 8, color.White))

	_, _, err := p.Prepare(entity.Upload{Name: "scan.bmp", Data: data})
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = p.Prepare(entity.Upload{Name: "scan", Data: data})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPreprocessor_RejectsUndecodable(t *testing.T) {
	p := NewPreprocessor(32)

	_, _, err := p.Prepare(entity.Upload{Name: "scan.png", Data: []byte("definitely not a png")})
	require.ErrorIs(t, err, ErrUndecodable)

	_, _, err = p.Prepare(entity.Upload{Name: "scan.jpg"})
	require.ErrorIs(t, err, ErrUndecodable)
}

// pngHeader возвращает PNG из сигнатуры и IHDR с заявленным размером без пиксельных данных
func pngHeader(width, height uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, width)
	binary.Write(&ihdr, binary.BigEndian, height)
	ihdr.Write([]byte{8, 0, 0, 0, 0}) // 8 бит, grayscale

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(ihdr.Len()-4))
	buf.Write(ihdr.Bytes())
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return buf.Bytes()
}

func TestPreprocessor_RejectsOversizedDimensions(t *testing.T) {
	p := NewPreprocessor(224)

	_, _, err := p.Prepare(entity.Upload{Name: "scan.png", Data: pngHeader(16000, 16000)})
	require.ErrorIs(t, err, ErrImageTooLarge)
	require.ErrorContains(t, err, "16000x16000")

	// в пределах бюджета заголовок проходит, но без данных не декодируется
	_, _, err = p.Prepare(entity.Upload{Name: "scan.png", Data: pngHeader(512, 512)})
	require.ErrorIs(t, err, ErrUndecodable)
}

func TestPreprocessor_ExtensionMismatchStillDecodes(t *testing.T) {
	// проверяется содержимое, а не соответствие расширения формату
	p := NewPreprocessor(16)
	data := encodePNG(t, solidImage(8, 8, color.White))

	_, info, err := p.Prepare(entity.Upload{Name: "scan.jpg", Data: data})
	require.NoError(t, err)
	require.Equal(t, "png", info.Format)
}

func TestIsImageFile(t *testing.T) {
	require.True(t, IsImageFile("a.jpg"))
	require.True(t, IsImageFile("a.JPEG"))
	require.True(t, IsImageFile("dir/a.png"))
	require.False(t, IsImageFile("a.gif"))
	require.False(t, IsImageFile("README"))
}
