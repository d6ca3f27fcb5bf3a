package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"ctscan/internal/domain/port"
)

// ErrUnsupportedSource схема локатора не поддерживается
var ErrUnsupportedSource = errors.New("unsupported source")

var driveFileID = regexp.MustCompile(`^/file/d/([^/]+)`)

// DriveDownloadURL переписывает ссылку вида drive.google.com/file/d/<id>/view
// в прямую ссылку на скачивание. Остальные ссылки возвращаются как есть.
func DriveDownloadURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "drive.google.com" {
		return raw
	}
	m := driveFileID.FindStringSubmatch(u.Path)
	if m == nil {
		return raw
	}
	return "https://drive.google.com/uc?/export=download&id=" + m[1]
}

// MultiFetcher выбирает загрузчик по схеме локатора
type MultiFetcher struct {
	HTTP port.ArchiveFetcher
	S3   port.ArchiveFetcher
	File port.ArchiveFetcher
}

func (f *MultiFetcher) Fetch(ctx context.Context, source, dst string) error {
	var target port.ArchiveFetcher
	switch scheme(source) {
	case "http", "https":
		target = f.HTTP
	case "s3":
		target = f.S3
	case "file", "":
		target = f.File
	}
	if target == nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}
	return target.Fetch(ctx, source, dst)
}

func scheme(source string) string {
	i := strings.Index(source, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(source[:i])
}

// HTTPFetcher скачивает http(s) ресурс, включая ссылки Google Drive
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, source, dst string) error {
	link := DriveDownloadURL(source)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", link, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download %s: unexpected status %s", link, resp.Status)
	}
	return writeFile(dst, func(w *os.File) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
}

// FileFetcher копирует локальный файл (file:// или обычный путь)
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, source, dst string) error {
	path := strings.TrimPrefix(source, "file://")
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source %s: %w", path, err)
	}
	defer src.Close()

	return writeFile(dst, func(w *os.File) error {
		_, err := io.Copy(w, src)
		return err
	})
}

// writeFile пишет во временный файл рядом с dst и переименовывает его при успехе
func writeFile(dst string, fill func(w *os.File) error) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := fill(tmp); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("move %s into place: %w", dst, err)
	}
	return nil
}

var (
	_ port.ArchiveFetcher = (*MultiFetcher)(nil)
	_ port.ArchiveFetcher = (*HTTPFetcher)(nil)
	_ port.ArchiveFetcher = FileFetcher{}
)
