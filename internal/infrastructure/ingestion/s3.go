package ingestion

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ctscan/config"
	"ctscan/internal/domain/port"
)

const s3PartSize = 10 * 1024 * 1024

// ConnectS3 создаёт клиент S3. Endpoint и статические ключи нужны для MinIO.
func ConnectS3(cfg config.S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return s3.NewFromConfig(aws.Config{Region: region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		}
	})
}

// S3Fetcher скачивает объект s3://bucket/key менеджером загрузок
type S3Fetcher struct {
	downloader *manager.Downloader
}

func NewS3Fetcher(client manager.DownloadAPIClient) *S3Fetcher {
	return &S3Fetcher{
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = s3PartSize
		}),
	}
}

// ParseS3Locator разбирает s3://bucket/key
func ParseS3Locator(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", source, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: expected s3://bucket/key, got %s", ErrUnsupportedSource, source)
	}
	return u.Host, key, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, source, dst string) error {
	bucket, key, err := ParseS3Locator(source)
	if err != nil {
		return err
	}
	return writeFile(dst, func(w *os.File) error {
		_, err := f.downloader.Download(ctx, w, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

var _ port.ArchiveFetcher = (*S3Fetcher)(nil)
