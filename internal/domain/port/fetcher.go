package port

import "context"

// ArchiveFetcher скачивает удалённый файл по локатору в локальный путь
type ArchiveFetcher interface {
	Fetch(ctx context.Context, source, dst string) error
}
