package transfer

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"telegram-switcher/internal/infra/logger"
	"telegram-switcher/internal/infra/pr"

	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
)

// Uploader выгружает локальные файлы в канал партиями. Уже отправленные
// файлы пропускаются по журналу переносов, так что прерванную выгрузку
// можно перезапустить без дублей.
type Uploader struct {
	api       *tg.Client
	journal   *Journal
	batchSize int
}

// NewUploader создаёт выгрузчик поверх RPC-клиента и журнала.
func NewUploader(api *tg.Client, journal *Journal, batchSize int) *Uploader {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Uploader{api: api, journal: journal, batchSize: batchSize}
}

// UploadSummary — итог выгрузки каталога.
type UploadSummary struct {
	Sent    int
	Skipped int
	Failed  int
}

// UploadFolder выгружает все файлы категории kind из каталога dir в target.
// Файлы отправляются партиями по batchSize параллельных выгрузок.
func (u *Uploader) UploadFolder(ctx context.Context, target Target, dir string, kind Kind) (UploadSummary, error) {
	files, err := ScanFolder(dir, kind)
	if err != nil {
		return UploadSummary{}, err
	}
	if len(files) == 0 {
		return UploadSummary{}, fmt.Errorf("no %s files in %s", kind, dir)
	}
	pr.Printf("Uploading %d file(s) to %s in batches of %d\n", len(files), target.Title, u.batchSize)

	var sent, skipped, failed atomic.Int64
	for start := 0; start < len(files); start += u.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+u.batchSize, len(files))

		var wg sync.WaitGroup
		for _, path := range files[start:end] {
			path := path
			wg.Add(1)
			go func() {
				defer wg.Done()
				switch err := u.UploadFile(ctx, target, path, ""); {
				case err == nil:
					sent.Add(1)
				case IsAlreadyUploaded(err):
					skipped.Add(1)
				default:
					failed.Add(1)
					logger.Errorf("Upload %s: %v", filepath.Base(path), err)
					pr.ErrPrintf("failed: %s (%v)\n", filepath.Base(path), err)
				}
			}()
		}
		wg.Wait()
	}

	summary := UploadSummary{
		Sent:    int(sent.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// errUploadSkipped помечает файл, уже присутствующий в журнале.
type errUploadSkipped struct{ path string }

func (e errUploadSkipped) Error() string { return fmt.Sprintf("already uploaded: %s", e.path) }

// IsAlreadyUploaded сообщает, что файл пропущен как уже отправленный.
func IsAlreadyUploaded(err error) bool {
	_, ok := err.(errUploadSkipped)
	return ok
}

// uploadMessage выбирает текст сообщения: подпись пользователя, а если её
// нет — имя файла (поведение выгрузки каталога).
func uploadMessage(caption, name string) string {
	if caption != "" {
		return caption
	}
	return name
}

// messageRandomID возвращает random_id для messages.sendMedia. Каждый вызов
// обязан давать новое значение даже из параллельных горутин партии:
// Telegram дедуплицирует сообщения с одинаковым random_id.
func messageRandomID() int64 {
	return rand.Int63()
}

// UploadFile отправляет один файл документом в target и фиксирует успех в
// журнале. Файл, уже отмеченный в журнале, не отправляется повторно.
// Пустая подпись заменяется именем файла.
func (u *Uploader) UploadFile(ctx context.Context, target Target, path, caption string) error {
	name := filepath.Base(path)
	done, err := u.journal.Uploaded(target.ID, path)
	if err != nil {
		return err
	}
	if done {
		pr.Printf("skip %s: already uploaded\n", name)
		return errUploadSkipped{path: name}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	progress := &progressReader{r: f, total: info.Size(), name: name}
	up := uploader.NewUploader(u.api)
	inputFile, err := up.Upload(ctx, uploader.NewUpload(name, progress, info.Size()))
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	progress.finish()

	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	_, err = u.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer: target.Peer,
		Media: &tg.InputMediaUploadedDocument{
			File:     inputFile,
			MimeType: mimeType,
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: name},
			},
		},
		Message:  uploadMessage(caption, name),
		RandomID: messageRandomID(),
	})
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}

	if err := u.journal.MarkUploaded(target.ID, path); err != nil {
		logger.Warnf("Uploader: journal mark for %s failed: %v", name, err)
	}
	pr.Printf("sent %s (%s)\n", name, formatSize(info.Size()))
	return nil
}

// progressReader печатает прогресс чтения файла с шагом в 10%.
type progressReader struct {
	r     io.Reader
	total int64
	name  string

	read     int64
	lastStep int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.total > 0 {
		if step := p.read * 10 / p.total; step > p.lastStep && step < 10 {
			p.lastStep = step
			pr.Printf("  %s: %d%%\n", p.name, step*10)
		}
	}
	return n, err
}

func (p *progressReader) finish() {
	pr.Printf("  %s: 100%%\n", p.name)
}

// formatSize печатает размер в удобных единицах.
func formatSize(size int64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(size)/(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
