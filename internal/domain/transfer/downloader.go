package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"telegram-switcher/internal/infra/logger"
	"telegram-switcher/internal/infra/pr"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

const historyPageLimit = 100

// Item — одно медиа-сообщение истории, готовое к скачиванию.
type Item struct {
	MsgID int
	Name  string
	Size  int64
	Loc   tg.InputFileLocationClass
}

// Downloader скачивает медиа из истории канала партиями. Уже скачанные
// сообщения пропускаются по журналу, уже существующие файлы — по диску.
type Downloader struct {
	api          *tg.Client
	journal      *Journal
	batchSize    int
	historyLimit int
}

// NewDownloader создаёт скачиватель поверх RPC-клиента и журнала.
// historyLimit ограничивает глубину просмотра истории (0 — без предела).
func NewDownloader(api *tg.Client, journal *Journal, batchSize, historyLimit int) *Downloader {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Downloader{api: api, journal: journal, batchSize: batchSize, historyLimit: historyLimit}
}

// Fetch собирает из истории target медиа-сообщения категории kind, от новых
// к старым. Серверный фильтр messages.search сужает выборку, категории без
// точного фильтра дорезаются по MIME на клиенте.
func (d *Downloader) Fetch(ctx context.Context, target Target, kind Kind) ([]Item, error) {
	var items []Item
	offsetID := 0
	scanned := 0

	for {
		limit := historyPageLimit
		if d.historyLimit > 0 && scanned+limit > d.historyLimit {
			limit = d.historyLimit - scanned
		}
		if limit <= 0 {
			break
		}

		resp, err := d.api.MessagesSearch(ctx, &tg.MessagesSearchRequest{
			Peer:     target.Peer,
			Q:        "",
			Filter:   kind.searchFilter(),
			OffsetID: offsetID,
			Limit:    limit,
		})
		if err != nil {
			return nil, fmt.Errorf("MessagesSearch: %w", err)
		}

		messages, err := historyMessages(resp)
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			break
		}

		pageItems, lastID := collectItems(messages, kind)
		items = append(items, pageItems...)
		if lastID == 0 {
			// Страница без единого известного типа сообщений: продолжать не с чего.
			break
		}
		offsetID = lastID
		scanned += len(messages)

		if len(messages) < limit {
			break
		}
	}

	return items, nil
}

// collectItems извлекает элементы категории kind из страницы истории и
// возвращает ID последнего сообщения страницы для смещения следующего
// запроса. Смещение двигается по любым типам сообщений, включая служебные
// и пустые: страница целиком из таких записей не должна зацикливать обход.
func collectItems(messages []tg.MessageClass, kind Kind) ([]Item, int) {
	var items []Item
	lastID := 0
	for _, raw := range messages {
		switch msg := raw.(type) {
		case *tg.Message:
			lastID = msg.ID
			if item, ok := itemFromMessage(msg, kind); ok {
				items = append(items, item)
			}
		case *tg.MessageService:
			lastID = msg.ID
		case *tg.MessageEmpty:
			lastID = msg.ID
		}
	}
	return items, lastID
}

// historyMessages нормализует варианты ответа messages.search.
func historyMessages(resp tg.MessagesMessagesClass) ([]tg.MessageClass, error) {
	switch data := resp.(type) {
	case *tg.MessagesMessages:
		return data.Messages, nil
	case *tg.MessagesMessagesSlice:
		return data.Messages, nil
	case *tg.MessagesChannelMessages:
		return data.Messages, nil
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected messages response: %T", resp)
	}
}

// itemFromMessage извлекает из сообщения источник скачивания. Документы
// дополнительно проверяются на соответствие категории по MIME; у фото
// выбирается самый крупный размер.
func itemFromMessage(msg *tg.Message, kind Kind) (Item, bool) {
	switch media := msg.Media.(type) {
	case *tg.MessageMediaDocument:
		if media.Document == nil {
			return Item{}, false
		}
		doc, ok := media.Document.AsNotEmpty()
		if !ok || !kind.matchesMime(doc.MimeType) {
			return Item{}, false
		}
		return Item{
			MsgID: msg.ID,
			Name:  FileName(msg),
			Size:  doc.Size,
			Loc:   doc.AsInputDocumentFileLocation(),
		}, true
	case *tg.MessageMediaPhoto:
		if media.Photo == nil {
			return Item{}, false
		}
		photo, ok := media.Photo.AsNotEmpty()
		if !ok {
			return Item{}, false
		}
		thumb := largestPhotoSize(photo.Sizes)
		if thumb == "" {
			return Item{}, false
		}
		return Item{
			MsgID: msg.ID,
			Name:  FileName(msg),
			Loc: &tg.InputPhotoFileLocation{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
				ThumbSize:     thumb,
			},
		}, true
	}
	return Item{}, false
}

// largestPhotoSize возвращает тип последнего (самого крупного) размера фото.
func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	thumb := ""
	for _, size := range sizes {
		switch s := size.(type) {
		case *tg.PhotoSize:
			thumb = s.Type
		case *tg.PhotoSizeProgressive:
			thumb = s.Type
		}
	}
	return thumb
}

// DownloadSummary — итог скачивания истории.
type DownloadSummary struct {
	Saved   int
	Skipped int
	Failed  int
}

// dedupeNames разводит элементы с одинаковыми выведенными именами: повтор
// получает суффикс из ID сообщения перед расширением. Без этого два файла
// одной партии писали бы в один путь конкурентно.
func dedupeNames(items []Item) {
	seen := make(map[string]struct{}, len(items))
	for i := range items {
		name := items[i].Name
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			continue
		}
		ext := filepath.Ext(name)
		items[i].Name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), items[i].MsgID, ext)
		seen[items[i].Name] = struct{}{}
	}
}

// DownloadAll скачивает все найденные элементы в каталог dir партиями по
// batchSize. Сообщения из журнала и файлы, уже лежащие на диске,
// пропускаются.
func (d *Downloader) DownloadAll(ctx context.Context, target Target, items []Item, dir string) (DownloadSummary, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return DownloadSummary{}, fmt.Errorf("create dir %s: %w", dir, err)
	}
	dedupeNames(items)
	pr.Printf("Downloading %d file(s) to %s in batches of %d\n", len(items), dir, d.batchSize)

	var saved, skipped, failed atomic.Int64
	for start := 0; start < len(items); start += d.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+d.batchSize, len(items))

		var wg sync.WaitGroup
		for _, item := range items[start:end] {
			item := item
			wg.Add(1)
			go func() {
				defer wg.Done()
				switch skippedItem, err := d.downloadOne(ctx, target, item, dir); {
				case err != nil:
					failed.Add(1)
					logger.Errorf("Download %s: %v", item.Name, err)
					pr.ErrPrintf("failed: %s (%v)\n", item.Name, err)
				case skippedItem:
					skipped.Add(1)
				default:
					saved.Add(1)
				}
			}()
		}
		wg.Wait()
	}

	summary := DownloadSummary{
		Saved:   int(saved.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// downloadOne скачивает один элемент. Возвращает skipped=true, если элемент
// уже был скачан раньше.
func (d *Downloader) downloadOne(ctx context.Context, target Target, item Item, dir string) (bool, error) {
	done, err := d.journal.Downloaded(target.ID, item.MsgID)
	if err != nil {
		return false, err
	}
	path := filepath.Join(dir, item.Name)
	if done {
		pr.Printf("skip %s: already downloaded\n", item.Name)
		return true, nil
	}
	if _, statErr := os.Stat(path); statErr == nil {
		pr.Printf("skip %s: file exists\n", item.Name)
		if mErr := d.journal.MarkDownloaded(target.ID, item.MsgID); mErr != nil {
			logger.Warnf("Downloader: journal mark for %s failed: %v", item.Name, mErr)
		}
		return true, nil
	}

	if _, err := downloader.NewDownloader().Download(d.api, item.Loc).ToPath(ctx, path); err != nil {
		// Недокачанный файл не оставляем: иначе повторный запуск примет
		// его за готовый.
		_ = os.Remove(path)
		return false, fmt.Errorf("download %s: %w", item.Name, err)
	}

	if err := d.journal.MarkDownloaded(target.ID, item.MsgID); err != nil {
		logger.Warnf("Downloader: journal mark for %s failed: %v", item.Name, err)
	}
	pr.Printf("saved %s\n", item.Name)
	return false, nil
}
