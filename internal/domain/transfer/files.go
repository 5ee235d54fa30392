package transfer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gotd/td/tg"
)

// Kind — категория переносимых файлов. Одна и та же категория управляет и
// отбором локальных файлов при выгрузке, и фильтром истории при скачивании.
type Kind string

const (
	KindImages    Kind = "images"
	KindVideos    Kind = "videos"
	KindDocuments Kind = "documents"
	KindArchives  Kind = "archives"
	KindAll       Kind = "all"
)

// Kinds перечисляет категории в порядке показа в меню.
var Kinds = []Kind{KindImages, KindVideos, KindDocuments, KindArchives, KindAll}

// Title возвращает подпись категории для меню.
func (k Kind) Title() string {
	switch k {
	case KindImages:
		return "images (jpg, png, webp...)"
	case KindVideos:
		return "videos (mp4, mkv, mov...)"
	case KindDocuments:
		return "documents (pdf, doc, docx, txt)"
	case KindArchives:
		return "archives (zip, rar, 7z...)"
	default:
		return "all files"
	}
}

// kindExtensions — расширения, попадающие в категорию при сканировании
// локального каталога. Сравнение регистронезависимое.
var kindExtensions = map[Kind][]string{
	KindImages:    {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"},
	KindVideos:    {".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv", ".webm"},
	KindDocuments: {".pdf", ".doc", ".docx", ".txt"},
	KindArchives:  {".zip", ".rar", ".7z", ".tar", ".gz"},
}

// matches сообщает, относится ли файл с именем name к категории k.
func (k Kind) matches(name string) bool {
	if k == KindAll {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range kindExtensions[k] {
		if ext == known {
			return true
		}
	}
	return false
}

// ParseKind разбирает категорию из пользовательского ввода.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown file kind %q", s)
}

// ScanFolder собирает файлы категории kind из каталога dir (с подкаталогами).
// Служебные файлы состояния прежних запусков пропускаются. Результат
// отсортирован по пути, чтобы порядок выгрузки был воспроизводим.
func ScanFolder(dir string, kind Kind) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, "_state.json") || strings.HasPrefix(name, ".") {
			return nil
		}
		if kind.matches(name) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// searchFilter возвращает фильтр messages.search для категории. Для
// документов и архивов специализированного фильтра у Telegram нет, поэтому
// берём общий фильтр документов и дорезаем по MIME на нашей стороне.
func (k Kind) searchFilter() tg.MessagesFilterClass {
	switch k {
	case KindImages:
		return &tg.InputMessagesFilterPhotos{}
	case KindVideos:
		return &tg.InputMessagesFilterVideo{}
	case KindDocuments, KindArchives:
		return &tg.InputMessagesFilterDocument{}
	default:
		return &tg.InputMessagesFilterEmpty{}
	}
}

// matchesMime дорезает результаты серверного фильтра по MIME-типу документа.
func (k Kind) matchesMime(mime string) bool {
	switch k {
	case KindDocuments:
		switch mime {
		case "application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"text/plain":
			return true
		}
		return false
	case KindArchives:
		return strings.Contains(mime, "zip") ||
			strings.Contains(mime, "rar") ||
			strings.Contains(mime, "7z") ||
			strings.Contains(mime, "tar") ||
			strings.Contains(mime, "compressed")
	default:
		return true
	}
}

// mimeExtension подбирает расширение по MIME-типу документа без имени.
func mimeExtension(mime string) string {
	switch {
	case mime == "application/pdf":
		return ".pdf"
	case mime == "text/plain":
		return ".txt"
	case strings.Contains(mime, "zip"), strings.Contains(mime, "compressed"):
		return ".zip"
	case strings.HasPrefix(mime, "video/"):
		return ".mp4"
	case mime == "image/png":
		return ".png"
	case strings.HasPrefix(mime, "image/"):
		return ".jpg"
	default:
		return ".bin"
	}
}

// FileName выводит имя локального файла для сообщения с медиа. Для
// документов берётся оригинальное имя из атрибутов, иначе имя строится из
// ID документа и MIME-типа; фото именуются по ID сообщения.
func FileName(msg *tg.Message) string {
	switch media := msg.Media.(type) {
	case *tg.MessageMediaDocument:
		if media.Document == nil {
			break
		}
		doc, ok := media.Document.AsNotEmpty()
		if !ok {
			break
		}
		for _, attr := range doc.Attributes {
			if fn, ok := attr.(*tg.DocumentAttributeFilename); ok && fn.FileName != "" {
				return filepath.Base(fn.FileName)
			}
		}
		return fmt.Sprintf("document_%d%s", doc.ID, mimeExtension(doc.MimeType))
	case *tg.MessageMediaPhoto:
		return fmt.Sprintf("photo_%d.jpg", msg.ID)
	}
	return fmt.Sprintf("media_%d.bin", msg.ID)
}
