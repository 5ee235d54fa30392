package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"telegram-switcher/internal/adapters/telegram/core"
	"telegram-switcher/internal/domain/transfer"
	"telegram-switcher/internal/infra/pr"

	"github.com/gotd/td/telegram"
)

// handleUpload выгружает файлы из локального каталога в выбранный канал.
// Весь диалог с пользователем (выбор канала, каталога, категории) идёт под
// уже поднятым клиентом: список диалогов нужен до выбора цели.
func (s *Service) handleUpload(ctx context.Context) {
	entry, ok := s.requireActive()
	if !ok {
		return
	}

	err := core.RunWithEntry(ctx, s.env, entry, func(ctx context.Context, client *telegram.Client) error {
		target, err := pickTarget(ctx, client)
		if err != nil {
			return err
		}

		mode, err := pr.ReadLine("Upload mode: 1 - single file, 2 - folder [2]: ")
		if err != nil {
			return err
		}
		uploader := transfer.NewUploader(client.API(), s.journal, s.env.BatchSize)
		if mode == "1" {
			return s.uploadSingle(ctx, uploader, target)
		}

		dir, err := pr.ReadLine(fmt.Sprintf("Folder to upload [%s]: ", s.env.DownloadsDir))
		if err != nil {
			return err
		}
		if dir == "" {
			dir = s.env.DownloadsDir
		}
		kind, err := pickKind()
		if err != nil {
			return err
		}

		files, err := transfer.ScanFolder(dir, kind)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no %s files in %s", kind, dir)
		}
		if !confirm(fmt.Sprintf("Upload %d file(s) from %s to %s?", len(files), dir, target.Title)) {
			pr.Println("upload canceled")
			return nil
		}

		summary, err := uploader.UploadFolder(ctx, target, dir, kind)
		pr.Printf("Upload finished: sent=%d skipped=%d failed=%d\n",
			summary.Sent, summary.Skipped, summary.Failed)
		return err
	})
	if err != nil {
		pr.ErrPrintln("upload error:", err)
	}
}

// uploadSingle отправляет один файл с необязательной подписью. Файл, уже
// отмеченный в журнале, пропускается без ошибки.
func (s *Service) uploadSingle(ctx context.Context, uploader *transfer.Uploader, target transfer.Target) error {
	path, err := pr.ReadLine("File to upload: ")
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("empty file path")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	caption, err := pr.ReadLine("Caption (optional, Enter to use file name): ")
	if err != nil {
		return err
	}

	if err := uploader.UploadFile(ctx, target, path, caption); err != nil {
		if transfer.IsAlreadyUploaded(err) {
			return nil
		}
		return err
	}
	return nil
}

// handleDownload скачивает медиа из истории выбранного канала в локальный
// каталог. Уже скачанные сообщения пропускаются по журналу переносов.
func (s *Service) handleDownload(ctx context.Context) {
	entry, ok := s.requireActive()
	if !ok {
		return
	}

	err := core.RunWithEntry(ctx, s.env, entry, func(ctx context.Context, client *telegram.Client) error {
		target, err := pickTarget(ctx, client)
		if err != nil {
			return err
		}
		kind, err := pickKind()
		if err != nil {
			return err
		}

		dir, err := pr.ReadLine(fmt.Sprintf("Save to folder [%s]: ", s.env.DownloadsDir))
		if err != nil {
			return err
		}
		if dir == "" {
			dir = s.env.DownloadsDir
		}

		downloader := transfer.NewDownloader(client.API(), s.journal, s.env.BatchSize, s.env.HistoryLimit)
		pr.Printf("Searching %s history for %s...\n", target.Title, kind)
		items, err := downloader.Fetch(ctx, target, kind)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			pr.Println("Nothing to download.")
			return nil
		}
		if !confirm(fmt.Sprintf("Download %d file(s) from %s to %s?", len(items), target.Title, dir)) {
			pr.Println("download canceled")
			return nil
		}

		summary, err := downloader.DownloadAll(ctx, target, items, dir)
		pr.Printf("Download finished: saved=%d skipped=%d failed=%d\n",
			summary.Saved, summary.Skipped, summary.Failed)
		return err
	})
	if err != nil {
		pr.ErrPrintln("download error:", err)
	}
}

// pickTarget предлагает выбрать канал из диалогов аккаунта либо ввести
// username/ссылку вручную (пункт 0).
func pickTarget(ctx context.Context, client *telegram.Client) (transfer.Target, error) {
	pr.Println("Fetching dialogs...")
	targets, err := transfer.FetchTargets(ctx, client.API())
	if err != nil {
		return transfer.Target{}, err
	}

	pr.Println("  0. enter channel username or t.me link manually")
	for i, target := range targets {
		pr.Printf("  %d. %s\n", i+1, target.Label())
	}
	line, err := pr.ReadLine("Select channel: ")
	if err != nil {
		return transfer.Target{}, err
	}
	choice, err := strconv.Atoi(line)
	if err != nil || choice < 0 || choice > len(targets) {
		return transfer.Target{}, fmt.Errorf("invalid selection %q", line)
	}
	if choice == 0 {
		ref, err := pr.ReadLine("Channel username or link: ")
		if err != nil {
			return transfer.Target{}, err
		}
		return transfer.Resolve(ctx, client.API(), ref)
	}
	return targets[choice-1], nil
}

// pickKind предлагает выбрать категорию файлов из нумерованного списка.
func pickKind() (transfer.Kind, error) {
	for i, kind := range transfer.Kinds {
		pr.Printf("  %d. %s\n", i+1, kind.Title())
	}
	line, err := pr.ReadLine("Select file kind: ")
	if err != nil {
		return "", err
	}
	choice, err := strconv.Atoi(line)
	if err != nil || choice < 1 || choice > len(transfer.Kinds) {
		return "", fmt.Errorf("invalid selection %q", line)
	}
	return transfer.Kinds[choice-1], nil
}
