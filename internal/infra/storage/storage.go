// Package storage — утилиты надёжной работы с локальными файлами.
// Здесь живут:
//   - EnsureDir — создание каталога под целевой путь;
//   - AtomicWriteFile — атомарная запись файла через temp + rename.
//
// Применяется для файлов сессий MTProto и реестра аккаунтов: частично
// записанный файл сессии означает потерю логина, поэтому «обычный»
// os.WriteFile здесь недопустим.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"telegram-switcher/internal/infra/logger"
)

// DefaultFilePerm — права на итоговые файлы: сессии и реестр содержат
// чувствительные данные, доступ только владельцу процесса.
const DefaultFilePerm = 0o600

// EnsureDir гарантирует наличие каталога для указанного файла.
// Если путь не содержит директорию ("." или пустая строка), ничего не делает.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile атомарно записывает байты в файл path.
//
// Алгоритм: temp в той же директории → write → fsync(temp) → chmod →
// close → rename → fsync(dir). Либо старый файл остаётся цел, либо новый
// записан полностью. os.Rename атомарен только в пределах одного тома,
// поэтому temp создаётся рядом с целевым файлом. fsync каталога —
// best-effort: часть ОС/ФС его игнорирует.
func AtomicWriteFile(path string, data []byte) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "atomic-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Chmod(DefaultFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// На POSIX rename поверх существующего файла атомарен.
	if err := os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	// fsync каталога фиксирует запись имени файла в журнале ФС.
	if dirFile, err := os.Open(dir); err == nil {
		if errSync := dirFile.Sync(); errSync != nil {
			logger.Warnf("AtomicWriteFile: dir sync error: %v", errSync)
		}
		_ = dirFile.Close()
	}
	return nil
}
