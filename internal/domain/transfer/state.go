// Package transfer — выгрузка и скачивание файлов канала.
//
// Журнал переносов (bbolt) хранит отметки об уже отправленных и уже
// скачанных файлах, чтобы прерванная операция продолжалась с места
// остановки, а не с нуля. Отметки группируются по идентификатору канала:
//   - uploads:   channelID → имя локального файла → 1;
//   - downloads: channelID → ID сообщения → 1.
package transfer

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"telegram-switcher/internal/infra/storage"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketUploads   = []byte("uploads")
	bucketDownloads = []byte("downloads")
)

// Journal — журнал завершённых переносов поверх bbolt.
type Journal struct {
	db *bolt.DB
}

// OpenJournal открывает (при необходимости создаёт) файл журнала и корневые
// бакеты. Файл получает те же права, что и остальные данные приложения.
func OpenJournal(path string) (*Journal, error) {
	clean := filepath.Clean(path)
	if err := storage.EnsureDir(clean); err != nil {
		return nil, err
	}
	db, err := bolt.Open(clean, storage.DefaultFilePerm, nil)
	if err != nil {
		return nil, fmt.Errorf("open transfer journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketUploads, bucketDownloads} {
			if _, bErr := tx.CreateBucketIfNotExists(name); bErr != nil {
				return bErr
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init transfer journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close закрывает файл журнала.
func (j *Journal) Close() error {
	return j.db.Close()
}

// channelKey кодирует идентификатор канала в ключ вложенного бакета.
func channelKey(channelID int64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(channelID))
	return key[:]
}

func msgKey(msgID int) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(msgID))
	return key[:]
}

// mark ставит отметку в бакете root → channelID → key.
func (j *Journal) mark(root []byte, channelID int64, key []byte) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		channel, err := tx.Bucket(root).CreateBucketIfNotExists(channelKey(channelID))
		if err != nil {
			return err
		}
		return channel.Put(key, []byte{1})
	})
}

// has проверяет отметку в бакете root → channelID → key.
func (j *Journal) has(root []byte, channelID int64, key []byte) (bool, error) {
	var found bool
	err := j.db.View(func(tx *bolt.Tx) error {
		channel := tx.Bucket(root).Bucket(channelKey(channelID))
		if channel == nil {
			return nil
		}
		found = channel.Get(key) != nil
		return nil
	})
	return found, err
}

// MarkUploaded фиксирует, что файл name отправлен в канал channelID.
// Ключом служит имя файла без каталога: перенос каталога не должен
// обнулять журнал.
func (j *Journal) MarkUploaded(channelID int64, path string) error {
	return j.mark(bucketUploads, channelID, []byte(filepath.Base(path)))
}

// Uploaded сообщает, отправлялся ли файл path в канал channelID.
func (j *Journal) Uploaded(channelID int64, path string) (bool, error) {
	return j.has(bucketUploads, channelID, []byte(filepath.Base(path)))
}

// MarkDownloaded фиксирует, что сообщение msgID из канала channelID скачано.
func (j *Journal) MarkDownloaded(channelID int64, msgID int) error {
	return j.mark(bucketDownloads, channelID, msgKey(msgID))
}

// Downloaded сообщает, скачивалось ли сообщение msgID из канала channelID.
func (j *Journal) Downloaded(channelID int64, msgID int) (bool, error) {
	return j.has(bucketDownloads, channelID, msgKey(msgID))
}
