// Package registry — реестр сохранённых Telegram-аккаунтов.
// Реестр хранится в одном JSON-файле (sessions_config.json): мапа
// имя → запись аккаунта плюс указатель на активную запись. Сами файлы
// сессий лежат в отдельном каталоге и для реестра опаковы.
//
// Инварианты:
//  1. Указатель активной сессии либо пуст, либо называет существующую
//     запись, чей файл сессии есть на диске. Повисший указатель
//     обнаруживается при загрузке и сбрасывается с предупреждением.
//  2. Переименование и удаление записи корректируют указатель.
//  3. Add никогда не перезаписывает существующую запись: подтверждение
//     перезаписи — забота CLI-слоя, реестр только возвращает ErrExists.
//
// Потокобезопасность: все публичные методы берут mux; загрузка с диска
// ленивая, каждая мутация атомарно сохраняет файл целиком.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"telegram-switcher/internal/infra/logger"
	"telegram-switcher/internal/infra/storage"

	"github.com/go-faster/errors"
)

// Ошибки уровня реестра. CLI различает их, чтобы печатать осмысленные
// сообщения и спрашивать подтверждения.
var (
	ErrNotFound           = errors.New("session not found")
	ErrExists             = errors.New("session already exists")
	ErrSessionFileMissing = errors.New("session file missing")
	ErrEmptyName          = errors.New("session name is empty")
)

// IsNotFound сообщает, что ошибка вызвана отсутствием записи в реестре.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsExists сообщает, что имя записи уже занято.
func IsExists(err error) bool { return errors.Is(err, ErrExists) }

// IsSessionFileMissing сообщает, что файла сессии нет на диске.
func IsSessionFileMissing(err error) bool { return errors.Is(err, ErrSessionFileMissing) }

// Entry описывает один сохранённый аккаунт. Идентификация (user_id, имя,
// username) заполняется после успешного логина из ответа Self() и служит
// только для отображения в списках.
type Entry struct {
	Name        string    `json:"name"`
	Phone       string    `json:"phone_number"`
	SessionFile string    `json:"session_file"`
	UserID      int64     `json:"user_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	LastUsed    time.Time `json:"last_used,omitzero"`
}

// DisplayName возвращает человекочитаемое имя аккаунта для списков и
// приветствий: "Имя Фамилия" либо телефон, если логин ещё не завершён.
func (e Entry) DisplayName() string {
	full := strings.TrimSpace(strings.TrimSpace(e.FirstName) + " " + strings.TrimSpace(e.LastName))
	if full == "" {
		return e.Phone
	}
	return full
}

// persisted — сериализуемая схема JSON-файла реестра. Ключи полей
// стабилизированы, чтобы возможные миграции были обратимы.
type persisted struct {
	Sessions map[string]Entry `json:"sessions"`
	Current  string           `json:"current_session"`
}

// Registry — потокобезопасный файловый реестр аккаунтов.
//   - path — путь к JSON-файлу реестра;
//   - sessionsDir — каталог, где лежат файлы сессий;
//   - loaded — признак ленивой инициализации из файла;
//   - sessions — мапа имя → запись;
//   - current — имя активной записи ("" — не выбрана).
type Registry struct {
	path        string
	sessionsDir string

	mux      sync.Mutex
	loaded   bool
	sessions map[string]Entry
	current  string
}

// New создаёт реестр с отложенной загрузкой с диска. Конструктор не трогает
// файловую систему: читаем/создаём файл при первом обращении.
func New(path, sessionsDir string) *Registry {
	return &Registry{
		path:        path,
		sessionsDir: sessionsDir,
		sessions:    map[string]Entry{},
	}
}

// SessionFilePath возвращает путь файла сессии для аккаунта с именем name.
// Соглашение то же, что у исходных файлов: <sessions_dir>/<name>.session.
func (r *Registry) SessionFilePath(name string) string {
	return filepath.Join(r.sessionsDir, name+".session")
}

// ensureRegistryJSON гарантирует, что по указанному пути есть корректный JSON
// со схемой persisted. Если файла нет или он пуст — пишет дефолтную
// структуру; если JSON битый — логирует предупреждение и переписывает
// дефолт; нормализует nil-мапу. Возвращает раскодированную структуру.
func ensureRegistryJSON(path string) (persisted, error) {
	clean := filepath.Clean(path)
	if err := storage.EnsureDir(clean); err != nil {
		return persisted{}, err
	}

	writeDefault := func() (persisted, error) {
		p := persisted{Sessions: map[string]Entry{}}
		enc, mErr := json.MarshalIndent(p, "", "  ")
		if mErr != nil {
			return persisted{}, fmt.Errorf("encode default registry: %w", mErr)
		}
		if wErr := storage.AtomicWriteFile(clean, enc); wErr != nil {
			return persisted{}, fmt.Errorf("init registry file: %w", wErr)
		}
		return p, nil
	}

	bytes, err := os.ReadFile(clean)
	if os.IsNotExist(err) || len(bytes) == 0 {
		logger.Debugf("Registry: creating initial file %s", clean)
		return writeDefault()
	}
	if err != nil {
		return persisted{}, fmt.Errorf("read registry: %w", err)
	}

	var p persisted
	if uErr := json.Unmarshal(bytes, &p); uErr != nil {
		// Битый JSON — переписываем дефолтом и продолжаем с пустым реестром.
		logger.Warnf("Registry: failed to decode %s: %v; rewriting default", clean, uErr)
		return writeDefault()
	}
	if p.Sessions == nil {
		p.Sessions = map[string]Entry{}
	}
	return p, nil
}

// load выполняет ленивую загрузку реестра из файла и восстанавливает
// инвариант активного указателя. Вызывается под mux.
func (r *Registry) load() error {
	if r.loaded {
		return nil
	}
	p, err := ensureRegistryJSON(r.path)
	if err != nil {
		return err
	}
	r.sessions = p.Sessions
	r.current = p.Current

	// Повисший указатель: записи нет либо файл сессии исчез с диска.
	// Сброс сразу сохраняется, чтобы и файл реестра не ссылался в пустоту.
	if r.current != "" {
		entry, ok := r.sessions[r.current]
		if !ok {
			logger.Warnf("Registry: active session %q is not registered; clearing pointer", r.current)
			r.current = ""
		} else if _, statErr := os.Stat(entry.SessionFile); statErr != nil {
			logger.Warnf("Registry: session file %s is missing; clearing active pointer", entry.SessionFile)
			r.current = ""
		}
		if r.current != p.Current {
			if err := r.persist(); err != nil {
				return err
			}
		}
	}

	r.loaded = true
	return nil
}

// persist сериализует текущее состояние и атомарно записывает его на диск.
// Вызывается под mux.
func (r *Registry) persist() error {
	enc, err := json.MarshalIndent(persisted{
		Sessions: r.sessions,
		Current:  r.current,
	}, "", "  ")
	if err != nil {
		return err
	}
	return storage.AtomicWriteFile(r.path, enc)
}

// List возвращает отсортированный по имени снимок записей и имя активной.
func (r *Registry) List() ([]Entry, string, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.load(); err != nil {
		return nil, "", err
	}

	result := make([]Entry, 0, len(r.sessions))
	for _, entry := range r.sessions {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, r.current, nil
}

// Get возвращает запись по имени.
func (r *Registry) Get(name string) (Entry, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.load(); err != nil {
		return Entry{}, err
	}
	entry, ok := r.sessions[name]
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "session %q", name)
	}
	return entry, nil
}

// Add регистрирует новую запись. Существующее имя — ошибка ErrExists:
// перезапись без явного подтверждения пользователя запрещена.
func (r *Registry) Add(entry Entry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return ErrEmptyName
	}

	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.load(); err != nil {
		return err
	}
	if _, ok := r.sessions[entry.Name]; ok {
		return errors.Wrapf(ErrExists, "session %q", entry.Name)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.sessions[entry.Name] = entry
	return r.persist()
}

// UpdateIdentity дополняет запись идентификацией аккаунта после логина.
func (r *Registry) UpdateIdentity(name string, userID int64, username, firstName, lastName string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.load(); err != nil {
		return err
	}
	entry, ok := r.sessions[name]
	if !ok {
		return errors.Wrapf(ErrNotFound, "session %q", name)
	}
	entry.UserID = userID
	entry.Username = username
	entry.FirstName = firstName
	entry.LastName = lastName
	r.sessions[name] = entry
	return r.persist()
}

// Rename переименовывает запись и её файл сессии на диске. Если указатель
// активной сессии ссылался на старое имя — он переводится на новое.
func (r *Registry) Rename(oldName, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return ErrEmptyName
	}

	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.load(); err != nil {
		return err
	}
	entry, ok := r.sessions[oldName]
	if !ok {
		return errors.Wrapf(ErrNotFound, "session %q", oldName)
	}
	if _, ok := r.sessions[newName]; ok {
		return errors.Wrapf(ErrExists, "session %q", newName)
	}

	newFile := r.SessionFilePath(newName)
	if _, err := os.Stat(newFile); err == nil {
		return errors.Wrapf(ErrExists, "session file %s", newFile)
	}
	// Файла сессии может ещё не быть (логин не завершён) — это не ошибка.
	if err := os.Rename(entry.SessionFile, newFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename session file: %w", err)
	}

	delete(r.sessions, oldName)
	entry.Name = newName
	entry.SessionFile = newFile
	r.sessions[newName] = entry
	if r.current == oldName {
		r.current = newName
	}
	return r.persist()
}

// Remove удаляет запись и её файл сессии. Если запись была активной,
// указатель сбрасывается. Ошибка удаления файла не фатальна: запись из
// реестра всё равно исчезает, о файле остаётся предупреждение.
func (r *Registry) Remove(name string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.load(); err != nil {
		return err
	}
	entry, ok := r.sessions[name]
	if !ok {
		return errors.Wrapf(ErrNotFound, "session %q", name)
	}

	if err := os.Remove(entry.SessionFile); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Registry: could not delete session file %s: %v", entry.SessionFile, err)
	}

	delete(r.sessions, name)
	if r.current == name {
		r.current = ""
	}
	return r.persist()
}

// Switch делает запись активной. Требует, чтобы файл сессии существовал:
// переключение на аккаунт без завершённого логина бессмысленно.
func (r *Registry) Switch(name string) (Entry, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.load(); err != nil {
		return Entry{}, err
	}
	entry, ok := r.sessions[name]
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "session %q", name)
	}
	if _, err := os.Stat(entry.SessionFile); err != nil {
		return Entry{}, errors.Wrapf(ErrSessionFileMissing, "%s", entry.SessionFile)
	}

	r.current = name
	entry.LastUsed = time.Now()
	r.sessions[name] = entry
	if err := r.persist(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Current возвращает активную запись. ok=false, если активная не выбрана.
func (r *Registry) Current() (Entry, bool, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.load(); err != nil {
		return Entry{}, false, err
	}
	if r.current == "" {
		return Entry{}, false, nil
	}
	entry, ok := r.sessions[r.current]
	if !ok {
		// Не должно случаться: load() и мутации поддерживают инвариант.
		r.current = ""
		return Entry{}, false, nil
	}
	return entry, true, nil
}
