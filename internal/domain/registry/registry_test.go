package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// newTestRegistry готовит реестр во временном каталоге вместе с каталогом
// для файлов сессий.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	sessionsDir := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		t.Fatalf("mkdir sessions: %v", err)
	}
	return New(filepath.Join(dir, "sessions_config.json"), sessionsDir)
}

// addWithFile регистрирует запись и создаёт её файл сессии на диске.
func addWithFile(t *testing.T, r *Registry, name string) Entry {
	t.Helper()
	entry := Entry{
		Name:        name,
		Phone:       "+1000" + name,
		SessionFile: r.SessionFilePath(name),
	}
	if err := r.Add(entry); err != nil {
		t.Fatalf("Add(%q): %v", name, err)
	}
	if err := os.WriteFile(entry.SessionFile, []byte("session-data-"+name), 0o600); err != nil {
		t.Fatalf("write session file: %v", err)
	}
	return entry
}

func TestAddDuplicateRejected(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	addWithFile(t, r, "work")

	err := r.Add(Entry{Name: "work", SessionFile: r.SessionFilePath("work")})
	if !IsExists(err) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := r.Add(Entry{Name: "  "}); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestSwitchRequiresSessionFile(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	entry := addWithFile(t, r, "main")

	got, err := r.Switch("main")
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if got.LastUsed.IsZero() {
		t.Error("Switch should stamp LastUsed")
	}

	// Запись без файла сессии активной стать не может.
	if err := r.Add(Entry{Name: "pending", SessionFile: r.SessionFilePath("pending")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Switch("pending"); !IsSessionFileMissing(err) {
		t.Fatalf("expected ErrSessionFileMissing, got %v", err)
	}
	if _, err := r.Switch("ghost"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Неудачный Switch не трогает указатель.
	current, ok, err := r.Current()
	if err != nil || !ok {
		t.Fatalf("Current: ok=%v err=%v", ok, err)
	}
	if current.Name != entry.Name {
		t.Errorf("active = %q, want %q", current.Name, entry.Name)
	}
}

func TestRenameMovesFileAndPointer(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	addWithFile(t, r, "old")
	if _, err := r.Switch("old"); err != nil {
		t.Fatalf("Switch: %v", err)
	}

	if err := r.Rename("old", "new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := os.Stat(r.SessionFilePath("old")); !os.IsNotExist(err) {
		t.Error("old session file should be gone")
	}
	data, err := os.ReadFile(r.SessionFilePath("new"))
	if err != nil {
		t.Fatalf("read renamed session file: %v", err)
	}
	if string(data) != "session-data-old" {
		t.Errorf("session file content lost on rename: %q", data)
	}

	current, ok, err := r.Current()
	if err != nil || !ok {
		t.Fatalf("Current: ok=%v err=%v", ok, err)
	}
	if current.Name != "new" || current.SessionFile != r.SessionFilePath("new") {
		t.Errorf("pointer not repaired: %+v", current)
	}

	addWithFile(t, r, "other")
	if err := r.Rename("other", "new"); !IsExists(err) {
		t.Fatalf("rename onto existing name: expected ErrExists, got %v", err)
	}
}

func TestRemoveClearsPointerAndFile(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	entry := addWithFile(t, r, "main")
	addWithFile(t, r, "backup")
	if _, err := r.Switch("main"); err != nil {
		t.Fatalf("Switch: %v", err)
	}

	if err := r.Remove("main"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(entry.SessionFile); !os.IsNotExist(err) {
		t.Error("session file should be deleted")
	}
	if _, ok, err := r.Current(); err != nil || ok {
		t.Errorf("pointer should be cleared after removing active session: ok=%v err=%v", ok, err)
	}

	// Удаление неактивной записи указатель не трогает.
	if _, err := r.Switch("backup"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	addWithFile(t, r, "scratch")
	if err := r.Remove("scratch"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	current, ok, err := r.Current()
	if err != nil || !ok || current.Name != "backup" {
		t.Errorf("active = %+v ok=%v err=%v, want backup", current, ok, err)
	}
}

func TestLoadRepairsDanglingPointer(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	entry := addWithFile(t, r, "main")
	if _, err := r.Switch("main"); err != nil {
		t.Fatalf("Switch: %v", err)
	}

	// Файл сессии пропал между запусками.
	if err := os.Remove(entry.SessionFile); err != nil {
		t.Fatalf("remove session file: %v", err)
	}

	fresh := New(r.path, r.sessionsDir)
	if _, ok, err := fresh.Current(); err != nil || ok {
		t.Errorf("dangling pointer should be cleared on load: ok=%v err=%v", ok, err)
	}
	// Сама запись при этом остаётся в реестре.
	entries, _, err := fresh.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "main" {
		t.Errorf("entries = %+v, want single entry main", entries)
	}

	// Сброс указателя фиксируется и в файле реестра: следующему процессу
	// повисший указатель достаться не должен.
	data, err := os.ReadFile(r.path)
	if err != nil {
		t.Fatalf("read registry file: %v", err)
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode registry file: %v", err)
	}
	if p.Current != "" {
		t.Errorf("stored current_session = %q, want empty after repair", p.Current)
	}
}

func TestLoadRecoversCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sessions_config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	r := New(path, filepath.Join(dir, "sessions"))
	entries, current, err := r.List()
	if err != nil {
		t.Fatalf("List after corrupt file: %v", err)
	}
	if len(entries) != 0 || current != "" {
		t.Errorf("corrupt file should reset registry, got entries=%v current=%q", entries, current)
	}

	// Файл переписан валидным JSON.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		t.Errorf("rewritten registry is not valid JSON: %v", err)
	}
}

func TestListPersistedRoundTrip(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	addWithFile(t, r, "beta")
	addWithFile(t, r, "alpha")
	if _, err := r.Switch("beta"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if err := r.UpdateIdentity("alpha", 42, "alpha_user", "Alice", "Doe"); err != nil {
		t.Fatalf("UpdateIdentity: %v", err)
	}

	fresh := New(r.path, r.sessionsDir)
	entries, current, err := fresh.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if current != "beta" {
		t.Errorf("current = %q, want beta", current)
	}
	if len(entries) != 2 || entries[0].Name != "alpha" || entries[1].Name != "beta" {
		t.Fatalf("entries not sorted by name: %+v", entries)
	}
	if entries[0].UserID != 42 || entries[0].Username != "alpha_user" {
		t.Errorf("identity lost on reload: %+v", entries[0])
	}
	if got := entries[0].DisplayName(); got != "Alice Doe" {
		t.Errorf("DisplayName = %q, want %q", got, "Alice Doe")
	}
}
