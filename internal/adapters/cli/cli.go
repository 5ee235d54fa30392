// Package cli — интерактивная командная консоль переключателя аккаунтов.
// Сервис стартует фоном, читает команды из readline и работает с реестром
// сессий, журналом переносов и MTProto-клиентом. Start/Stop идемпотентны и
// корректно встраиваются в lifecycle приложения.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"telegram-switcher/internal/adapters/telegram/core"
	"telegram-switcher/internal/domain/registry"
	"telegram-switcher/internal/domain/transfer"
	"telegram-switcher/internal/infra/config"
	"telegram-switcher/internal/infra/logger"
	"telegram-switcher/internal/infra/pr"
	versioninfo "telegram-switcher/internal/support/version"

	"github.com/gotd/td/telegram"
)

// commandDescriptor описывает одну CLI-команду: её имя и краткое описание для help.
type commandDescriptor struct {
	name        string
	description string
}

// commandDescriptors — реестр доступных команд. Рендерится в help и подсказки.
// Важно: имена должны совпадать с кейсами в handleCommand().
var commandDescriptors = []commandDescriptor{
	{name: "help", description: "Show available commands with short descriptions"},
	{name: "sessions", description: "List saved sessions, the active one is marked with *"},
	{name: "add", description: "Register a new account and sign in"},
	{name: "switch", description: "switch <name> - make the named session active"},
	{name: "rename", description: "rename <old> <new> - rename a session and its file"},
	{name: "delete", description: "delete <name> - remove a session and its file"},
	{name: "whoami", description: "Sign in with the active session and show account info"},
	{name: "upload", description: "Upload a single file or a folder to a channel"},
	{name: "download", description: "Download media from a channel history"},
	{name: "version", description: "Print application version"},
	{name: "exit", description: "Stop CLI and terminate the application"},
}

// Service инкапсулирует CLI и интегрируется в lifecycle приложения.
// Имеет собственный cancel, запускает цикл чтения команд в отдельной
// горутине и синхронно закрывается через Stop().
type Service struct {
	env       config.EnvConfig
	reg       *registry.Registry
	journal   *transfer.Journal
	stopApp   context.CancelFunc // внешняя отмена приложения (exit, Ctrl-C на пустой строке)
	cancel    context.CancelFunc // локальная отмена run-цикла CLI
	wg        sync.WaitGroup
	onceStart sync.Once
	onceStop  sync.Once
}

// NewService создаёт CLI-сервис. stopApp используется как «глобальная»
// остановка приложения.
func NewService(env config.EnvConfig, reg *registry.Registry, journal *transfer.Journal, stopApp context.CancelFunc) *Service {
	return &Service{env: env, reg: reg, journal: journal, stopApp: stopApp}
}

// Start запускает основной цикл CLI в отдельной горутине. Повторные вызовы
// безопасно игнорируются.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(runCtx)
		}()
	})
}

// Stop завершает CLI: посылает внешнюю остановку приложения, прерывает
// readline, отменяет локальный контекст и дожидается завершения run-цикла.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if s.stopApp != nil {
			s.stopApp()
		}
		if rl := pr.Rl(); rl != nil {
			pr.InterruptReadline()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// run — основной цикл обработчика CLI. Печатает подсказки, устанавливает
// обработчики клавиш и построчно читает команды.
func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.SetPrompt("> ")
	pr.Println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	pr.Println("Press '?' or type 'help' for detailed descriptions.")
	s.printActiveSession()
	installKeyHandlers(s.stopApp)

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		line, err := pr.Rl().Readline()
		if err != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			return
		}

		cmd := strings.TrimSpace(line)
		if s.handleCommand(ctx, cmd) {
			logger.Debugf("CLI: command %q requested exit", cmd)
			return
		}
	}
}

// installKeyHandlers подключает обработчики специальных клавиш для readline:
//   - '?' — печать help без отправки символа в текущую строку;
//   - Ctrl-C на пустой строке — мягкая остановка приложения и прерывание readline;
//   - Ctrl-C на непустой строке — очистка текущей строки.
func installKeyHandlers(stop context.CancelFunc) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}

	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key == '?' {
			printCommandHelp()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		if key == 3 { // Ctrl-C (ETX)
			trimmed := strings.TrimSpace(string(line))
			if trimmed == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			}
			return []rune{}, 0, true
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

// printCommandHelp печатает список поддерживаемых команд и их описания.
func printCommandHelp() {
	pr.Println("Available commands:")
	for _, descriptor := range commandDescriptors {
		pr.Println(fmt.Sprintf("  %-8s - %s", descriptor.name, descriptor.description))
	}
}

// handleCommand разбирает введённую команду и выполняет действие.
// Возвращает true, если команда инициирует завершение CLI ("exit").
func (s *Service) handleCommand(ctx context.Context, cmd string) bool {
	fields := strings.Fields(cmd)
	name := ""
	if len(fields) > 0 {
		name = fields[0]
	}
	args := fields[1:]

	switch name {
	case "help":
		printCommandHelp()
	case "sessions":
		s.handleSessions()
	case "add":
		s.handleAdd(ctx)
	case "switch":
		s.handleSwitch(args)
	case "rename":
		s.handleRename(args)
	case "delete":
		s.handleDelete(args)
	case "whoami":
		s.handleWhoami(ctx)
	case "upload":
		s.handleUpload(ctx)
	case "download":
		s.handleDownload(ctx)
	case "version":
		pr.Printf("%s v%s\n", versioninfo.Name, versioninfo.Version)
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	case "":
		// ignore
	default:
		pr.Println("unknown command:", cmd)
	}
	return false
}

// printActiveSession печатает активную сессию при старте консоли.
func (s *Service) printActiveSession() {
	entry, ok, err := s.reg.Current()
	if err != nil {
		pr.ErrPrintln("registry error:", err)
		return
	}
	if !ok {
		pr.Println("No active session. Use 'add' to register an account or 'switch <name>'.")
		return
	}
	pr.Printf("Active session: %s (%s)\n", entry.Name, entry.DisplayName())
}

// handleSessions выводит все сохранённые сессии, помечая активную звёздочкой.
func (s *Service) handleSessions() {
	entries, current, err := s.reg.List()
	if err != nil {
		pr.ErrPrintln("registry error:", err)
		return
	}
	if len(entries) == 0 {
		pr.Println("No sessions saved yet. Use 'add' to register an account.")
		return
	}
	for _, entry := range entries {
		marker := " "
		if entry.Name == current {
			marker = "*"
		}
		line := fmt.Sprintf("%s %-16s %s", marker, entry.Name, entry.Phone)
		if display := entry.DisplayName(); display != entry.Phone {
			line += "  " + display
		}
		if entry.Username != "" {
			line += "  @" + entry.Username
		}
		if !entry.LastUsed.IsZero() {
			line += "  last used " + entry.LastUsed.Format(time.DateOnly)
		}
		pr.Println(line)
	}
}

// handleAdd регистрирует новый аккаунт: спрашивает имя и телефон, проводит
// интерактивный логин и делает новую сессию активной. Существующее имя
// перезаписывается только после явного подтверждения.
func (s *Service) handleAdd(ctx context.Context) {
	name, err := pr.ReadLine("Session name: ")
	if err != nil || name == "" {
		pr.ErrPrintln("add canceled: session name is required")
		return
	}
	phone, err := pr.ReadLine("Phone number (E.164, e.g. +15551234567): ")
	if err != nil || phone == "" {
		pr.ErrPrintln("add canceled: phone number is required")
		return
	}

	entry := registry.Entry{
		Name:        name,
		Phone:       phone,
		SessionFile: s.reg.SessionFilePath(name),
	}
	// Файл сессии мог остаться от прежней установки и без записи в реестре;
	// молча перезаписывать его нельзя.
	if _, err := s.reg.Get(name); registry.IsNotFound(err) {
		if _, statErr := os.Stat(entry.SessionFile); statErr == nil {
			if !confirm(fmt.Sprintf("Session file %s already exists on disk. Overwrite it?", entry.SessionFile)) {
				pr.Println("add canceled")
				return
			}
		}
	}
	if err := s.reg.Add(entry); err != nil {
		if !registry.IsExists(err) {
			pr.ErrPrintln("add error:", err)
			return
		}
		if !confirm(fmt.Sprintf("Session %q already exists. Overwrite it?", name)) {
			pr.Println("add canceled")
			return
		}
		if err := s.reg.Remove(name); err != nil {
			pr.ErrPrintln("add error:", err)
			return
		}
		if err := s.reg.Add(entry); err != nil {
			pr.ErrPrintln("add error:", err)
			return
		}
	}

	// Логин сразу: без него файла сессии нет и переключиться на запись нельзя.
	err = core.RunWithEntry(ctx, s.env, entry, func(ctx context.Context, client *telegram.Client) error {
		self, err := client.Self(ctx)
		if err != nil {
			return err
		}
		if err := s.reg.UpdateIdentity(name, self.ID, self.Username, self.FirstName, self.LastName); err != nil {
			logger.Warnf("CLI add: identity update failed: %v", err)
		}
		return nil
	})
	if err != nil {
		pr.ErrPrintln("sign in failed:", err)
		pr.Printf("Session %q is registered but not signed in; run 'add' again to retry.\n", name)
		return
	}

	if _, err := s.reg.Switch(name); err != nil {
		pr.ErrPrintln("switch error:", err)
		return
	}
	pr.Printf("Session %q added and set active.\n", name)
}

// handleSwitch делает именованную сессию активной.
func (s *Service) handleSwitch(args []string) {
	if len(args) != 1 {
		pr.ErrPrintln("usage: switch <name>")
		return
	}
	entry, err := s.reg.Switch(args[0])
	if err != nil {
		switch {
		case registry.IsNotFound(err):
			pr.ErrPrintf("no such session %q; see 'sessions'\n", args[0])
		case registry.IsSessionFileMissing(err):
			pr.ErrPrintf("session %q has no session file; sign in with 'add' first\n", args[0])
		default:
			pr.ErrPrintln("switch error:", err)
		}
		return
	}
	pr.Printf("Switched to %s (%s)\n", entry.Name, entry.DisplayName())
}

// handleRename переименовывает сессию и её файл на диске.
func (s *Service) handleRename(args []string) {
	if len(args) != 2 {
		pr.ErrPrintln("usage: rename <old> <new>")
		return
	}
	if err := s.reg.Rename(args[0], args[1]); err != nil {
		switch {
		case registry.IsNotFound(err):
			pr.ErrPrintf("no such session %q\n", args[0])
		case registry.IsExists(err):
			pr.ErrPrintf("session %q already exists\n", args[1])
		default:
			pr.ErrPrintln("rename error:", err)
		}
		return
	}
	pr.Printf("Renamed %q to %q\n", args[0], args[1])
}

// handleDelete удаляет сессию и её файл после подтверждения.
func (s *Service) handleDelete(args []string) {
	if len(args) != 1 {
		pr.ErrPrintln("usage: delete <name>")
		return
	}
	name := args[0]
	if _, err := s.reg.Get(name); err != nil {
		if registry.IsNotFound(err) {
			pr.ErrPrintf("no such session %q\n", name)
		} else {
			pr.ErrPrintln("delete error:", err)
		}
		return
	}
	if !confirm(fmt.Sprintf("Delete session %q and its session file?", name)) {
		pr.Println("delete canceled")
		return
	}
	if err := s.reg.Remove(name); err != nil {
		pr.ErrPrintln("delete error:", err)
		return
	}
	pr.Printf("Session %q deleted.\n", name)
}

// handleWhoami входит под активной сессией и печатает сведения об аккаунте.
// Заодно освежает идентификацию записи в реестре.
func (s *Service) handleWhoami(ctx context.Context) {
	entry, ok := s.requireActive()
	if !ok {
		return
	}
	err := core.RunWithEntry(ctx, s.env, entry, func(ctx context.Context, client *telegram.Client) error {
		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to get self: %w", err)
		}
		fullname := strings.TrimSpace(self.FirstName + " " + self.LastName)
		if fullname == "" {
			fullname = "<unknown>"
		}
		if self.Username != "" {
			pr.Printf("You are: %s (@%s), id=%d\n", fullname, self.Username, self.ID)
		} else {
			pr.Printf("You are: %s, id=%d\n", fullname, self.ID)
		}
		if err := s.reg.UpdateIdentity(entry.Name, self.ID, self.Username, self.FirstName, self.LastName); err != nil {
			logger.Warnf("CLI whoami: identity update failed: %v", err)
		}
		return nil
	})
	if err != nil {
		pr.ErrPrintln("whoami error:", err)
	}
}

// requireActive возвращает активную запись или печатает подсказку.
func (s *Service) requireActive() (registry.Entry, bool) {
	entry, ok, err := s.reg.Current()
	if err != nil {
		pr.ErrPrintln("registry error:", err)
		return registry.Entry{}, false
	}
	if !ok {
		pr.ErrPrintln("no active session; use 'switch <name>' or 'add' first")
		return registry.Entry{}, false
	}
	return entry, true
}

// confirm задаёт вопрос «да/нет» с безопасным ответом по умолчанию «нет».
func confirm(question string) bool {
	resp, err := pr.ReadLine(question + " (y/N): ")
	if err != nil {
		return false
	}
	return resp == "y" || resp == "Y"
}

// joinCommandNames собирает строку имён команд для короткой подсказки.
func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.name)
	}
	return strings.Join(names, ", ")
}
