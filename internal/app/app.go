// Package app — верхний уровень сборки приложения: связывает конфигурацию,
// реестр сессий, журнал переносов и CLI, управляет их жизненным циклом и
// корректным завершением. MTProto-клиент здесь не создаётся: он живёт
// внутри отдельных команд CLI ровно на время операции.
package app

import (
	"context"
	"fmt"

	"telegram-switcher/internal/adapters/cli"
	"telegram-switcher/internal/domain/registry"
	"telegram-switcher/internal/domain/transfer"
	"telegram-switcher/internal/infra/config"
	"telegram-switcher/internal/infra/logger"
)

// App агрегирует зависимости переключателя аккаунтов.
// Отвечает за:
//   - реестр сессий и указатель активного аккаунта,
//   - журнал переносов (resume выгрузок и скачиваний),
//   - интерактивную консоль и graceful shutdown по exit/Ctrl-C/сигналу.
type App struct {
	env        config.EnvConfig
	mainCtx    context.Context    // Контекст жизненного цикла приложения.
	mainCancel context.CancelFunc // Инициирует отмену mainCtx.

	reg     *registry.Registry
	journal *transfer.Journal
	console *cli.Service
}

// NewApp создаёт каркас приложения. Фактическая инициализация происходит в Run().
func NewApp(mainCtx context.Context, mainCancel context.CancelFunc, env config.EnvConfig) *App {
	return &App{
		env:        env,
		mainCtx:    mainCtx,
		mainCancel: mainCancel,
	}
}

// Run собирает подсистемы, запускает CLI и блокируется до остановки
// приложения. Остановка приходит из команды exit, Ctrl-C или сигнала ОС.
func (a *App) Run() error {
	logger.Info("Session switcher initializing...")

	a.reg = registry.New(a.env.SessionsFile, a.env.SessionsDir)
	// Ранняя загрузка: битый файл реестра или повисший указатель чинятся до
	// того, как пользователь введёт первую команду.
	if _, _, err := a.reg.List(); err != nil {
		return fmt.Errorf("init session registry: %w", err)
	}

	journal, err := transfer.OpenJournal(a.env.TransferStateFile)
	if err != nil {
		return fmt.Errorf("init transfer journal: %w", err)
	}
	a.journal = journal
	defer func() {
		if closeErr := a.journal.Close(); closeErr != nil {
			logger.Warnf("App: close transfer journal: %v", closeErr)
		}
	}()

	a.console = cli.NewService(a.env, a.reg, a.journal, a.mainCancel)
	a.console.Start(a.mainCtx)
	logger.Info("Session switcher started")

	<-a.mainCtx.Done()

	logger.Info("Shutting down...")
	a.console.Stop()
	return nil
}
