package core

import (
	"context"

	"telegram-switcher/internal/domain/registry"
	"telegram-switcher/internal/infra/config"
	"telegram-switcher/internal/infra/logger"
	"telegram-switcher/internal/infra/pr"
	"telegram-switcher/internal/infra/telegram/session"
	"telegram-switcher/internal/support/version"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"golang.org/x/time/rate"
)

// rateLimitBurst — запас burst для лимитера запросов поверх базового RPS.
const rateLimitBurst = 2

// RunWithEntry поднимает MTProto-клиент под файлом сессии записи entry,
// при необходимости проводит интерактивный логин и выполняет fn. Клиент
// живёт ровно на время операции: соединение закрывается при возврате fn.
//
// Middleware-цепочка: floodwait прозрачно пережидает FLOOD_WAIT,
// ratelimit сглаживает собственный темп запросов.
func RunWithEntry(ctx context.Context, env config.EnvConfig, entry registry.Entry, fn func(ctx context.Context, client *telegram.Client) error) error {
	waiter := floodwait.NewWaiter().WithCallback(func(_ context.Context, wait floodwait.FloodWait) {
		pr.Printf("Telegram asks to wait %s, retrying...\n", wait.Duration)
	})

	opts := telegram.Options{
		SessionStorage: &session.FileStorage{Path: entry.SessionFile},
		Logger:         logger.Logger().Named("td"),
		Device: telegram.DeviceConfig{
			DeviceModel:   version.Name,
			SystemVersion: "cli",
			AppVersion:    version.Version,
		},
		Middlewares: []telegram.Middleware{
			waiter,
			ratelimit.New(rate.Limit(env.ThrottleRPS), rateLimitBurst*env.ThrottleRPS),
		},
	}
	if env.TestDC {
		opts.DCList = dcs.Test()
	}

	client := telegram.NewClient(env.APIID, env.APIHash, opts)

	return waiter.Run(ctx, func(ctx context.Context) error {
		return client.Run(ctx, func(ctx context.Context) error {
			flow := auth.NewFlow(TerminalAuthenticator{PhoneNumber: entry.Phone}, auth.SendCodeOptions{})
			if err := client.Auth().IfNecessary(ctx, flow); err != nil {
				return errors.Wrap(err, "auth")
			}
			return fn(ctx, client)
		})
	})
}
