// Package version содержит имя и версию приложения для CLI-команды version
// и для паспорта устройства MTProto-клиента.
package version

const (
	Name    = "tg-switcher"
	Version = "0.3.1"
)
