// Package core — клиентский слой gotd: запуск MTProto-клиента под нужным
// файлом сессии и терминальная авторизация. Файл auth.go описывает
// auth.UserAuthenticator, собирающий код подтверждения, пароль 2FA и данные
// регистрации из консоли.
package core

import (
	"context"
	"syscall"

	"telegram-switcher/internal/infra/pr"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
)

// TerminalAuthenticator реализует auth.UserAuthenticator для интерактивного
// логина. Телефон известен заранее (из записи реестра), остальное
// спрашивается у пользователя по ходу входа.
type TerminalAuthenticator struct {
	PhoneNumber string
}

// Phone возвращает заранее известный номер телефона. Ожидается E.164.
func (t TerminalAuthenticator) Phone(_ context.Context) (string, error) {
	return t.PhoneNumber, nil
}

// Code запрашивает код подтверждения, присланный Telegram.
func (t TerminalAuthenticator) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return pr.ReadLine("Enter the code from Telegram: ")
}

// Password считывает пароль двухфакторной аутентификации без эха.
func (t TerminalAuthenticator) Password(_ context.Context) (string, error) {
	pr.Print("Enter 2FA password: ")
	passwordBytes, err := term.ReadPassword(syscall.Stdin)
	// Возвращаем курсор на новую строку после скрытого ввода.
	pr.Println()
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

// AcceptTermsOfService выводит текст условий использования и запрашивает
// согласие. Принимаются только ответы "y"/"Y".
func (t TerminalAuthenticator) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	pr.Printf("Telegram Terms of Service: %s\n", tos.Text)
	resp, err := pr.ReadLine("Do you accept? (y/n): ")
	if err != nil {
		return err
	}
	if resp != "y" && resp != "Y" {
		return errors.New("user did not accept terms of service")
	}
	return nil
}

// SignUp вызывается для незарегистрированного номера: собирает имя и
// опциональную фамилию.
func (t TerminalAuthenticator) SignUp(_ context.Context) (auth.UserInfo, error) {
	firstName, err := pr.ReadLine("Enter your first name: ")
	if err != nil {
		return auth.UserInfo{}, err
	}
	lastName, _ := pr.ReadLine("Enter your last name (optional): ")
	return auth.UserInfo{
		FirstName: firstName,
		LastName:  lastName,
	}, nil
}
