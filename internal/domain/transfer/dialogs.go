package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gotd/td/tg"
)

const (
	dialogPageLimit  = 100
	dialogZeroOffset = 0
)

var errDialogsNotModified = errors.New("dialogs not modified")

// Target — диалог, пригодный для переноса файлов: канал, группа или личный
// чат. Peer уже содержит access_hash и готов к использованию в запросах.
type Target struct {
	Title    string
	Username string
	Kind     string // "channel", "group", "chat"
	ID       int64
	Peer     tg.InputPeerClass
}

// Label возвращает строку для списка выбора: заголовок плюс username.
func (t Target) Label() string {
	if t.Username != "" {
		return fmt.Sprintf("%s (@%s, %s)", t.Title, t.Username, t.Kind)
	}
	return fmt.Sprintf("%s (%s)", t.Title, t.Kind)
}

// FetchTargets выгружает все диалоги аккаунта и превращает каналы и группы
// в список целей переноса. Пагинация по (offset_date, offset_id,
// offset_peer): access_hash для смещений собираются из уже полученных
// страниц.
func FetchTargets(ctx context.Context, api *tg.Client) ([]Target, error) {
	offsetDate := dialogZeroOffset
	offsetID := dialogZeroOffset
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	userHashes := make(map[int64]int64)
	channelHashes := make(map[int64]int64)

	var all tg.MessagesDialogs
	for {
		resp, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogPageLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("MessagesGetDialogs: %w", err)
		}

		batch, err := normalizeDialogsResponse(resp)
		if err != nil {
			if errors.Is(err, errDialogsNotModified) {
				break
			}
			return nil, err
		}
		if len(batch.Dialogs) == 0 {
			break
		}

		all.Dialogs = append(all.Dialogs, batch.Dialogs...)
		all.Messages = append(all.Messages, batch.Messages...)
		all.Chats = append(all.Chats, batch.Chats...)
		all.Users = append(all.Users, batch.Users...)

		for _, entity := range batch.Users {
			if user, ok := entity.(*tg.User); ok {
				userHashes[user.ID] = user.AccessHash
			}
		}
		for _, entity := range batch.Chats {
			if channel, ok := entity.(*tg.Channel); ok {
				channelHashes[channel.ID] = channel.AccessHash
			}
		}

		lastDialog := batch.Dialogs[len(batch.Dialogs)-1]
		prevOffsetDate := offsetDate
		prevOffsetID := offsetID

		switch dlg := lastDialog.(type) {
		case *tg.Dialog:
			offsetID = dlg.TopMessage
			offsetDate = messageDate(batch.Messages, dlg.TopMessage)
			offsetPeer = dialogPeerToInput(dlg.Peer, userHashes, channelHashes)
		case *tg.DialogFolder:
			offsetID = dlg.TopMessage
			offsetDate = messageDate(batch.Messages, dlg.TopMessage)
			offsetPeer = dialogPeerToInput(dlg.Peer, userHashes, channelHashes)
		default:
			offsetPeer = &tg.InputPeerEmpty{}
		}

		if offsetDate == dialogZeroOffset {
			offsetDate = prevOffsetDate
		}
		if offsetID == dialogZeroOffset {
			offsetID = prevOffsetID
		}

		if len(batch.Dialogs) < dialogPageLimit {
			break
		}
	}

	return targetsFromDialogs(&all), nil
}

func normalizeDialogsResponse(resp tg.MessagesDialogsClass) (*tg.MessagesDialogs, error) {
	switch data := resp.(type) {
	case *tg.MessagesDialogs:
		return data, nil
	case *tg.MessagesDialogsSlice:
		return &tg.MessagesDialogs{
			Dialogs:  data.Dialogs,
			Messages: data.Messages,
			Chats:    data.Chats,
			Users:    data.Users,
		}, nil
	case *tg.MessagesDialogsNotModified:
		return nil, errDialogsNotModified
	default:
		return nil, fmt.Errorf("unexpected dialogs response: %T", resp)
	}
}

func messageDate(messages []tg.MessageClass, id int) int {
	for _, msg := range messages {
		switch item := msg.(type) {
		case *tg.Message:
			if item.ID == id {
				return item.Date
			}
		case *tg.MessageService:
			if item.ID == id {
				return item.Date
			}
		}
	}
	return dialogZeroOffset
}

func dialogPeerToInput(peer tg.PeerClass, userHashes, channelHashes map[int64]int64) tg.InputPeerClass {
	switch entity := peer.(type) {
	case *tg.PeerUser:
		return &tg.InputPeerUser{UserID: entity.UserID, AccessHash: userHashes[entity.UserID]}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: entity.ChatID}
	case *tg.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: entity.ChannelID, AccessHash: channelHashes[entity.ChannelID]}
	default:
		return &tg.InputPeerEmpty{}
	}
}

// targetsFromDialogs отбирает каналы и группы из списка диалогов. Личные
// чаты и удалённые каналы пропускаются. Список отсортирован по заголовку.
func targetsFromDialogs(dialogs *tg.MessagesDialogs) []Target {
	seen := make(map[int64]struct{})
	var targets []Target
	for _, entity := range dialogs.Chats {
		switch chat := entity.(type) {
		case *tg.Channel:
			if chat.Left {
				continue
			}
			if _, ok := seen[chat.ID]; ok {
				continue
			}
			seen[chat.ID] = struct{}{}
			kind := "group"
			if chat.Broadcast {
				kind = "channel"
			}
			targets = append(targets, Target{
				Title:    chat.Title,
				Username: chat.Username,
				Kind:     kind,
				ID:       chat.ID,
				Peer:     &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash},
			})
		case *tg.Chat:
			if chat.Left || chat.Deactivated {
				continue
			}
			if _, ok := seen[chat.ID]; ok {
				continue
			}
			seen[chat.ID] = struct{}{}
			targets = append(targets, Target{
				Title: chat.Title,
				Kind:  "chat",
				ID:    chat.ID,
				Peer:  &tg.InputPeerChat{ChatID: chat.ID},
			})
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Title < targets[j].Title })
	return targets
}

// Resolve находит цель по username или ссылке t.me. Работает и для каналов,
// в которых аккаунт не состоит, если они публичные.
func Resolve(ctx context.Context, api *tg.Client, ref string) (Target, error) {
	username := strings.TrimSpace(ref)
	username = strings.TrimPrefix(username, "https://t.me/")
	username = strings.TrimPrefix(username, "t.me/")
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return Target{}, fmt.Errorf("empty channel reference")
	}

	resolved, err := api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return Target{}, fmt.Errorf("resolve %q: %w", username, err)
	}
	for _, entity := range resolved.Chats {
		if channel, ok := entity.(*tg.Channel); ok {
			kind := "group"
			if channel.Broadcast {
				kind = "channel"
			}
			return Target{
				Title:    channel.Title,
				Username: channel.Username,
				Kind:     kind,
				ID:       channel.ID,
				Peer:     &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash},
			}, nil
		}
	}
	return Target{}, fmt.Errorf("%q is not a channel or group", username)
}
