package transfer

import (
	"testing"

	"github.com/gotd/td/tg"
)

func docMessage(id int, docID int64, mime, name string) *tg.Message {
	doc := &tg.Document{ID: docID, MimeType: mime, Size: 1024}
	if name != "" {
		doc.Attributes = []tg.DocumentAttributeClass{
			&tg.DocumentAttributeFilename{FileName: name},
		}
	}
	return &tg.Message{ID: id, Media: &tg.MessageMediaDocument{Document: doc}}
}

func TestItemFromMessageDocuments(t *testing.T) {
	t.Parallel()

	pdf := docMessage(10, 500, "application/pdf", "report.pdf")
	item, ok := itemFromMessage(pdf, KindDocuments)
	if !ok {
		t.Fatal("pdf should match KindDocuments")
	}
	if item.MsgID != 10 || item.Name != "report.pdf" || item.Size != 1024 {
		t.Errorf("item = %+v", item)
	}
	if _, ok := item.Loc.(*tg.InputDocumentFileLocation); !ok {
		t.Errorf("Loc = %T, want *tg.InputDocumentFileLocation", item.Loc)
	}

	// Категория с MIME-дорезкой: zip не является документом pdf.
	zip := docMessage(11, 501, "application/zip", "bundle.zip")
	if _, ok := itemFromMessage(zip, KindDocuments); ok {
		t.Error("zip should not match KindDocuments")
	}
	if _, ok := itemFromMessage(zip, KindArchives); !ok {
		t.Error("zip should match KindArchives")
	}
}

func TestItemFromMessagePhoto(t *testing.T) {
	t.Parallel()

	msg := &tg.Message{ID: 20, Media: &tg.MessageMediaPhoto{
		Photo: &tg.Photo{
			ID:         700,
			AccessHash: 42,
			Sizes: []tg.PhotoSizeClass{
				&tg.PhotoSize{Type: "m", W: 320, H: 240},
				&tg.PhotoSize{Type: "x", W: 800, H: 600},
			},
		},
	}}

	item, ok := itemFromMessage(msg, KindImages)
	if !ok {
		t.Fatal("photo should match KindImages")
	}
	loc, ok := item.Loc.(*tg.InputPhotoFileLocation)
	if !ok {
		t.Fatalf("Loc = %T, want *tg.InputPhotoFileLocation", item.Loc)
	}
	if loc.ThumbSize != "x" {
		t.Errorf("ThumbSize = %q, want largest size %q", loc.ThumbSize, "x")
	}
	if loc.ID != 700 || loc.AccessHash != 42 {
		t.Errorf("loc = %+v", loc)
	}
}

func TestItemFromMessageNoMedia(t *testing.T) {
	t.Parallel()

	if _, ok := itemFromMessage(&tg.Message{ID: 1}, KindAll); ok {
		t.Error("message without media should be skipped")
	}
}

func TestCollectItemsAdvancesPastServiceMessages(t *testing.T) {
	t.Parallel()

	// Страница целиком из пустых и служебных сообщений: элементов нет, но
	// смещение обязано дойти до последнего ID, иначе обход истории зависнет
	// на одной странице.
	page := []tg.MessageClass{
		&tg.MessageEmpty{ID: 90},
		&tg.MessageService{ID: 88},
		&tg.MessageEmpty{ID: 85},
	}
	items, lastID := collectItems(page, KindAll)
	if len(items) != 0 {
		t.Errorf("items = %+v, want none", items)
	}
	if lastID != 85 {
		t.Errorf("lastID = %d, want 85", lastID)
	}

	// Смешанная страница: медиа извлекается, смещение — по последнему
	// сообщению любого типа.
	page = []tg.MessageClass{
		docMessage(70, 1, "application/pdf", "a.pdf"),
		&tg.MessageEmpty{ID: 69},
	}
	items, lastID = collectItems(page, KindDocuments)
	if len(items) != 1 || items[0].MsgID != 70 {
		t.Errorf("items = %+v, want single item from message 70", items)
	}
	if lastID != 69 {
		t.Errorf("lastID = %d, want 69", lastID)
	}
}

func TestDedupeNames(t *testing.T) {
	t.Parallel()

	items := []Item{
		{MsgID: 1, Name: "photo_1.jpg"},
		{MsgID: 2, Name: "report.pdf"},
		{MsgID: 3, Name: "report.pdf"},
		{MsgID: 4, Name: "report.pdf"},
	}
	dedupeNames(items)

	want := []string{"photo_1.jpg", "report.pdf", "report_3.pdf", "report_4.pdf"}
	for i, name := range want {
		if items[i].Name != name {
			t.Errorf("items[%d].Name = %q, want %q", i, items[i].Name, name)
		}
	}
}

func TestHistoryMessagesVariants(t *testing.T) {
	t.Parallel()

	msg := docMessage(1, 1, "application/pdf", "a.pdf")

	for _, resp := range []tg.MessagesMessagesClass{
		&tg.MessagesMessages{Messages: []tg.MessageClass{msg}},
		&tg.MessagesMessagesSlice{Messages: []tg.MessageClass{msg}},
		&tg.MessagesChannelMessages{Messages: []tg.MessageClass{msg}},
	} {
		got, err := historyMessages(resp)
		if err != nil || len(got) != 1 {
			t.Errorf("historyMessages(%T): len=%d err=%v", resp, len(got), err)
		}
	}

	if got, err := historyMessages(&tg.MessagesMessagesNotModified{}); err != nil || got != nil {
		t.Errorf("not modified: got=%v err=%v", got, err)
	}
}
