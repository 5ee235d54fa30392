package transfer

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gotd/td/tg"
)

func TestScanFolderByKind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	layout := []string{
		"photo.JPG",
		"clip.mp4",
		"report.pdf",
		"bundle.zip",
		"notes.txt",
		"upload_state.json",
		".hidden",
		filepath.Join("nested", "deep.png"),
	}
	for _, rel := range layout {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	tests := []struct {
		kind Kind
		want []string
	}{
		{KindImages, []string{
			filepath.Join(dir, "nested", "deep.png"),
			filepath.Join(dir, "photo.JPG"),
		}},
		{KindVideos, []string{filepath.Join(dir, "clip.mp4")}},
		{KindDocuments, []string{
			filepath.Join(dir, "notes.txt"),
			filepath.Join(dir, "report.pdf"),
		}},
		{KindArchives, []string{filepath.Join(dir, "bundle.zip")}},
		{KindAll, []string{
			filepath.Join(dir, "bundle.zip"),
			filepath.Join(dir, "clip.mp4"),
			filepath.Join(dir, "nested", "deep.png"),
			filepath.Join(dir, "notes.txt"),
			filepath.Join(dir, "photo.JPG"),
			filepath.Join(dir, "report.pdf"),
		}},
	}
	for _, tc := range tests {
		got, err := ScanFolder(dir, tc.kind)
		if err != nil {
			t.Fatalf("ScanFolder(%s): %v", tc.kind, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ScanFolder(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	if k, err := ParseKind("  Videos "); err != nil || k != KindVideos {
		t.Errorf("ParseKind(videos) = %v, %v", k, err)
	}
	if _, err := ParseKind("music"); err == nil {
		t.Error("ParseKind(music) should fail")
	}
}

func TestKindMatchesMime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		mime string
		want bool
	}{
		{KindDocuments, "application/pdf", true},
		{KindDocuments, "application/msword", true},
		{KindDocuments, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", true},
		{KindDocuments, "text/plain", true},
		{KindDocuments, "application/zip", false},
		{KindArchives, "application/zip", true},
		{KindArchives, "application/x-rar-compressed", true},
		{KindArchives, "application/pdf", false},
		{KindAll, "anything/else", true},
		{KindVideos, "video/mp4", true},
	}
	for _, tc := range tests {
		if got := tc.kind.matchesMime(tc.mime); got != tc.want {
			t.Errorf("%s.matchesMime(%s) = %v, want %v", tc.kind, tc.mime, got, tc.want)
		}
	}
}

func TestFileName(t *testing.T) {
	t.Parallel()

	named := &tg.Message{ID: 1, Media: &tg.MessageMediaDocument{
		Document: &tg.Document{
			ID:       900,
			MimeType: "application/pdf",
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: "dir/report.pdf"},
			},
		},
	}}
	if got := FileName(named); got != "report.pdf" {
		t.Errorf("FileName(named doc) = %q", got)
	}

	anon := &tg.Message{ID: 2, Media: &tg.MessageMediaDocument{
		Document: &tg.Document{ID: 901, MimeType: "application/zip"},
	}}
	if got := FileName(anon); got != "document_901.zip" {
		t.Errorf("FileName(anonymous zip) = %q", got)
	}

	photo := &tg.Message{ID: 3, Media: &tg.MessageMediaPhoto{Photo: &tg.Photo{ID: 55}}}
	if got := FileName(photo); got != "photo_3.jpg" {
		t.Errorf("FileName(photo) = %q", got)
	}

	if got := FileName(&tg.Message{ID: 4}); got != "media_4.bin" {
		t.Errorf("FileName(no media) = %q", got)
	}
}
