package transfer

import "testing"

func TestUploadMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		caption string
		name    string
		want    string
	}{
		{"", "report.pdf", "report.pdf"},
		{"quarterly report", "report.pdf", "quarterly report"},
		{"", "", ""},
	}
	for _, tc := range tests {
		if got := uploadMessage(tc.caption, tc.name); got != tc.want {
			t.Errorf("uploadMessage(%q, %q) = %q, want %q", tc.caption, tc.name, got, tc.want)
		}
	}
}

func TestMessageRandomIDsDistinct(t *testing.T) {
	t.Parallel()

	seen := make(map[int64]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := messageRandomID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate random_id %d", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIsAlreadyUploaded(t *testing.T) {
	t.Parallel()

	if !IsAlreadyUploaded(errUploadSkipped{path: "a.pdf"}) {
		t.Error("errUploadSkipped should be reported as already uploaded")
	}
	if IsAlreadyUploaded(nil) {
		t.Error("nil is not a skip")
	}
}
