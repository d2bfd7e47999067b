package thumbnail

import (
	"bytes"
	"image/png"
	"testing"
)

func TestRenderProducesPNG(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	out, err := r.Render(Alert{CaseNumber: "34-2501-001", NoticeType: "Summons", IssuingAgency: "Superior Court of Example County, Civil Division, Department 12"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != Width || b.Dy() != Height {
		t.Fatalf("unexpected size: %v", b)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
