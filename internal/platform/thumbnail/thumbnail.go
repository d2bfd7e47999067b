// Package thumbnail renders the public Alert stub image shown for a notice
// when the process server did not supply one.
package thumbnail

import (
	"bytes"
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	Width  = 600
	Height = 400
)

type Alert struct {
	CaseNumber    string
	NoticeType    string
	IssuingAgency string
}

// truetype faces cache glyphs and are not safe for concurrent use.
type Renderer struct {
	mu    sync.Mutex
	title font.Face
	body  font.Face
}

func NewRenderer() (*Renderer, error) {
	title, err := loadFace(gobold.TTF, 44)
	if err != nil {
		return nil, fmt.Errorf("could not load title font: %w", err)
	}
	body, err := loadFace(goregular.TTF, 22)
	if err != nil {
		return nil, fmt.Errorf("could not load body font: %w", err)
	}
	return &Renderer{title: title, body: body}, nil
}

func loadFace(ttf []byte, size float64) (font.Face, error) {
	parsed, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}

// Render returns a Width x Height PNG.
func (r *Renderer) Render(a Alert) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dc := gg.NewContext(Width, Height)

	dc.SetColor(color.RGBA{R: 0x1b, G: 0x26, B: 0x3b, A: 0xff})
	dc.DrawRectangle(0, 0, Width, Height)
	dc.Fill()

	dc.SetColor(color.RGBA{R: 0xc9, G: 0xa2, B: 0x27, A: 0xff})
	dc.SetLineWidth(6)
	dc.DrawRectangle(12, 12, Width-24, Height-24)
	dc.Stroke()

	dc.SetFontFace(r.title)
	dc.SetColor(color.White)
	dc.DrawStringAnchored("LEGAL NOTICE", Width/2, 110, 0.5, 0.5)

	dc.SetFontFace(r.body)
	lines := []string{
		orDefault(a.NoticeType, "Legal Notice"),
		"Case " + orDefault(a.CaseNumber, "unassigned"),
	}
	if agency := strings.TrimSpace(a.IssuingAgency); agency != "" {
		lines = append(lines, agency)
	}
	y := 190.0
	for _, line := range lines {
		dc.DrawStringAnchored(truncate(line, 44), Width/2, y, 0.5, 0.5)
		y += 40
	}
	dc.SetColor(color.RGBA{R: 0xc9, G: 0xa2, B: 0x27, A: 0xff})
	dc.DrawStringAnchored("View and accept this notice to receive the full document", Width/2, Height-50, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
