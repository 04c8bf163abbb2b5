package display

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode rendered PNG: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestRender_SmallPNGPassthrough(t *testing.T) {
	renderer := NewRenderer(512)
	payload := encodePNG(t, 64, 64)

	out, err := renderer.Render(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Error("expected original bytes to be returned unchanged")
	}
}

func TestRender_LargePNGDownscaled(t *testing.T) {
	renderer := NewRenderer(100)
	payload := encodePNG(t, 400, 200)

	out, err := renderer.Render(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	width, height := decodeSize(t, out)
	if width != 100 {
		t.Errorf("expected width 100, got %d", width)
	}
	if height != 50 {
		t.Errorf("expected aspect-preserving height 50, got %d", height)
	}
}

func TestRender_SVGWithExplicitSize(t *testing.T) {
	renderer := NewRenderer(512)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="80" height="40"><rect width="80" height="40" fill="red"/></svg>`)

	out, err := renderer.Render(svg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	width, height := decodeSize(t, out)
	if width != 80 || height != 40 {
		t.Errorf("expected 80x40, got %dx%d", width, height)
	}
}

func TestRender_SVGWithoutSizeUsesDisplayWidth(t *testing.T) {
	renderer := NewRenderer(128)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><circle cx="5" cy="5" r="5" fill="blue"/></svg>`)

	out, err := renderer.Render(svg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	width, height := decodeSize(t, out)
	if width != 128 || height != 128 {
		t.Errorf("expected 128x128 fallback, got %dx%d", width, height)
	}
}

func TestRender_OversizedSVGScaledToWidth(t *testing.T) {
	renderer := NewRenderer(100)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="400" height="200"><rect width="400" height="200"/></svg>`)

	out, err := renderer.Render(svg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	width, height := decodeSize(t, out)
	if width != 100 || height != 50 {
		t.Errorf("expected 100x50, got %dx%d", width, height)
	}
}

func TestRender_EmptyPayload(t *testing.T) {
	renderer := NewRenderer(512)
	if _, err := renderer.Render(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestRender_UndecodableData(t *testing.T) {
	renderer := NewRenderer(512)
	if _, err := renderer.Render([]byte("not an image")); err == nil {
		t.Fatal("expected error for undecodable data")
	}
}

func TestIsSVGData(t *testing.T) {
	cases := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{"svg tag", []byte(`<svg width="10"></svg>`), true},
		{"xml prolog", []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"/>`), true},
		{"png bytes", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, false},
		{"empty", nil, false},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			if IsSVGData(testCase.data) != testCase.expected {
				t.Errorf("expected %v for %q", testCase.expected, testCase.data)
			}
		})
	}
}
