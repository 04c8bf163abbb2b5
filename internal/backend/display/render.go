package display

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Renderer regenerates display payloads from durable image bytes. The output
// is always PNG, downscaled to at most the configured width. Rendered bytes
// are ephemeral; they live in the handle cache and are never persisted.
type Renderer struct {
	width int
}

func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 512
	}
	return &Renderer{width: width}
}

func (r *Renderer) Render(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}

	if IsSVGData(payload) {
		return r.renderSVG(payload)
	}

	// If input is already PNG and small enough, return original bytes
	if hasCorrectPngSignature(payload) {
		cfg, err := png.DecodeConfig(bytes.NewReader(payload))
		if err == nil && cfg.Width <= r.width {
			slog.Debug("Renderer: PNG within display width; returning original bytes",
				"width", cfg.Width, "display_width", r.width)
			return payload, nil
		}
	}

	// Decode raster image (supports multiple formats via imported decoders)
	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	slog.Debug("Renderer: decoded raster image",
		"format", format,
		"orig_width", img.Bounds().Dx(),
		"orig_height", img.Bounds().Dy())

	if img.Bounds().Dx() > r.width {
		img = scaleToWidth(img, r.width)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode display PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderSVG(payload []byte) ([]byte, error) {
	targetW, targetH := r.width, r.width
	if w, h, ok := parseSvgExplicitSize(payload); ok {
		// Preserve the declared aspect ratio within the display width
		if w > r.width {
			targetH = h * r.width / w
		} else {
			targetW, targetH = w, h
		}
		if targetH <= 0 {
			targetH = 1
		}
	}

	out, err := renderSVGToPNG(payload, targetW, targetH)
	if err != nil {
		return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
	}
	slog.Debug("Renderer: SVG render complete",
		"width", targetW, "height", targetH, "output_size_bytes", len(out))
	return out, nil
}

// scaleToWidth scales img to the target width preserving aspect ratio, using
// nearest-neighbor interpolation.
func scaleToWidth(img image.Image, targetWidth int) image.Image {
	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()
	targetHeight := originalHeight * targetWidth / originalWidth
	if targetHeight <= 0 {
		targetHeight = 1
	}

	target := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	for y := 0; y < targetHeight; y++ {
		for x := 0; x < targetWidth; x++ {
			// Map target coordinates back to original image coordinates
			srcX := bounds.Min.X + x*originalWidth/targetWidth
			srcY := bounds.Min.Y + y*originalHeight/targetHeight
			if srcX >= bounds.Max.X {
				srcX = bounds.Max.X - 1
			}
			if srcY >= bounds.Max.Y {
				srcY = bounds.Max.Y - 1
			}
			target.Set(x, y, img.At(srcX, srcY))
		}
	}
	return target
}

// hasCorrectPngSignature checks whether the provided data begins with a valid PNG signature
func hasCorrectPngSignature(data []byte) bool {
	// PNG signature: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) < 8 {
		return false
	}
	expected := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	return bytes.Equal(data[:8], expected)
}

// IsSVGData performs a lightweight detection of SVG content from raw bytes.
// It checks for an "<svg" tag or the SVG namespace in the initial portion of
// the data.
func IsSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	// Only inspect the first ~4KB for detection
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.HasPrefix(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\"")) ||
		bytes.Contains(header, []byte("xmlns='http://www.w3.org/2000/svg'"))
}

// parseSvgExplicitSize attempts to extract width and height attributes from the SVG.
// Returns width, height, and ok=true if both are found and parseable.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	// Limit to the start tag portion up to '>'
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk && w > 0 && h > 0 {
		return w, h, true
	}
	// If no explicit width/height, do not treat viewBox as pixel size; use fallback.
	return 0, 0, false
}

// parseNumericAttr extracts the leading numeric value of an attribute (e.g., width="123px").
// Returns the integer value and ok=true if found.
func parseNumericAttr(tag, attr string) (int, bool) {
	key := attr + "="
	pos := strings.Index(tag, key)
	if pos < 0 {
		return 0, false
	}
	// Find first quote after the attr name
	q := strings.Index(tag[pos:], "\"")
	single := strings.Index(tag[pos:], "'")
	start := -1
	quoteChar := byte(0)
	if q >= 0 && (single < 0 || q < single) {
		start = pos + q + 1
		quoteChar = '"'
	} else if single >= 0 {
		start = pos + single + 1
		quoteChar = '\''
	}
	if start < 0 || start >= len(tag) {
		return 0, false
	}
	end := strings.IndexByte(tag[start:], quoteChar)
	val := tag[start:]
	if end >= 0 {
		val = tag[start : start+end]
	}
	// Extract leading number
	num := 0
	found := false
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch >= '0' && ch <= '9' {
			found = true
			num = num*10 + int(ch-'0')
		} else if found {
			break
		}
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

// renderSVGToPNG renders an SVG byte slice into a PNG with the given target dimensions.
func renderSVGToPNG(svgData []byte, targetW, targetH int) ([]byte, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", targetW, targetH)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}

	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	// Prepare target canvas (white background)
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			dst.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)

	var buf bytes.Buffer
	buf.Grow(targetW * targetH)
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode rendered SVG as PNG: %w", err)
	}
	return buf.Bytes(), nil
}
