package shot

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"
	"github.com/glaslos/ssdeep"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Image is an encoded screenshot.
type Image []byte

// Save writes the image to dir/name.ext, creating dir if needed and replacing
// any previous file with the same name. It returns the written path.
func (img Image) Save(dir, name, ext string) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("empty image")
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	filename := filepath.Join(dir, name+"."+ext)
	if err := os.WriteFile(filename, img, 0o644); err != nil {
		return "", err
	}

	return filename, nil
}

// IsBlank reports whether every pixel of the image has the same colour.
func (img Image) IsBlank() (bool, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return false, fmt.Errorf("failed to decode image: %w", err)
	}

	b := decoded.Bounds()
	if b.Empty() {
		return true, nil
	}

	r0, g0, b0, a0 := decoded.At(b.Min.X, b.Min.Y).RGBA()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := decoded.At(x, y).RGBA()
			if r != r0 || g != g0 || bl != b0 || a != a0 {
				return false, nil
			}
		}
	}
	return true, nil
}

// Label adds a white strip with text below the image and re-encodes it in
// its original format.
func (img Image) Label(text string) (Image, error) {
	decoded, format, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	face, err := loadFont()
	if err != nil {
		return nil, err
	}

	const padding = 20
	const borderSize = 1

	w := decoded.Bounds().Dx()
	h := decoded.Bounds().Dy() + padding*2 + borderSize
	dc := gg.NewContext(w, h)

	dc.DrawImage(decoded, 0, 0)

	yLine := float64(decoded.Bounds().Dy())
	dc.SetColor(color.White)
	dc.DrawRectangle(0, yLine, float64(w), float64(padding*2+borderSize))
	dc.Fill()
	dc.SetColor(color.Black)
	dc.SetLineWidth(float64(borderSize))
	dc.DrawLine(0, yLine, float64(w), yLine)
	dc.Stroke()
	dc.SetFontFace(face)
	dc.DrawStringAnchored(text, float64(w)/2, yLine+float64(padding), 0.5, 0.3)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(&buf, dc.Image())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

// Similarity returns how alike two images are on a 0-100 scale using ssdeep
// fuzzy hashes. Images too small to hash are compared byte for byte.
func Similarity(a, b Image) int {
	ha, errA := ssdeep.FuzzyBytes(a)
	hb, errB := ssdeep.FuzzyBytes(b)
	if errA == nil && errB == nil {
		if score, err := ssdeep.Distance(ha, hb); err == nil {
			return score
		}
	}

	if sha256.Sum256(a) == sha256.Sum256(b) {
		return 100
	}
	return 0
}

// MostSimilar returns the key of the entry in seen that is at least
// threshold similar to img, or "" when there is none.
func MostSimilar(img Image, seen map[string]Image, threshold int) string {
	best, bestScore := "", -1
	for key, other := range seen {
		score := Similarity(img, other)
		if score >= threshold && score > bestScore {
			best, bestScore = key, score
		}
	}
	return best
}

var (
	fontOnce sync.Once
	fontTTF  *truetype.Font
	fontErr  error
)

func loadFont() (font.Face, error) {
	fontOnce.Do(func() {
		fontTTF, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("failed to parse font: %w", fontErr)
	}

	return truetype.NewFace(fontTTF, &truetype.Options{
		Size: 14,
	}), nil
}
