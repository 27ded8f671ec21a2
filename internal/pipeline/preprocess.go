package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PreprocessOptions controls the derived-image transform.
type PreprocessOptions struct {
	TargetSize      int    // Square output dimension; 0 keeps the original size
	Format          string // "JPEG" or "PNG"
	Enhance         bool   // Slight brightness/contrast boost
	RemoveWatermark bool   // Heuristic pixel-level watermark softening
	OutDir          string // Destination directory for processed files
}

// PreprocessImages transforms the selected records' raw downloads into
// normalized derived images and writes {processed_path, format, width,
// height, hash} back in one update per record. Records whose raw file is
// missing or unreadable are skipped. Returns the IDs actually processed.
func PreprocessImages(store Store, ids []int64, opts PreprocessOptions) ([]int64, error) {
	records, err := store.GetByIDs(ids)
	if err != nil {
		return nil, err
	}

	format := strings.ToUpper(opts.Format)
	if format != "PNG" {
		format = "JPEG"
	}

	var processed []int64
	for i := range records {
		rec := &records[i]
		if rec.LocalPath == "" {
			continue
		}

		img, err := loadImage(rec.LocalPath)
		if err != nil {
			slog.Warn("Skipping unreadable image", "id", rec.ID, "path", rec.LocalPath, "error", err)
			continue
		}

		if opts.Enhance {
			img = enhance(img)
		}
		if opts.RemoveWatermark {
			img = softenWatermark(img)
		}
		if opts.TargetSize > 0 {
			img = resizeSquare(img, opts.TargetSize)
		}

		outPath, err := writeProcessed(img, rec.LocalPath, opts.OutDir, format)
		if err != nil {
			slog.Warn("Failed to write processed image", "id", rec.ID, "error", err)
			continue
		}

		hash, err := goimagehash.AverageHash(img)
		if err != nil {
			slog.Warn("Failed to hash processed image", "id", rec.ID, "error", err)
			continue
		}

		bounds := img.Bounds()
		if err := store.UpdateDerived(rec.ID, outPath, format, bounds.Dx(), bounds.Dy(), hash.ToString()); err != nil {
			slog.Error("Failed to record processed image", "id", rec.ID, "error", err)
			continue
		}
		processed = append(processed, rec.ID)
	}

	return processed, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func writeProcessed(img image.Image, srcPath, outDir, format string) (string, error) {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	ext := ".jpg"
	if format == "PNG" {
		ext = ".png"
	}
	outPath := filepath.Join(outDir, stem+ext)

	f, err := os.Create(outPath)
	if err != nil {
		return "", err
	}

	if format == "PNG" {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return outPath, nil
}

// resizeSquare scales to size x size with Catmull-Rom interpolation.
func resizeSquare(img image.Image, size int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// enhance applies a 5% brightness and contrast lift.
func enhance(img image.Image) image.Image {
	const brightness = 1.05
	const contrast = 1.05

	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)

	adjust := func(v uint32) uint8 {
		f := float64(v>>8)*brightness - 128
		f = f*contrast + 128
		return clampByte(f)
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			dst.Set(x, y, color.RGBA{adjust(r), adjust(g), adjust(b), 0xff})
		}
	}
	return dst
}

// softenWatermark blends high-gradient pixels toward their neighborhood
// mean. Overlaid watermark strokes are thin high-contrast edges, which this
// suppresses without touching smooth image regions.
func softenWatermark(img image.Image) image.Image {
	const gradientThreshold = 96

	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	gray := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
			dst.Set(x, y, img.At(x, y))
		}
	}

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			gx := int(gray.GrayAt(x+1, y).Y) - int(gray.GrayAt(x-1, y).Y)
			gy := int(gray.GrayAt(x, y+1).Y) - int(gray.GrayAt(x, y-1).Y)
			if gx*gx+gy*gy < gradientThreshold*gradientThreshold {
				continue
			}

			var rSum, gSum, bSum int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					r, g, b, _ := img.At(x+dx, y+dy).RGBA()
					rSum += int(r >> 8)
					gSum += int(g >> 8)
					bSum += int(b >> 8)
				}
			}
			dst.Set(x, y, color.RGBA{uint8(rSum / 9), uint8(gSum / 9), uint8(bSum / 9), 0xff})
		}
	}
	return dst
}

func clampByte(f float64) uint8 {
	switch {
	case f < 0:
		return 0
	case f > 255:
		return 255
	default:
		return uint8(f)
	}
}
