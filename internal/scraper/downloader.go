package scraper

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"

	// Registered decoders for the formats the sources actually serve.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const jpegQuality = 95

// Downloader fetches a single image URL, validates it as a decodable image
// above a minimum pixel size, and persists it under a filename derived from
// the source URL so re-downloads overwrite rather than duplicate.
type Downloader struct {
	client  *Client
	destDir string
	minSize int
}

// NewDownloader creates a downloader writing into destDir. Images with
// either dimension below minSize are rejected.
func NewDownloader(client *Client, destDir string, minSize int) *Downloader {
	return &Downloader{
		client:  client,
		destDir: destDir,
		minSize: minSize,
	}
}

// Download fetches and persists one image. A nil ImageInfo with a nil error
// means the bytes were fetched but are not a usable image (decode failure or
// below minimum size); retrying cannot fix that, so the candidate is simply
// discarded. Network failures surface as errors after the client's retry
// budget is spent.
func (d *Downloader) Download(ctx context.Context, url string) (*ImageInfo, error) {
	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK || len(resp.Body) == 0 {
		return nil, fmt.Errorf("download returned status %d for %s", resp.StatusCode, url)
	}

	img, _, err := image.Decode(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < d.minSize || height < d.minSize {
		return nil, nil
	}

	outPath := filepath.Join(d.destDir, FilenameForURL(url))
	if err := writeJPEG(outPath, img); err != nil {
		return nil, fmt.Errorf("failed to persist image: %w", err)
	}

	return &ImageInfo{
		LocalPath: outPath,
		Width:     width,
		Height:    height,
		Format:    "JPEG",
	}, nil
}

// FilenameForURL derives a deterministic filename from a source URL.
func FilenameForURL(url string) string {
	digest := sha256.Sum256([]byte(url))
	return fmt.Sprintf("img_%x.jpg", digest[:8])
}

// writeJPEG re-encodes the image as JPEG and writes it atomically: encode to
// a temp file in the same directory, then rename over the target so a crash
// never leaves a partial file at the final path.
func writeJPEG(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
