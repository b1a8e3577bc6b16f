// Package photos is the object storage for proof photos. Uploads are
// re-encoded as compressed JPEG with a small WebP thumbnail next to them and
// served from a public URL prefix.
package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const (
	MaxWidth    = 1200
	ThumbWidth  = 300
	JPEGQuality = 70

	// PathPrefix is where the server mounts the bucket.
	PathPrefix = "/photos/"
	thumbDir   = "thumbs"
)

var ErrInvalidName = errors.New("invalid photo name")

type Bucket struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// NewBucket stores photos under dir and builds public URLs from baseURL.
func NewBucket(dir, baseURL string, logger *slog.Logger) (*Bucket, error) {
	if err := os.MkdirAll(filepath.Join(dir, thumbDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating photo dir: %w", err)
	}
	return &Bucket{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}, nil
}

func (b *Bucket) Dir() string { return b.dir }

// Key names a proof photo, e.g. bingo-<taskID>-<unix ms>.jpg.
func Key(kind, id string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d.jpg", kind, id, at.UnixMilli())
}

// Upload compresses the image in data, stores it under name and returns its
// public URL.
func (b *Bucket) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decoding photo: %w", err)
	}
	if img.Bounds().Dx() > MaxWidth {
		img = imaging.Resize(img, MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return "", fmt.Errorf("encoding photo: %w", err)
	}
	if err := writeFile(filepath.Join(b.dir, name), buf.Bytes()); err != nil {
		return "", err
	}

	thumb := imaging.Resize(img, ThumbWidth, 0, imaging.Lanczos)
	if err := webp.Save(b.thumbPath(name), thumb, &webp.Options{Quality: JPEGQuality}); err != nil {
		b.logger.Warn("thumbnail failed", "name", name, "error", err)
	}

	b.logger.Info("photo stored", "name", name, "bytes", buf.Len())
	return b.PublicURL(name), nil
}

// writeFile writes through a temp file so readers never see a partial photo.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("storing photo: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storing photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storing photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("storing photo: %w", err)
	}
	return nil
}

func (b *Bucket) thumbPath(name string) string {
	return filepath.Join(b.dir, thumbDir, strings.TrimSuffix(name, filepath.Ext(name))+".webp")
}

func (b *Bucket) PublicURL(name string) string {
	return b.baseURL + PathPrefix + name
}

// ThumbURL returns the thumbnail URL for a photo URL from this bucket.
func (b *Bucket) ThumbURL(url string) string {
	name, ok := b.name(url)
	if !ok {
		return ""
	}
	return b.baseURL + PathPrefix + thumbDir + "/" + strings.TrimSuffix(name, filepath.Ext(name)) + ".webp"
}

func (b *Bucket) name(url string) (string, bool) {
	name, ok := strings.CutPrefix(url, b.baseURL+PathPrefix)
	if !ok || name == "" || filepath.Base(name) != name {
		return "", false
	}
	return name, true
}

// Delete removes the photos behind the given public URLs. URLs that do not
// belong to this bucket and files already gone are skipped.
func (b *Bucket) Delete(ctx context.Context, urls ...string) error {
	var errs []error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, ok := b.name(u)
		if !ok {
			continue
		}
		for _, p := range []string{filepath.Join(b.dir, name), b.thumbPath(name)} {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
