package photos

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newBucket(t *testing.T) *Bucket {
	t.Helper()
	b, err := NewBucket(t.TempDir(), "http://localhost:8080/", slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestUploadResizesAndThumbnails(t *testing.T) {
	b := newBucket(t)
	name := Key("bingo", "task1", time.UnixMilli(1700000000000))

	url, err := b.Upload(context.Background(), name, pngBytes(t, 2400, 800))
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://localhost:8080/photos/bingo-task1-1700000000000.jpg" {
		t.Errorf("url = %q", url)
	}

	img, err := imaging.Open(filepath.Join(b.Dir(), name))
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Dx(); got != MaxWidth {
		t.Errorf("width = %d, want %d", got, MaxWidth)
	}
	if _, err := os.Stat(b.thumbPath(name)); err != nil {
		t.Errorf("thumbnail missing: %v", err)
	}
	if got := b.ThumbURL(url); got != "http://localhost:8080/photos/thumbs/bingo-task1-1700000000000.webp" {
		t.Errorf("thumb url = %q", got)
	}
}

func TestUploadKeepsSmallImages(t *testing.T) {
	b := newBucket(t)
	if _, err := b.Upload(context.Background(), "small.jpg", pngBytes(t, 640, 480)); err != nil {
		t.Fatal(err)
	}
	img, _ := imaging.Open(filepath.Join(b.Dir(), "small.jpg"))
	if img.Bounds().Dx() != 640 {
		t.Errorf("width = %d, want 640", img.Bounds().Dx())
	}
}

func TestUploadRejects(t *testing.T) {
	b := newBucket(t)
	ctx := context.Background()

	if _, err := b.Upload(ctx, "../escape.jpg", pngBytes(t, 10, 10)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("traversal err = %v", err)
	}
	if _, err := b.Upload(ctx, "junk.jpg", []byte("not an image")); err == nil {
		t.Error("undecodable upload accepted")
	}
}

func TestDelete(t *testing.T) {
	b := newBucket(t)
	ctx := context.Background()
	url, _ := b.Upload(ctx, "gone.jpg", pngBytes(t, 50, 50))

	if err := b.Delete(ctx, url, "https://elsewhere.example/x.jpg", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(b.Dir(), "gone.jpg")); !os.IsNotExist(err) {
		t.Errorf("photo still present: %v", err)
	}
	if err := b.Delete(ctx, url); err != nil {
		t.Errorf("second delete: %v", err)
	}
}
