package thumbs

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestFileName(t *testing.T) {
	a := fileName("http://example.com/a.jpg")
	b := fileName("http://example.com/b.jpg")

	if a == b {
		t.Errorf("different URLs produced the same file name %q", a)
	}
	if a != fileName("http://example.com/a.jpg") {
		t.Error("fileName is not deterministic")
	}
	if !strings.HasSuffix(a, extension) || len(a) != 32+len(extension) {
		t.Errorf("fileName = %q, want 32 hex chars + %s", a, extension)
	}
}

func TestPutAndGet(t *testing.T) {
	c := NewWithDir(filepath.Join(t.TempDir(), "thumbs"), DefaultExpiry)
	data := createTestPNG(t, 40, 20)

	if err := c.Put("http://example.com/a.png", data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := c.Get("http://example.com/a.png")
	if !ok || !bytes.Equal(got, data) {
		t.Fatalf("Get() = %d bytes, %v; want the stored bytes", len(got), ok)
	}

	img := c.Image("http://example.com/a.png")
	if img == nil {
		t.Fatal("Image() returned nil")
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("Image() size = %dx%d, want 40x20", b.Dx(), b.Dy())
	}
}

func TestGetMissing(t *testing.T) {
	c := NewWithDir(t.TempDir(), DefaultExpiry)

	if _, ok := c.Get("http://example.com/none.png"); ok {
		t.Error("Get() for missing URL should report false")
	}
	if c.Image("http://example.com/none.png") != nil {
		t.Error("Image() for missing URL should be nil")
	}
}

func TestImageUndecodable(t *testing.T) {
	c := NewWithDir(t.TempDir(), DefaultExpiry)
	if err := c.Put("u", []byte("not an image")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if c.Image("u") != nil {
		t.Error("Image() should be nil for undecodable data")
	}
}

func TestGetExpired(t *testing.T) {
	dir := t.TempDir()
	c := NewWithDir(dir, time.Hour)
	if err := c.Put("u", []byte("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, ok := c.Get("u"); ok {
		t.Error("Get() should miss for expired file")
	}
	if _, err := os.Stat(filepath.Join(dir, fileName("u"))); !os.IsNotExist(err) {
		t.Error("expired file should have been deleted")
	}
}

func TestPutTooLarge(t *testing.T) {
	c := NewWithDir(t.TempDir(), DefaultExpiry)
	if err := c.Put("u", make([]byte, MaxBytes+1)); err == nil {
		t.Error("Put() should reject oversized data")
	}
}

func TestCleanExpired(t *testing.T) {
	dir := t.TempDir()
	c := NewWithDir(dir, time.Hour)
	for _, u := range []string{"a", "b", "c"} {
		if err := c.Put(u, []byte(u)); err != nil {
			t.Fatalf("Put(%q) error = %v", u, err)
		}
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, fileName("a")), old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	// Unrelated files are left alone.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}
	os.Chtimes(filepath.Join(dir, "notes.txt"), old, old)

	removed, err := c.CleanExpired()
	if err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanExpired() removed %d, want 1", removed)
	}

	files, size, err := c.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if files != 2 || size != 2 {
		t.Errorf("Usage() = %d files, %d bytes; want 2, 2", files, size)
	}
}

func TestCleanExpiredNonExistentDirectory(t *testing.T) {
	c := NewWithDir(filepath.Join(t.TempDir(), "missing"), DefaultExpiry)

	if _, err := c.CleanExpired(); err != nil {
		t.Errorf("CleanExpired() should not error on non-existent directory, got %v", err)
	}
	if files, _, err := c.Usage(); err != nil || files != 0 {
		t.Errorf("Usage() = %d, %v", files, err)
	}
}

func TestDir(t *testing.T) {
	dir := Dir()
	if !filepath.IsAbs(dir) {
		t.Errorf("Dir() = %q, want absolute path", dir)
	}
	if filepath.Base(dir) != subdir {
		t.Errorf("Dir() = %q, want it to end in %s", dir, subdir)
	}
}
