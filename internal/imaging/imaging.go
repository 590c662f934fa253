// Package imaging stores uploaded machine photos as bounded JPEG files.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // decoder
	"image/jpeg"
	_ "image/png" // decoder
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // decoder
)

// WebPrefix is the URL path the image directory is served under.
const WebPrefix = "/static/images/"

// Compressor resizes uploads to fit a square box and writes them as JPEG.
type Compressor struct {
	dir     string
	maxSize int
	quality int
}

// NewCompressor writes into dir, shrinking images to at most maxSize pixels
// on each side.
func NewCompressor(dir string, maxSize, quality int) *Compressor {
	return &Compressor{dir: dir, maxSize: maxSize, quality: quality}
}

// Save decodes r, fits it into the box and writes <name>.jpg, where name is
// the base of filename without extension. It returns the web path.
func (c *Compressor) Save(r io.Reader, filename string) (string, error) {
	name := baseName(filename)
	if name == "" {
		return "", fmt.Errorf("invalid image name %q", filename)
	}

	src, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating image directory: %w", err)
	}

	out := filepath.Join(c.dir, name+".jpg")
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(f, c.fit(src), &jpeg.Options{Quality: c.quality}); err != nil {
		f.Close()
		os.Remove(out)
		return "", fmt.Errorf("encoding jpeg: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return WebPrefix + name + ".jpg", nil
}

// Remove deletes the file behind a web path returned by Save. Whatever
// extension the path carries, the .jpg file is removed. Missing files are
// not an error.
func (c *Compressor) Remove(webPath string) error {
	file := c.file(webPath)
	if file == "" {
		return nil
	}
	err := os.Remove(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Replace removes the file behind old unless it is the same file as current.
func (c *Compressor) Replace(old, current string) error {
	if c.file(old) == c.file(current) {
		return nil
	}
	return c.Remove(old)
}

func (c *Compressor) file(webPath string) string {
	if !strings.HasPrefix(webPath, WebPrefix) {
		return ""
	}
	name := baseName(strings.TrimPrefix(webPath, WebPrefix))
	if name == "" {
		return ""
	}
	return filepath.Join(c.dir, name+".jpg")
}

// fit flattens src onto white and scales it down into the box keeping its
// aspect ratio. Images already inside the box keep their size.
func (c *Compressor) fit(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > c.maxSize || h > c.maxSize {
		if w >= h {
			h = max(1, h*c.maxSize/w)
			w = c.maxSize
		} else {
			w = max(1, w*c.maxSize/h)
			h = c.maxSize
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func baseName(filename string) string {
	base := path.Base(filepath.ToSlash(filename))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
