// Package proof validates, recompresses, and stores proof-of-payment images.
package proof

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	// MaxUploadSize caps the accepted upload at 5 MB.
	MaxUploadSize = 5 << 20

	// maxDimension bounds the stored image on its longer side; quality is
	// the JPEG re-encode setting. Together they bound storage cost per slip.
	maxDimension = 1600
	jpegQuality  = 80
)

var (
	ErrNotImage = errors.New("file harus berupa gambar")
	ErrTooLarge = errors.New("ukuran gambar maksimal 5 MB")
	ErrDecode   = errors.New("gambar tidak dapat dibaca")
)

// Result describes a stored proof image. Orientation is a UX hint only.
type Result struct {
	Filename    string
	URL         string
	Width       int
	Height      int
	Orientation string // "portrait", "landscape", or "square"
}

// Processor normalizes and persists uploaded proof images under a directory
// served as /uploads.
type Processor struct {
	dir string
}

func NewProcessor(dir string) *Processor {
	return &Processor{dir: dir}
}

// Process checks type and size, re-encodes the image bounded to
// maxDimension, and writes it to disk. The declared content type is
// cross-checked against content sniffing so a renamed PDF doesn't get
// through.
func (p *Processor) Process(data []byte, declaredType string) (*Result, error) {
	if len(data) > MaxUploadSize {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	if !strings.HasPrefix(declaredType, "image/") {
		return nil, ErrNotImage
	}
	if sniffed := http.DetectContentType(data); !strings.HasPrefix(sniffed, "image/") {
		return nil, ErrNotImage
	}

	// AutoOrientation applies the EXIF rotation so phones' sideways camera
	// shots come out upright.
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	resized := imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	bounds := resized.Bounds()

	orientation := "square"
	switch {
	case bounds.Dx() > bounds.Dy():
		orientation = "landscape"
	case bounds.Dy() > bounds.Dx():
		orientation = "portrait"
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	filename := uuid.NewString() + ".jpg"
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.dir, filename), buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	return &Result{
		Filename:    filename,
		URL:         "/uploads/" + filename,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Orientation: orientation,
	}, nil
}
