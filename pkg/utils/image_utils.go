package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// sniffLen is how many leading bytes http.DetectContentType looks at.
const sniffLen = 512

var extensionsByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// ImageInfo is what ingestion learns about a file without decoding pixels.
type ImageInfo struct {
	ContentType string
	Format      string
	Width       int
	Height      int
}

type ImageProcessor struct {
	log *zap.Logger
}

func NewImageProcessor(log *zap.Logger) *ImageProcessor {
	return &ImageProcessor{log: log}
}

// DetectContentType sniffs the MIME type from the first bytes of data.
func (p *ImageProcessor) DetectContentType(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	ct := http.DetectContentType(data)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// Inspect reads the image header in data and reports type and dimensions.
func (p *ImageProcessor) Inspect(data []byte) (*ImageInfo, error) {
	contentType := p.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("not an image: detected %s", contentType)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unreadable %s image: %w", contentType, err)
	}

	p.log.Debug("Image inspected",
		zap.String("content_type", contentType),
		zap.String("format", format),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height))

	return &ImageInfo{
		ContentType: contentType,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// ExtensionFor returns the lower-cased extension of name, or the canonical
// extension for contentType when name has none.
func ExtensionFor(name, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && ext != "." {
		return ext
	}
	return extensionsByType[contentType]
}

// ExtensionsForTypes lists the bare extensions ("jpg", "png") for the given
// MIME types; jpeg also yields "jpeg".
func ExtensionsForTypes(types []string) []string {
	var exts []string
	for _, t := range types {
		ext, ok := extensionsByType[t]
		if !ok {
			continue
		}
		exts = append(exts, strings.TrimPrefix(ext, "."))
		if t == "image/jpeg" {
			exts = append(exts, "jpeg")
		}
	}
	return exts
}

func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return err
	}
	return destFile.Close()
}
