package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bradykim7/dentscraper/internal/models"
	"go.uber.org/zap"
)

// ProductFile is the JSON document that accumulates every changed product.
// Appends rewrite the whole document through a temporary file and a rename.
type ProductFile struct {
	path string
	log  *zap.Logger
	mu   sync.Mutex
}

// NewProductFile creates a sink writing to path
func NewProductFile(path string, log *zap.Logger) *ProductFile {
	return &ProductFile{
		path: path,
		log:  log.Named("product-file"),
	}
}

// Load reads the stored products. A missing or unreadable document is empty.
func (f *ProductFile) Load() []models.Product {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.log.Warn("Failed to read products file, starting empty", zap.String("path", f.path), zap.Error(err))
		}
		return []models.Product{}
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		f.log.Warn("Products file is corrupt, starting empty", zap.String("path", f.path), zap.Error(err))
		return []models.Product{}
	}
	if products == nil {
		products = []models.Product{}
	}
	return products
}

// Append adds products to the end of the stored collection
func (f *ProductFile) Append(ctx context.Context, products []models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := append(f.Load(), products...)

	data, err := json.MarshalIndent(all, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode products: %w", err)
	}

	if err := writeFileAtomic(f.path, data); err != nil {
		return err
	}

	f.log.Info("Saved products",
		zap.String("path", f.path),
		zap.Int("appended", len(products)),
		zap.Int("total", len(all)))
	return nil
}

// writeFileAtomic writes data to a temporary file next to path and renames it over path
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create products directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace products file: %w", err)
	}
	return nil
}
