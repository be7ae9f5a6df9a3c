package sources

import (
	"github.com/bradykim7/dentscraper/internal/models"
)

// Source describes a paginated catalog: where its pages live and how to read them
type Source interface {
	// Name returns the name of the source
	Name() string

	// PageURL returns the address of the given 1-based catalog page
	PageURL(page int) string

	// Extract parses one page's markup into products. It never fails;
	// unreadable markup yields no products.
	Extract(content []byte, page int) []models.Product
}
