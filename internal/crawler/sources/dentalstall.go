package sources

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bradykim7/dentscraper/internal/models"
	"go.uber.org/zap"
)

// DefaultDentalStallURL is the shop listing root of the catalog
const DefaultDentalStallURL = "https://dentalstall.com/shop/"

// Listing selectors for the WooCommerce catalog markup
const (
	productSelector      = ".product"
	titleSelector        = ".woo-loop-product__title a"
	salePriceSelector    = ".price ins .woocommerce-Price-amount.amount bdi"
	regularPriceSelector = ".price .woocommerce-Price-amount.amount bdi"
	imageSelector        = ".mf-product-thumbnail img"
	lazyImageAttr        = "data-lazy-src"
)

// DentalStall reads product listings from the Dental Stall shop pages
type DentalStall struct {
	baseURL string
	log     *zap.Logger
}

// NewDentalStall creates a source rooted at baseURL. An empty baseURL uses the live shop.
func NewDentalStall(baseURL string, log *zap.Logger) *DentalStall {
	if baseURL == "" {
		baseURL = DefaultDentalStallURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &DentalStall{
		baseURL: baseURL,
		log:     log.Named("dentalstall"),
	}
}

// Name returns the name of the source
func (s *DentalStall) Name() string {
	return "DentalStall"
}

// PageURL returns the address of a catalog page
func (s *DentalStall) PageURL(page int) string {
	return fmt.Sprintf("%spage/%d/", s.baseURL, page)
}

// Extract parses listing blocks from a page. Listings without a usable price
// are treated as out of stock and skipped.
func (s *DentalStall) Extract(content []byte, page int) []models.Product {
	products := []models.Product{}
	if len(content) == 0 {
		return products
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		s.log.Error("Failed to parse HTML", zap.Int("page", page), zap.Error(err))
		return products
	}

	doc.Find(productSelector).Each(func(i int, sel *goquery.Selection) {
		product := parseProduct(sel)
		if product.Price == 0 {
			s.log.Error("Missing price for a product, maybe item out of stock",
				zap.Int("page", page),
				zap.String("title", product.Title))
			return
		}
		products = append(products, product)
	})

	s.log.Debug("Extracted products", zap.Int("page", page), zap.Int("products_found", len(products)))
	return products
}

// parseProduct extracts one listing, substituting NotAvailable for missing text fields
func parseProduct(sel *goquery.Selection) models.Product {
	title := models.NotAvailable
	if titleEl := sel.Find(titleSelector).First(); titleEl.Length() > 0 {
		title = strings.TrimSpace(titleEl.Text())
	}

	// Sale price wins over the regular price
	priceEl := sel.Find(salePriceSelector).First()
	if priceEl.Length() == 0 {
		priceEl = sel.Find(regularPriceSelector).First()
	}
	var price float64
	if priceEl.Length() > 0 {
		price = ParsePrice(priceEl.Text())
	}

	image := models.NotAvailable
	if src, ok := sel.Find(imageSelector).First().Attr(lazyImageAttr); ok {
		image = src
	}

	return models.NewProduct(title, price, image)
}

// ParsePrice converts a displayed price such as "₹1,250.00" to a number.
// Currency symbols, separators and whitespace are dropped; anything unparseable is 0.
func ParsePrice(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	// Currency abbreviations like "Rs." leave a leading dot behind
	cleaned := strings.TrimLeft(b.String(), ".")
	if cleaned == "" {
		return 0
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || price < 0 {
		return 0
	}
	return price
}
