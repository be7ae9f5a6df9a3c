package models

import (
	"fmt"
	"strconv"
	"strings"
)

// NotAvailable marks a listing field that was missing from the page markup
const NotAvailable = "N/A"

// Product represents one scraped catalog listing.
// Two products with the same Title are treated as the same product across runs.
type Product struct {
	Title     string  `json:"product_title" bson:"product_title"`
	Price     float64 `json:"product_price" bson:"product_price"`
	ImagePath string  `json:"path_to_image" bson:"path_to_image"`
}

// NewProduct creates a product, substituting NotAvailable for empty text fields
func NewProduct(title string, price float64, imagePath string) Product {
	if title == "" {
		title = NotAvailable
	}
	if imagePath == "" {
		imagePath = NotAvailable
	}
	return Product{
		Title:     title,
		Price:     price,
		ImagePath: imagePath,
	}
}

// GetPriceString returns a formatted price string
func (p Product) GetPriceString() string {
	if p.Price <= 0 {
		return "Price unknown"
	}

	whole, cents, _ := strings.Cut(strconv.FormatFloat(p.Price, 'f', 2, 64), ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return "₹" + whole + "." + cents
	}
	return "₹" + formatNumber(n) + "." + cents
}

// String returns a string representation of the product
func (p Product) String() string {
	return fmt.Sprintf("%s (%s)", p.Title, p.GetPriceString())
}

// formatNumber formats a number with commas
func formatNumber(n int64) string {
	in := strconv.FormatInt(n, 10)
	out := make([]byte, 0, len(in)+(len(in)-1)/3)

	for i, c := range in {
		if i > 0 && (len(in)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, byte(c))
	}

	return string(out)
}
