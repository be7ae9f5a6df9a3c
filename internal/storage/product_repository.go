package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bradykim7/dentscraper/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const productCollection = "products"

// productDocument is an archived product with the time it was recorded
type productDocument struct {
	Title     string    `bson:"product_title"`
	Price     float64   `bson:"product_price"`
	ImagePath string    `bson:"path_to_image"`
	CrawledAt time.Time `bson:"crawled_at"`
}

func toProductDocuments(products []models.Product, crawledAt time.Time) []interface{} {
	docs := make([]interface{}, 0, len(products))
	for _, p := range products {
		docs = append(docs, productDocument{
			Title:     p.Title,
			Price:     p.Price,
			ImagePath: p.ImagePath,
			CrawledAt: crawledAt,
		})
	}
	return docs
}

// ProductRepository archives changed products in MongoDB
type ProductRepository struct {
	db  *MongoDB
	log *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *MongoDB, log *zap.Logger) *ProductRepository {
	return &ProductRepository{
		db:  db,
		log: log.Named("product-repository"),
	}
}

// EnsureIndexes creates the title index used to look up a product's history
func (r *ProductRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(productCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "product_title", Value: 1}, {Key: "crawled_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create product index: %w", err)
	}
	return nil
}

// Append inserts products as new documents
func (r *ProductRepository) Append(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	_, err := r.db.Collection(productCollection).InsertMany(ctx, toProductDocuments(products, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to insert products: %w", err)
	}

	r.log.Info("Archived products", zap.Int("count", len(products)))
	return nil
}
