package catalog

import (
	"context"
	"fmt"
	"sync"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
)

// ProductCatalog confirms that a product exists and may be auctioned.
type ProductCatalog interface {
	CheckEligible(ctx context.Context, productID string) error
}

// MemoryCatalog is a concurrency-safe in-memory ProductCatalog
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]models.Product // key: productID -> value: product
}

// NewMemoryCatalog creates an empty catalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products: make(map[string]models.Product),
	}
}

// AddProduct adds or replaces a product
func (c *MemoryCatalog) AddProduct(product models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ProductID] = product
}

// GetProduct returns a product by id
func (c *MemoryCatalog) GetProduct(productID string) (models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	product, ok := c.products[productID]
	if !ok {
		return models.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return product, nil
}

// CheckEligible fails when the product is unknown or flagged as not eligible
func (c *MemoryCatalog) CheckEligible(_ context.Context, productID string) error {
	product, err := c.GetProduct(productID)
	if err != nil {
		return err
	}
	if !product.Eligible {
		return fmt.Errorf("check product %s: %w", productID, biddingerrors.ErrProductNotEligible)
	}
	return nil
}
