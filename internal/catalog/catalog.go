// Package catalog resolves products from the storefront catalog API.
package catalog

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Ariya-Dice/tansoo/internal/domain"
	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
	"github.com/Ariya-Dice/tansoo/pkg/httpclient"
)

const serviceName = "catalog"

// Client fetches the product list. The catalog exposes no single-product
// endpoint, so a lookup reads the whole list; it is kept for cacheTTL.
type Client struct {
	http     httpclient.Doer
	baseURL  string
	cacheTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	products  map[domain.ProductID]domain.Product
	fetchedAt time.Time
}

// NewClient creates a catalog client. A zero cacheTTL disables caching.
func NewClient(doer httpclient.Doer, baseURL string, cacheTTL time.Duration) *Client {
	return &Client{
		http:     doer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Product returns the catalog product with the given id.
func (c *Client) Product(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	products, err := c.list(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	p, ok := products[id]
	if !ok {
		return domain.Product{}, apperrors.NotFound("product", id.String())
	}
	return p.Clone(), nil
}

func (c *Client) list(ctx context.Context) (map[domain.ProductID]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.products != nil && c.cacheTTL > 0 && c.now().Sub(c.fetchedAt) < c.cacheTTL {
		return c.products, nil
	}

	var list []domain.Product
	if err := httpclient.DoJSON(ctx, c.http, http.MethodGet, c.baseURL+"/products", serviceName, nil, &list); err != nil {
		return nil, err
	}

	products := make(map[domain.ProductID]domain.Product, len(list))
	for _, p := range list {
		if p.ID == "" {
			continue
		}
		products[p.ID] = p
	}
	c.products = products
	c.fetchedAt = c.now()
	return products, nil
}

// Invalidate drops the cached product list.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = nil
}
