// Package checkout submits a cart as an order to the order service.
package checkout

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Ariya-Dice/tansoo/internal/domain"
	"github.com/Ariya-Dice/tansoo/pkg/httpclient"
)

const serviceName = "order service"

// Customer is the contact and delivery information entered at checkout.
type Customer struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Address string `json:"address" validate:"required,max=1000"`
}

// OrderItem is one cart line as the order service expects it.
type OrderItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Variant   string `json:"variant,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Order is the order creation payload.
type Order struct {
	Items        []OrderItem `json:"items"`
	TotalPrice   int64       `json:"totalPrice"`
	CustomerInfo Customer    `json:"customerInfo"`
}

// NewOrder builds an order from a cart snapshot.
func NewOrder(snap domain.Snapshot, customer Customer) Order {
	items := make([]OrderItem, 0, len(snap.Items))
	for _, l := range snap.Items {
		items = append(items, OrderItem{
			ProductID: l.Product.ID.String(),
			Name:      l.Product.Name,
			Variant:   l.Variant,
			Price:     l.Product.Price,
			Quantity:  l.Quantity,
		})
	}
	return Order{Items: items, TotalPrice: snap.Total, CustomerInfo: customer}
}

type orderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// Client posts orders to {baseURL}/api/orders.
type Client struct {
	http    httpclient.Doer
	baseURL string
}

// NewClient creates an order service client.
func NewClient(doer httpclient.Doer, baseURL string) *Client {
	return &Client{http: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

// Submit creates the order and returns its id. idempotencyKey is sent so a
// retried submission does not create a second order.
func (c *Client) Submit(ctx context.Context, order Order, idempotencyKey string) (string, error) {
	var opts []httpclient.RequestOption
	if idempotencyKey != "" {
		opts = append(opts, httpclient.WithHeader(httpclient.IdempotencyKeyHeader, idempotencyKey))
	}

	var resp orderResponse
	if err := httpclient.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/orders", serviceName, order, &resp, opts...); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("%s returned no order id", serviceName)
	}
	return resp.OrderID, nil
}
