package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"github.com/Ariya-Dice/tansoo/internal/checkout"
	"github.com/Ariya-Dice/tansoo/internal/domain"
	"github.com/Ariya-Dice/tansoo/internal/event"
	"github.com/Ariya-Dice/tansoo/internal/slot"
	"github.com/Ariya-Dice/tansoo/internal/store"
	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
	"github.com/Ariya-Dice/tansoo/pkg/validator"
)

// Default cart limits to prevent abuse.
const (
	DefaultMaxQuantityPerLine = 100
	DefaultMaxLines           = 50
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidateSessionID checks the shape of an opaque session id.
func ValidateSessionID(id string) error {
	if id == "" {
		return apperrors.InvalidInput("session id is required")
	}
	if !sessionIDPattern.MatchString(id) {
		return apperrors.InvalidInput("session id must be 1-128 characters of letters, digits, '.', '_', ':' or '-'")
	}
	return nil
}

// ProductResolver looks up catalog products by id.
type ProductResolver interface {
	Product(ctx context.Context, id domain.ProductID) (domain.Product, error)
}

// OrderSubmitter creates orders.
type OrderSubmitter interface {
	Submit(ctx context.Context, order checkout.Order, idempotencyKey string) (string, error)
}

// Limits bounds cart size.
type Limits struct {
	MaxQuantityPerLine int
	MaxLines           int
}

// DefaultLimits returns the default cart limits.
func DefaultLimits() Limits {
	return Limits{MaxQuantityPerLine: DefaultMaxQuantityPerLine, MaxLines: DefaultMaxLines}
}

// AddItemInput holds the parameters for adding an item to the cart. Either
// a full product or a product id to resolve through the catalog is given.
type AddItemInput struct {
	Product   *domain.Product  `json:"product,omitempty"`
	ProductID domain.ProductID `json:"productId" validate:"required_without=Product"`
	Variant   string           `json:"variant"`
	Color     string           `json:"color"`
	Quantity  int              `json:"quantity" validate:"gte=1"`
}

// VariantKey returns the chosen variant, accepting the older "color" key.
func (in AddItemInput) VariantKey() string {
	if in.Variant != "" {
		return in.Variant
	}
	return in.Color
}

// UpdateQuantityInput holds the parameters for updating a line quantity.
// Zero or less removes the line.
type UpdateQuantityInput struct {
	Quantity int `json:"quantity"`
}

// CheckoutInput holds the checkout form.
type CheckoutInput struct {
	Customer       checkout.Customer `json:"customerInfo" validate:"required"`
	IdempotencyKey string            `json:"-"`
}

// CheckoutResult is returned after the order service accepted the order.
type CheckoutResult struct {
	OrderID string `json:"orderId"`
	Total   int64  `json:"total"`
	Count   int    `json:"count"`
}

// CartService hosts one cart per session on top of a shared slot.
type CartService struct {
	slot      slot.Slot
	catalog   ProductResolver
	orders    OrderSubmitter
	publisher event.Publisher
	limits    Limits
	locks     *sessionLocks
	logger    *slog.Logger
}

// NewCartService creates a new cart service. catalog and orders may be nil,
// which disables adding by product id and checkout respectively.
func NewCartService(s slot.Slot, catalog ProductResolver, orders OrderSubmitter, publisher event.Publisher, limits Limits, logger *slog.Logger) *CartService {
	if publisher == nil {
		publisher = event.Noop{}
	}
	return &CartService{
		slot:      s,
		catalog:   catalog,
		orders:    orders,
		publisher: publisher,
		limits:    limits,
		locks:     newSessionLocks(),
		logger:    logger,
	}
}

// open restores the session's cart from the slot.
func (s *CartService) open(ctx context.Context, sessionID string) *store.Store {
	st := store.New(s.slot, sessionID)
	st.Restore(ctx)
	return st
}

// GetCart returns the session's cart. A session without a cart gets an
// empty one.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return domain.Snapshot{}, err
	}
	snap := s.open(ctx, sessionID).Snapshot()
	observe("get", nil)
	return snap, nil
}

// AddItem adds an item to the session's cart. The same product and variant
// merge into one line.
func (s *CartService) AddItem(ctx context.Context, sessionID string, in AddItemInput) (snap domain.Snapshot, err error) {
	defer func() { observe("add_item", err) }()

	if err := ValidateSessionID(sessionID); err != nil {
		return domain.Snapshot{}, err
	}
	if in.Quantity <= 0 {
		return domain.Snapshot{}, apperrors.InvalidInput("quantity must be greater than 0")
	}
	if in.Quantity > s.limits.MaxQuantityPerLine {
		return domain.Snapshot{}, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", s.limits.MaxQuantityPerLine))
	}

	product, err := s.resolveProduct(ctx, in)
	if err != nil {
		return domain.Snapshot{}, err
	}
	variant := in.VariantKey()
	if err := product.Validate(variant); err != nil {
		return domain.Snapshot{}, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	st := s.open(ctx, sessionID)
	if line, ok := st.Line(product.ID, variant); ok {
		if line.Quantity+in.Quantity > s.limits.MaxQuantityPerLine {
			return domain.Snapshot{}, apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", s.limits.MaxQuantityPerLine))
		}
	} else if st.Len() >= s.limits.MaxLines {
		return domain.Snapshot{}, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d lines", s.limits.MaxLines))
	}

	if err := st.AddItem(ctx, product, variant, in.Quantity); err != nil {
		return domain.Snapshot{}, fmt.Errorf("add item: %w", err)
	}

	snap = st.Snapshot()
	s.publishUpdated(ctx, sessionID, snap)

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("session_id", sessionID),
		slog.String("product_id", product.ID.String()),
		slog.String("variant", variant),
		slog.Int("quantity", in.Quantity),
	)
	return snap, nil
}

func (s *CartService) resolveProduct(ctx context.Context, in AddItemInput) (domain.Product, error) {
	if in.Product != nil {
		return in.Product.Clone(), nil
	}
	if in.ProductID == "" {
		return domain.Product{}, apperrors.InvalidInput("product or productId is required")
	}
	if s.catalog == nil {
		return domain.Product{}, apperrors.InvalidInput("product lookup by id is not configured; send the full product")
	}
	p, err := s.catalog.Product(ctx, in.ProductID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("resolve product %s: %w", in.ProductID, err)
	}
	return p, nil
}

// UpdateItemQuantity sets a line's quantity. Zero or less removes the
// line; a line that is not in the cart is left alone.
func (s *CartService) UpdateItemQuantity(ctx context.Context, sessionID string, productID domain.ProductID, variant string, quantity int) (snap domain.Snapshot, err error) {
	defer func() { observe("update_quantity", err) }()

	if err := ValidateSessionID(sessionID); err != nil {
		return domain.Snapshot{}, err
	}
	if productID == "" {
		return domain.Snapshot{}, apperrors.InvalidInput("product id is required")
	}
	if quantity > s.limits.MaxQuantityPerLine {
		return domain.Snapshot{}, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", s.limits.MaxQuantityPerLine))
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	st := s.open(ctx, sessionID)
	if _, ok := st.Line(productID, variant); !ok {
		return st.Snapshot(), nil
	}
	if err := st.UpdateQuantity(ctx, productID, variant, quantity); err != nil {
		return domain.Snapshot{}, fmt.Errorf("update quantity: %w", err)
	}

	snap = st.Snapshot()
	s.publishUpdated(ctx, sessionID, snap)

	s.logger.InfoContext(ctx, "cart line quantity updated",
		slog.String("session_id", sessionID),
		slog.String("product_id", productID.String()),
		slog.String("variant", variant),
		slog.Int("quantity", quantity),
	)
	return snap, nil
}

// RemoveItem removes a line. Removing a missing line is not an error.
func (s *CartService) RemoveItem(ctx context.Context, sessionID string, productID domain.ProductID, variant string) (snap domain.Snapshot, err error) {
	defer func() { observe("remove_item", err) }()

	if err := ValidateSessionID(sessionID); err != nil {
		return domain.Snapshot{}, err
	}
	if productID == "" {
		return domain.Snapshot{}, apperrors.InvalidInput("product id is required")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	st := s.open(ctx, sessionID)
	if _, ok := st.Line(productID, variant); !ok {
		return st.Snapshot(), nil
	}
	if err := st.RemoveItem(ctx, productID, variant); err != nil {
		return domain.Snapshot{}, fmt.Errorf("remove item: %w", err)
	}

	snap = st.Snapshot()
	s.publishUpdated(ctx, sessionID, snap)

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("session_id", sessionID),
		slog.String("product_id", productID.String()),
		slog.String("variant", variant),
	)
	return snap, nil
}

// ClearCart empties the session's cart.
func (s *CartService) ClearCart(ctx context.Context, sessionID string) (snap domain.Snapshot, err error) {
	defer func() { observe("clear", err) }()

	if err := ValidateSessionID(sessionID); err != nil {
		return domain.Snapshot{}, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	st := s.open(ctx, sessionID)
	if err := st.Clear(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("clear cart: %w", err)
	}

	if err := s.publisher.PublishCartCleared(ctx, sessionID, event.ClearedByShopper); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared", slog.String("session_id", sessionID))
	return st.Snapshot(), nil
}

// Checkout submits the cart as an order and empties it once the order
// service has accepted it. The session stays locked for the whole call so
// the cart cannot change between submission and clearing.
func (s *CartService) Checkout(ctx context.Context, sessionID string, in CheckoutInput) (res CheckoutResult, err error) {
	defer func() { observe("checkout", err) }()

	if err := ValidateSessionID(sessionID); err != nil {
		return CheckoutResult{}, err
	}
	if err := validator.Validate(in); err != nil {
		return CheckoutResult{}, err
	}
	if s.orders == nil {
		return CheckoutResult{}, apperrors.ServiceUnavailable("checkout is not configured")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	st := s.open(ctx, sessionID)
	if st.Len() == 0 {
		return CheckoutResult{}, apperrors.Conflict("cart is empty")
	}
	snap := st.Snapshot()

	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	orderID, err := s.orders.Submit(ctx, checkout.NewOrder(snap, in.Customer), key)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("submit order: %w", err)
	}

	// The order exists now; a failure to drop the cart must not fail the
	// checkout or the shopper would submit again.
	if err := st.Discard(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after checkout",
			slog.String("session_id", sessionID),
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.publisher.PublishCartCheckedOut(ctx, sessionID, orderID, snap); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.checked_out event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.publisher.PublishCartCleared(ctx, sessionID, event.ClearedByCheckout); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	checkoutTotal.Observe(float64(snap.Total))
	s.logger.InfoContext(ctx, "cart checked out",
		slog.String("session_id", sessionID),
		slog.String("order_id", orderID),
		slog.Int64("total", snap.Total),
	)
	return CheckoutResult{OrderID: orderID, Total: snap.Total, Count: snap.Count}, nil
}

func (s *CartService) publishUpdated(ctx context.Context, sessionID string, snap domain.Snapshot) {
	if err := s.publisher.PublishCartUpdated(ctx, sessionID, snap); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}
