package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/freshbasket/freshbasket/internal/catalog"
	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

type CartService struct {
	carts        CartRepository
	products     ProductRepository
	validator    *catalog.Validator
	pricer       *catalog.Pricer
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewCartService(carts CartRepository, products ProductRepository, pricer *catalog.Pricer, storeTimeout time.Duration, logger *slog.Logger) (*CartService, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository is required")
	}
	if pricer == nil {
		pricer = catalog.NewPricer(0, 0)
	}
	return &CartService{
		carts:        carts,
		products:     products,
		validator:    catalog.NewValidator(),
		pricer:       pricer,
		storeTimeout: storeTimeout,
		logger:       logger,
	}, nil
}

func (s *CartService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// CartLine is a cart item joined with the current catalog entry.
type CartLine struct {
	Product   models.Product `json:"product"`
	Quantity  float64        `json:"quantity"`
	LineTotal float64        `json:"lineTotal"`
}

type CartView struct {
	Items       []CartLine `json:"items"`
	Subtotal    float64    `json:"subtotal"`
	DeliveryFee float64    `json:"deliveryFee"`
	Total       float64    `json:"total"`
}

// GetCart never fails for a missing cart; it returns an empty view instead.
// Items whose product has since been removed from the catalog are skipped.
func (s *CartService) GetCart(ctx context.Context, requester models.Identity) (*CartView, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}

	cart, err := s.load(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	view := &CartView{Items: []CartLine{}}
	if len(cart.Items) == 0 {
		return view, nil
	}

	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	lookupCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	products, err := s.products.GetByIDs(lookupCtx, ids)
	cancel()
	if err != nil {
		return nil, storeError("load cart products", err)
	}

	lines := make([]models.LineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		view.Items = append(view.Items, CartLine{
			Product:   *product,
			Quantity:  item.Quantity,
			LineTotal: s.pricer.LineTotal(product.Price, item.Quantity),
		})
		lines = append(lines, models.LineItem{Price: product.Price, Quantity: item.Quantity})
	}
	view.Subtotal = s.pricer.Subtotal(lines)
	view.DeliveryFee = s.pricer.DeliveryFee(view.Subtotal)
	view.Total = s.pricer.Total(view.Subtotal, view.DeliveryFee)
	return view, nil
}

// ReplaceCart overwrites the whole cart with items. Repeated lines for one
// product are stored as a single line.
func (s *CartService) ReplaceCart(ctx context.Context, requester models.Identity, items []models.CartItem) (*CartView, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].ProductID = strings.TrimSpace(items[i].ProductID)
	}
	if err := s.validator.ValidateCartItems(items); err != nil {
		return nil, validationError("%s", err.Error())
	}
	if err := s.save(ctx, requester.ID, catalog.MergeCartItems(items)); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, requester)
}

func (s *CartService) RemoveItem(ctx context.Context, requester models.Identity, productID string) (*CartView, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}
	cart, err := s.load(ctx, requester.ID)
	if err != nil {
		return nil, err
	}

	kept := make([]models.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(cart.Items) {
		return nil, fmt.Errorf("%w: product %s is not in the cart", ErrNotFound, productID)
	}
	if err := s.save(ctx, requester.ID, kept); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, requester)
}

func (s *CartService) ClearCart(ctx context.Context, requester models.Identity) error {
	if err := requireUser(requester); err != nil {
		return err
	}
	deleteCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.carts.Delete(deleteCtx, requester.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeError("clear cart", err)
	}
	s.loggerFromContext(ctx).Debug("cart cleared", "owner_id", requester.ID)
	return nil
}

func (s *CartService) load(ctx context.Context, ownerID string) (*models.Cart, error) {
	getCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	cart, err := s.carts.Get(getCtx, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Cart{OwnerID: ownerID}, nil
	}
	if err != nil {
		return nil, storeError("load cart", err)
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, ownerID string, items []models.CartItem) error {
	saveCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.carts.Save(saveCtx, &models.Cart{OwnerID: ownerID, Items: items}); err != nil {
		return storeError("save cart", err)
	}
	return nil
}
