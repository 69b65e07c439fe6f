package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/freshbasket/freshbasket/internal/cache"
	"github.com/freshbasket/freshbasket/internal/catalog"
	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/models"
)

const defaultCatalogCacheTTL = 5 * time.Minute

type CatalogService struct {
	products     ProductRepository
	cache        cache.Provider
	validator    *catalog.Validator
	cacheTTL     time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewCatalogService(products ProductRepository, cacheProvider cache.Provider, cacheTTL, storeTimeout time.Duration, logger *slog.Logger) (*CatalogService, error) {
	if products == nil {
		return nil, fmt.Errorf("product repository is required")
	}
	if cacheProvider == nil {
		return nil, fmt.Errorf("cache provider is required")
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCatalogCacheTTL
	}
	return &CatalogService{
		products:     products,
		cache:        cacheProvider,
		validator:    catalog.NewValidator(),
		cacheTTL:     cacheTTL,
		storeTimeout: storeTimeout,
		logger:       logger,
	}, nil
}

func (s *CatalogService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]*models.Product, error) {
	var cached []*models.Product
	if err := cache.GetJSON(ctx, s.cache, cache.ProductListKey(), &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		s.loggerFromContext(ctx).Warn("catalog cache read failed", "error", err)
	}

	listCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	products, err := s.products.List(listCtx)
	if err != nil {
		return nil, storeError("list products", err)
	}
	if products == nil {
		products = []*models.Product{}
	}

	if err := cache.SetJSON(ctx, s.cache, cache.ProductListKey(), products, s.cacheTTL); err != nil {
		s.loggerFromContext(ctx).Warn("catalog cache write failed", "error", err)
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var cached models.Product
	if err := cache.GetJSON(ctx, s.cache, cache.ProductKey(id), &cached); err == nil {
		return &cached, nil
	}

	getCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	product, err := s.products.GetByID(getCtx, id)
	if err != nil {
		return nil, storeError("load product", err)
	}

	if err := cache.SetJSON(ctx, s.cache, cache.ProductKey(id), product, s.cacheTTL); err != nil {
		s.loggerFromContext(ctx).Warn("catalog cache write failed", "error", err, "product_id", id)
	}
	return product, nil
}

type ProductInput struct {
	Name    *string
	Price   *float64
	InStock *bool
	Image   *string
}

func (in ProductInput) apply(product *models.Product) {
	if in.Name != nil {
		product.Name = strings.TrimSpace(*in.Name)
	}
	if in.Price != nil {
		product.Price = *in.Price
	}
	if in.InStock != nil {
		product.InStock = *in.InStock
	}
	if in.Image != nil {
		product.Image = strings.TrimSpace(*in.Image)
	}
}

func (s *CatalogService) CreateProduct(ctx context.Context, requester models.Identity, input ProductInput) (*models.Product, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	product := &models.Product{InStock: true}
	input.apply(product)
	if err := s.validator.ValidateProduct(product); err != nil {
		return nil, validationError("%s", err.Error())
	}

	createCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.products.Create(createCtx, product); err != nil {
		return nil, storeError("create product", err)
	}
	s.invalidate(ctx, product.ID)
	s.loggerFromContext(ctx).Info("product created", "product_id", product.ID, "name", product.Name)
	return product, nil
}

// UpdateProduct applies only the fields present in input.
func (s *CatalogService) UpdateProduct(ctx context.Context, requester models.Identity, id string, input ProductInput) (*models.Product, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}

	getCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	product, err := s.products.GetByID(getCtx, id)
	cancel()
	if err != nil {
		return nil, storeError("load product", err)
	}

	input.apply(product)
	if err := s.validator.ValidateProduct(product); err != nil {
		return nil, validationError("%s", err.Error())
	}

	updateCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.products.Update(updateCtx, product); err != nil {
		return nil, storeError("update product", err)
	}
	s.invalidate(ctx, product.ID)
	s.loggerFromContext(ctx).Info("product updated", "product_id", product.ID)
	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, requester models.Identity, id string) error {
	if err := requireAdmin(requester); err != nil {
		return err
	}
	deleteCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.products.Delete(deleteCtx, id); err != nil {
		return storeError("delete product", err)
	}
	s.invalidate(ctx, id)
	s.loggerFromContext(ctx).Info("product deleted", "product_id", id)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, cache.ProductListKey(), cache.ProductKey(id)); err != nil {
		s.loggerFromContext(ctx).Warn("catalog cache invalidation failed", "error", err, "product_id", id)
	}
}
