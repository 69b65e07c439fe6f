package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/freshbasket/freshbasket/internal/models"
)

// OrderNotifier mails the store inbox whenever a customer places an order.
type OrderNotifier struct {
	provider Provider
	renderer *Renderer
	to       string
}

func NewOrderNotifier(provider Provider, renderer *Renderer, to string) *OrderNotifier {
	return &OrderNotifier{
		provider: provider,
		renderer: renderer,
		to:       strings.TrimSpace(to),
	}
}

func (n *OrderNotifier) OrderPlaced(ctx context.Context, order *models.Order) error {
	if n == nil || n.provider == nil || n.to == "" || order == nil {
		return nil
	}
	message, err := n.renderer.NewOrder(NewOrderInfo(n.to, order))
	if err != nil {
		return fmt.Errorf("failed to render new order email: %w", err)
	}
	return n.provider.SendEmail(ctx, message)
}
