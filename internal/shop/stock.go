package shop

import (
	"context"
	"errors"
	"fmt"

	"questboard/internal/collection"
	"questboard/internal/models"

	"go.uber.org/zap"
)

// Stock lists a shop's entries with their derived labels, quantities and prices.
// Entries whose item no longer resolves are left out.
func (e *Engine) Stock(ctx context.Context, shopRef string) ([]models.StockListing, error) {
	shop, err := e.loadShop(ctx, shopRef)
	if err != nil {
		return nil, err
	}

	stock := collection.NewStock(shop.Stock)
	listings := make([]models.StockListing, 0, stock.Len())
	for _, entry := range stock.Entries() {
		item, err := e.store.Item(ctx, entry.ItemRef)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		listings = append(listings, collection.Resolve(entry, item))
	}
	return listings, nil
}

// AddStock adds an item to a shop. An already stocked item grows by its natural quantity.
func (e *Engine) AddStock(ctx context.Context, shopRef, itemRef string) (models.StockListing, error) {
	if shopRef == "" || itemRef == "" {
		return models.StockListing{}, fmt.Errorf("%w: shop and item are required", ErrInvalidRequest)
	}

	var listing models.StockListing
	err := e.queue.Do(ctx, func(ctx context.Context) error {
		shop, err := e.loadShop(ctx, shopRef)
		if err != nil {
			return err
		}
		item, err := e.store.Item(ctx, itemRef)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrItemNotFound, itemRef)
		}
		if err != nil {
			return err
		}
		if !models.AllowedItemTypes[item.Type] {
			return fmt.Errorf("%w: %s", ErrItemNotAllowed, item.Type)
		}

		stock := collection.NewStock(shop.Stock)
		entry := stock.Add(itemRef, item.Quantity)
		if err := e.store.Apply(ctx, models.UpsertStock{ShopRef: shop.Ref, Entry: entry}); err != nil {
			return fmt.Errorf("%w: %s", ErrCommitFailed, err)
		}
		listing = collection.Resolve(entry, item)
		return nil
	})
	if err != nil {
		return models.StockListing{}, err
	}

	e.log.Info("stock added", zap.String("shop", shopRef), zap.String("item", itemRef), zap.Int("quantity", listing.Quantity))
	return listing, nil
}

// EditStock changes the alias, prices or quantity of an entry. Setting the quantity to zero
// removes the entry, in which case nil is returned.
func (e *Engine) EditStock(ctx context.Context, shopRef, stockID string, edit models.StockEdit) (*models.StockListing, error) {
	if edit.Quantity != nil && *edit.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidRequest)
	}
	for _, price := range []*models.Price{edit.Each, edit.Stack} {
		if price == nil {
			continue
		}
		if price.Value.Valid && price.Value.Decimal.IsNegative() {
			return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidRequest)
		}
		if price.Denomination != "" && !e.table.Has(price.Denomination) {
			return nil, fmt.Errorf("%w: unknown denomination %q", ErrInvalidRequest, price.Denomination)
		}
	}

	var listing *models.StockListing
	err := e.queue.Do(ctx, func(ctx context.Context) error {
		shop, err := e.loadShop(ctx, shopRef)
		if err != nil {
			return err
		}
		stock := collection.NewStock(shop.Stock)
		entry, ok := stock.Get(stockID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrStockNotFound, stockID)
		}

		if edit.Alias != nil {
			entry.Alias = *edit.Alias
		}
		if edit.Each != nil {
			entry.Price.Each = *edit.Each
		}
		if edit.Stack != nil {
			entry.Price.Stack = *edit.Stack
		}
		if edit.Quantity != nil {
			q := *edit.Quantity
			entry.Quantity = &q
		}

		if !stock.Set(entry) {
			if err := e.store.Apply(ctx, models.RemoveStock{ShopRef: shop.Ref, StockID: entry.ID}); err != nil {
				return fmt.Errorf("%w: %s", ErrCommitFailed, err)
			}
			return nil
		}

		if err := e.store.Apply(ctx, models.UpsertStock{ShopRef: shop.Ref, Entry: entry}); err != nil {
			return fmt.Errorf("%w: %s", ErrCommitFailed, err)
		}
		item, err := e.store.Item(ctx, entry.ItemRef)
		if err == nil {
			resolved := collection.Resolve(entry, item)
			listing = &resolved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// RemoveStock deletes an entry from a shop.
func (e *Engine) RemoveStock(ctx context.Context, shopRef, stockID string) error {
	return e.queue.Do(ctx, func(ctx context.Context) error {
		shop, err := e.loadShop(ctx, shopRef)
		if err != nil {
			return err
		}
		entry, ok := collection.NewStock(shop.Stock).Get(stockID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrStockNotFound, stockID)
		}
		if err := e.store.Apply(ctx, models.RemoveStock{ShopRef: shop.Ref, StockID: entry.ID}); err != nil {
			return fmt.Errorf("%w: %s", ErrCommitFailed, err)
		}
		return nil
	})
}

// PruneStock removes entries whose item reference no longer resolves from every shop and
// returns the number of removed entries.
func (e *Engine) PruneStock(ctx context.Context) (int, error) {
	var removed int
	err := e.queue.Do(ctx, func(ctx context.Context) error {
		shops, err := e.store.Shops(ctx)
		if err != nil {
			return err
		}
		for _, shop := range shops {
			var cmds []models.Command
			for _, entry := range shop.Stock {
				_, err := e.store.Item(ctx, entry.ItemRef)
				if errors.Is(err, models.ErrNotFound) {
					cmds = append(cmds, models.RemoveStock{ShopRef: shop.Ref, StockID: entry.ID})
					continue
				}
				if err != nil {
					return err
				}
			}
			if len(cmds) == 0 {
				continue
			}
			if err := e.store.Apply(ctx, cmds...); err != nil {
				return fmt.Errorf("%w: %s", ErrCommitFailed, err)
			}
			removed += len(cmds)
			e.log.Info("pruned stock", zap.String("shop", shop.Ref), zap.Int("entries", len(cmds)))
		}
		return nil
	})
	return removed, err
}

func (e *Engine) loadShop(ctx context.Context, ref string) (models.Shop, error) {
	shop, err := e.store.Shop(ctx, ref)
	if errors.Is(err, models.ErrNotFound) {
		return shop, fmt.Errorf("%w: %q", ErrShopNotFound, ref)
	}
	return shop, err
}
