// Package params holds the immutable per-request parameter value
// objects (custom key/value parameters, profile parameters, order and
// product) and the merge operation that combines parameter sets from
// independent sources.
package params

import "github.com/mboxkit/mboxkit/internal/jsonval"

// Event-data keys under which parameter sets travel on the host bus.
const (
	KeyParameters        = "mboxparameters"
	KeyProfileParameters = "profileparameters"
	KeyOrderParameters   = "orderparameters"
	KeyProductParameters = "productparameters"
)

// Order keys within an order parameter map.
const (
	OrderID                  = "id"
	OrderTotal               = "total"
	OrderPurchasedProductIDs = "purchasedProductIds"
)

// Product keys within a product parameter map.
const (
	ProductID         = "id"
	ProductCategoryID = "categoryId"
)

// Order describes a purchase attached to a request.
type Order struct {
	ID                  string
	Total               float64
	PurchasedProductIDs []string
}

// IsComplete reports whether the order qualifies for inclusion in an
// outbound payload: a non-empty id, a non-zero total and at least one
// purchased product id.
func (o *Order) IsComplete() bool {
	return o != nil && o.ID != "" && o.Total != 0 && len(o.PurchasedProductIDs) > 0
}

// ToEventData converts the order to its host-bus map form.
func (o *Order) ToEventData() map[string]any {
	return map[string]any{
		OrderID:                  o.ID,
		OrderTotal:               o.Total,
		OrderPurchasedProductIDs: o.PurchasedProductIDs,
	}
}

// OrderFromEventData builds an Order from its host-bus map form.
// Returns nil when data is empty or lacks a valid order id.
func OrderFromEventData(data map[string]any) *Order {
	if jsonval.IsEmpty(data) {
		return nil
	}
	id := jsonval.OptString(data, OrderID, "")
	if id == "" {
		return nil
	}
	return &Order{
		ID:                  id,
		Total:               jsonval.OptFloat64(data, OrderTotal, 0),
		PurchasedProductIDs: jsonval.OptStringSlice(data, OrderPurchasedProductIDs),
	}
}

// Product describes the product being viewed when a request is made.
type Product struct {
	ID         string
	CategoryID string
}

// IsComplete reports whether the product qualifies for inclusion in an
// outbound payload: both fields non-empty.
func (p *Product) IsComplete() bool {
	return p != nil && p.ID != "" && p.CategoryID != ""
}

// ToEventData converts the product to its host-bus map form.
func (p *Product) ToEventData() map[string]string {
	return map[string]string{
		ProductID:         p.ID,
		ProductCategoryID: p.CategoryID,
	}
}

// ProductFromEventData builds a Product from its host-bus map form.
// Returns nil when data is empty or lacks a valid product id.
func ProductFromEventData(data map[string]any) *Product {
	if jsonval.IsEmpty(data) {
		return nil
	}
	id := jsonval.OptString(data, ProductID, "")
	if id == "" {
		return nil
	}
	return &Product{
		ID:         id,
		CategoryID: jsonval.OptString(data, ProductCategoryID, ""),
	}
}

// Set is an immutable group of parameters attached to a request or to a
// single mbox. Callers must not mutate the maps after construction.
type Set struct {
	Parameters        map[string]string
	ProfileParameters map[string]string
	Order             *Order
	Product           *Product
}

// Merge combines parameter sets in iteration order. Key/value and
// profile maps union with later entries overwriting earlier ones, and
// empty-string keys dropped. Order and product take the last non-nil
// value encountered; this mirrors the historical merge behavior that
// downstream payloads depend on, so keep it even though "first wins"
// may look more natural.
func Merge(sets []*Set) *Set {
	merged := &Set{
		Parameters:        map[string]string{},
		ProfileParameters: map[string]string{},
	}

	for _, s := range sets {
		if s == nil {
			continue
		}
		for k, v := range s.Parameters {
			if k == "" {
				continue
			}
			merged.Parameters[k] = v
		}
		for k, v := range s.ProfileParameters {
			if k == "" {
				continue
			}
			merged.ProfileParameters[k] = v
		}
		if s.Order != nil {
			merged.Order = s.Order
		}
		if s.Product != nil {
			merged.Product = s.Product
		}
	}

	return merged
}

// ToEventData converts the set to its host-bus map form.
func (s *Set) ToEventData() map[string]any {
	data := map[string]any{
		KeyParameters:        s.Parameters,
		KeyProfileParameters: s.ProfileParameters,
	}
	if s.Order != nil {
		data[KeyOrderParameters] = s.Order.ToEventData()
	}
	if s.Product != nil {
		data[KeyProductParameters] = s.Product.ToEventData()
	}
	return data
}

// FromEventData builds a Set from its host-bus map form. Returns nil
// when data is empty.
func FromEventData(data map[string]any) *Set {
	if jsonval.IsEmpty(data) {
		return nil
	}
	return &Set{
		Parameters:        jsonval.OptStringMap(data, KeyParameters),
		ProfileParameters: jsonval.OptStringMap(data, KeyProfileParameters),
		Order:             OrderFromEventData(jsonval.OptObject(data, KeyOrderParameters)),
		Product:           ProductFromEventData(jsonval.OptObject(data, KeyProductParameters)),
	}
}
