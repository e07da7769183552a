// Package mbox defines the per-item request value objects: prefetch
// items cached for later display and execute items delivered to a
// waiting caller.
package mbox

import (
	"github.com/mboxkit/mboxkit/internal/domain/event"
	"github.com/mboxkit/mboxkit/internal/domain/params"
	"github.com/mboxkit/mboxkit/internal/jsonval"
)

// PrefetchItem names one mbox whose content should be fetched ahead of
// display time.
type PrefetchItem struct {
	Name       string
	Parameters *params.Set
}

// ToEventData converts the item to its host-bus map form.
func (p PrefetchItem) ToEventData() map[string]any {
	data := map[string]any{event.KeyMboxName: p.Name}
	if p.Parameters != nil {
		data[event.KeyTargetParameters] = p.Parameters.ToEventData()
	}
	return data
}

// PrefetchItemFromEventData builds a PrefetchItem from its host-bus map
// form. Returns false when data lacks an mbox name.
func PrefetchItemFromEventData(data map[string]any) (PrefetchItem, bool) {
	name := jsonval.OptString(data, event.KeyMboxName, "")
	if name == "" {
		return PrefetchItem{}, false
	}
	return PrefetchItem{
		Name:       name,
		Parameters: params.FromEventData(jsonval.OptObject(data, event.KeyTargetParameters)),
	}, true
}

// PrefetchItemsFromEventData converts the raw list under the prefetch
// event-data key, skipping malformed entries.
func PrefetchItemsFromEventData(raw []any) []PrefetchItem {
	items := make([]PrefetchItem, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if item, ok := PrefetchItemFromEventData(obj); ok {
			items = append(items, item)
		}
	}
	return items
}

// ExecuteItem names one mbox whose content a caller is waiting on.
// Exactly one of OnContent and OnContentWithData may be set; when both
// are nil the result is delivered as a response event keyed by
// ResponsePairID.
type ExecuteItem struct {
	Name           string
	Parameters     *params.Set
	DefaultContent string

	// ResponsePairID correlates the per-item response with the
	// caller-side pending callback.
	ResponsePairID string

	OnContent         func(content string)
	OnContentWithData func(content string, data map[string]any)
}

// ToEventData converts the item to its host-bus map form. Callbacks do
// not travel on the bus; they stay with the caller, keyed by
// ResponsePairID.
func (e ExecuteItem) ToEventData() map[string]any {
	data := map[string]any{
		event.KeyMboxName:       e.Name,
		event.KeyDefaultContent: e.DefaultContent,
		event.KeyResponsePairID: e.ResponsePairID,
	}
	if e.Parameters != nil {
		data[event.KeyTargetParameters] = e.Parameters.ToEventData()
	}
	return data
}

// ExecuteItemFromEventData builds an ExecuteItem from its host-bus map
// form. Returns false when data lacks an mbox name.
func ExecuteItemFromEventData(data map[string]any) (ExecuteItem, bool) {
	name := jsonval.OptString(data, event.KeyMboxName, "")
	if name == "" {
		return ExecuteItem{}, false
	}
	return ExecuteItem{
		Name:           name,
		Parameters:     params.FromEventData(jsonval.OptObject(data, event.KeyTargetParameters)),
		DefaultContent: jsonval.OptString(data, event.KeyDefaultContent, ""),
		ResponsePairID: jsonval.OptString(data, event.KeyResponsePairID, ""),
	}, true
}

// ExecuteItemsFromEventData converts the raw list under the load-request
// event-data key, skipping malformed entries.
func ExecuteItemsFromEventData(raw []any) []ExecuteItem {
	items := make([]ExecuteItem, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if item, ok := ExecuteItemFromEventData(obj); ok {
			items = append(items, item)
		}
	}
	return items
}
