package orchestrator

import (
	"fmt"

	"github.com/mboxkit/mboxkit/internal/domain/event"
	"github.com/mboxkit/mboxkit/internal/domain/mbox"
	"github.com/mboxkit/mboxkit/internal/domain/params"
	"github.com/mboxkit/mboxkit/internal/infrastructure/netclient"
	"github.com/mboxkit/mboxkit/internal/jsonval"
	"github.com/mboxkit/mboxkit/internal/request"
	"github.com/mboxkit/mboxkit/internal/response"
)

// decodeDeliveryResponse turns a completed network call into a parsed
// response tree, or the failure that terminates the request.
func decodeDeliveryResponse(resp *netclient.Response) (map[string]any, error) {
	if resp == nil {
		return nil, fmt.Errorf("connection failed")
	}
	tree, err := jsonval.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("response body is null or unparseable: %w", err)
	}
	if resp.StatusCode != 200 {
		if message := response.ErrorMessage(tree); message != "" {
			return nil, fmt.Errorf("delivery request failed with status %d: %s", resp.StatusCode, message)
		}
		return nil, fmt.Errorf("delivery request failed with status %d", resp.StatusCode)
	}
	if message := response.ErrorMessage(tree); message != "" {
		return nil, fmt.Errorf("server reported error: %s", message)
	}
	return tree, nil
}

// HandlePrefetchContent fetches mbox content ahead of display time and
// caches it. The caller learns only success or failure; content is
// served later from the cache.
func (e *Extension) HandlePrefetchContent(ev event.Event) {
	items := mbox.PrefetchItemsFromEventData(jsonval.OptArray(ev.Data, event.KeyPrefetch))
	parameters := params.FromEventData(jsonval.OptObject(ev.Data, event.KeyTargetParameters))
	e.PrefetchContent(items, parameters, ev)
}

// PrefetchContent is the programmatic entry for prefetch requests.
func (e *Extension) PrefetchContent(items []mbox.PrefetchItem, parameters *params.Set, ev event.Event) {
	if e.preview != nil && e.preview.Token() != "" {
		e.dispatchPrefetchResult(ev, errPreviewInProgress)
		return
	}
	if err := e.prepareForTargetRequest(); err != nil {
		e.dispatchPrefetchResult(ev, err)
		return
	}
	if len(items) == 0 {
		e.dispatchPrefetchResult(ev, errEmptyRequestList)
		return
	}

	payload, err := e.builder.BuildPayload(request.Input{
		Prefetch:      items,
		Parameters:    parameters,
		Notifications: e.state.Notifications(),
		PropertyToken: e.state.PropertyToken(),
		EnvironmentID: e.state.EnvironmentID(),
		Identity:      e.identitySnapshot(&ev),
		Lifecycle:     e.lifecycleSnapshot(&ev),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to generate prefetch payload")
		e.dispatchPrefetchResult(ev, fmt.Errorf("payload generation failed: %w", err))
		return
	}

	e.sendDeliveryRequest(payload, func(resp *netclient.Response) {
		e.mu.Lock()
		defer e.mu.Unlock()

		tree, err := decodeDeliveryResponse(resp)
		if err != nil {
			e.logger.Warn().Err(err).Msg("prefetch request failed")
			e.dispatchPrefetchResult(ev, err)
			return
		}

		prefetched := response.ExtractPrefetchedMboxes(tree)
		if len(prefetched) == 0 {
			e.dispatchPrefetchResult(ev, fmt.Errorf("response contains no prefetched mboxes"))
			return
		}
		e.state.MergePrefetched(prefetched)
		e.state.RemoveDuplicateLoaded()
		e.processDeliveryTree(tree, ev)
		e.dispatchPrefetchResult(ev, nil)
	})
}

func (e *Extension) dispatchPrefetchResult(ev event.Event, failure error) {
	data := map[string]any{
		event.KeyPrefetchResult: failure == nil,
	}
	if failure != nil {
		data[event.KeyPrefetchError] = failure.Error()
	}
	e.host.Dispatch(event.NewResponse(event.NameResponse, event.TypeTarget, event.SourceResponseContent, data, ev))
}

// HandleLoadRequests serves a batch of execute items, delivering one
// outcome per item.
func (e *Extension) HandleLoadRequests(ev event.Event) {
	items := mbox.ExecuteItemsFromEventData(jsonval.OptArray(ev.Data, event.KeyLoadRequest))
	parameters := params.FromEventData(jsonval.OptObject(ev.Data, event.KeyTargetParameters))
	e.LoadRequests(items, parameters, ev)
}

// LoadRequests is the programmatic entry for execute requests. Every
// item resolves exactly once: with server content on success, with its
// default content on any failure.
func (e *Extension) LoadRequests(items []mbox.ExecuteItem, parameters *params.Set, ev event.Event) {
	if err := e.prepareForTargetRequest(); err != nil {
		e.logger.Debug().Err(err).Msg("load request preconditions failed")
		e.deliverDefaults(items, ev)
		return
	}
	if len(items) == 0 {
		e.logger.Warn().Msg("load request carries no items")
		return
	}

	payload, err := e.builder.BuildPayload(request.Input{
		Execute:       items,
		Parameters:    parameters,
		Notifications: e.state.Notifications(),
		PropertyToken: e.state.PropertyToken(),
		EnvironmentID: e.state.EnvironmentID(),
		Identity:      e.identitySnapshot(&ev),
		Lifecycle:     e.lifecycleSnapshot(&ev),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to generate load payload")
		e.deliverDefaults(items, ev)
		return
	}

	e.sendDeliveryRequest(payload, func(resp *netclient.Response) {
		e.mu.Lock()
		defer e.mu.Unlock()

		tree, err := decodeDeliveryResponse(resp)
		if err != nil {
			e.logger.Warn().Err(err).Msg("load request failed")
			e.deliverDefaults(items, ev)
			return
		}

		e.processDeliveryTree(tree, ev)

		batched := response.ExtractMboxes(tree, event.KeyExecute)
		if len(batched) > 0 {
			e.state.SaveLoaded(batched)
			e.state.RemoveDuplicateLoaded()
		}
		for _, item := range items {
			mboxResponse, ok := batched[item.Name]
			if !ok {
				e.deliverItem(item, item.DefaultContent, nil, ev)
				continue
			}
			e.dispatchAnalyticsForTarget(response.AnalyticsPayload(mboxResponse), ev)

			content := response.ExtractContent(mboxResponse)
			if content == "" {
				content = item.DefaultContent
			}
			e.deliverItem(item, content, responseData(mboxResponse, e.state.SessionID()), ev)
		}
	})
}

// responseData assembles the optional data payload delivered next to
// an item's content.
func responseData(mboxResponse map[string]any, sessionID string) map[string]any {
	data := make(map[string]any)
	if tokens := response.ResponseTokens(mboxResponse); len(tokens) > 0 {
		data[event.KeyResponseTokens] = tokens
	}
	if payload := response.PrefixAnalyticsKeys(response.AnalyticsPayload(mboxResponse), sessionID); payload != nil {
		data[event.KeyAnalyticsPayload] = payload
	}
	if payload := response.PrefixAnalyticsKeys(response.ClickMetricAnalyticsPayload(mboxResponse), sessionID); payload != nil {
		data[event.KeyClickMetricAnalyticsPayload] = payload
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

// deliverDefaults resolves every item with its default content.
func (e *Extension) deliverDefaults(items []mbox.ExecuteItem, ev event.Event) {
	for _, item := range items {
		e.deliverItem(item, item.DefaultContent, nil, ev)
	}
}

// deliverItem resolves one execute item exactly once, through its
// callback when set, else through a paired response event.
func (e *Extension) deliverItem(item mbox.ExecuteItem, content string, data map[string]any, ev event.Event) {
	switch {
	case item.OnContentWithData != nil:
		item.OnContentWithData(content, data)
	case item.OnContent != nil:
		item.OnContent(content)
	default:
		responseEvent := event.NewResponse(event.NameResponse, event.TypeTarget, event.SourceResponseContent, map[string]any{
			event.KeyContent:         content,
			event.KeyDataPayload:     data,
			event.KeyResponsePairID:  item.ResponsePairID,
			event.KeyResponseEventID: ev.ID,
		}, ev)
		e.host.Dispatch(responseEvent)
	}
}

// dispatchAnalyticsForTarget forwards an analytics-for-target payload
// to the analytics collaborator.
func (e *Extension) dispatchAnalyticsForTarget(payload map[string]string, ev event.Event) {
	prefixed := response.PrefixAnalyticsKeys(payload, e.state.SessionID())
	if prefixed == nil {
		return
	}
	e.host.Dispatch(event.New(event.NameAnalyticsForTargetRequest, event.TypeAnalytics, event.SourceRequestContent, map[string]any{
		event.KeyTrackAction:      "AnalyticsForTarget",
		event.KeyTrackContextData: prefixed,
	}))
}
