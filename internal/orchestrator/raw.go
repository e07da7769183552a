package orchestrator

import (
	"github.com/mboxkit/mboxkit/internal/domain/event"
	"github.com/mboxkit/mboxkit/internal/infrastructure/netclient"
	"github.com/mboxkit/mboxkit/internal/jsonval"
	"github.com/mboxkit/mboxkit/internal/request"
	"github.com/mboxkit/mboxkit/internal/response"
)

// HandleRawRequest passes a caller-authored execute/prefetch payload
// or notification batch through to the delivery API. Content requests
// answer with the parsed response tree; notification-only requests
// answer with nothing.
func (e *Extension) HandleRawRequest(ev event.Event) {
	isContentRequest := ev.Data[event.KeyExecute] != nil || ev.Data[event.KeyPrefetch] != nil

	if err := e.prepareForTargetRequest(); err != nil {
		e.logger.Debug().Err(err).Msg("raw request preconditions failed")
		e.dispatchRawResponse(isContentRequest, nil, ev)
		return
	}

	payload, err := e.builder.BuildRawPayload(request.RawInput{
		Request:       ev.Data,
		PropertyToken: e.rawPropertyToken(ev),
		EnvironmentID: jsonval.OptInt64(ev.Data, event.KeyEnvironmentID, e.state.EnvironmentID()),
		Identity:      e.identitySnapshot(&ev),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to generate raw payload")
		e.dispatchRawResponse(isContentRequest, nil, ev)
		return
	}

	e.sendDeliveryRequest(payload, func(resp *netclient.Response) {
		e.mu.Lock()
		defer e.mu.Unlock()

		tree, err := decodeDeliveryResponse(resp)
		if err != nil {
			e.logger.Warn().Err(err).Msg("raw request failed")
			e.dispatchRawResponse(isContentRequest, nil, ev)
			return
		}

		e.state.UpdateSessionTimestamp(false)
		// unlike the batched path, the raw path touches the tnt id
		// only when the response carries an id node
		if tntID := response.TntID(tree); tntID != "" {
			e.state.SetTntID(tntID)
		}
		e.state.UpdateEdgeHost(response.EdgeHost(tree))
		e.host.CreateSharedState(e.state.GenerateSharedState(), &ev)
		e.dispatchRawResponse(isContentRequest, tree, ev)
	})
}

// rawPropertyToken reads the property token from the raw request,
// falling back to the configured token.
func (e *Extension) rawPropertyToken(ev event.Event) string {
	property := jsonval.OptObject(ev.Data, event.KeyProperty)
	if token := jsonval.OptString(property, event.KeyToken, ""); token != "" {
		return token
	}
	return e.state.PropertyToken()
}

// dispatchRawResponse answers a raw content request. Notification-only
// raw requests have no response event.
func (e *Extension) dispatchRawResponse(isContentRequest bool, tree map[string]any, ev event.Event) {
	if !isContentRequest {
		return
	}
	var data map[string]any
	if tree != nil {
		data = map[string]any{event.KeyResponseData: tree}
	} else {
		data = map[string]any{event.KeyResponseData: nil}
	}
	e.host.Dispatch(event.NewResponse(event.NameRawResponse, event.TypeTarget, event.SourceResponseContent, data, ev))
}
