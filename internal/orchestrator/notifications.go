package orchestrator

import (
	"github.com/mboxkit/mboxkit/internal/domain/event"
	"github.com/mboxkit/mboxkit/internal/domain/params"
	"github.com/mboxkit/mboxkit/internal/infrastructure/netclient"
	"github.com/mboxkit/mboxkit/internal/jsonval"
	"github.com/mboxkit/mboxkit/internal/request"
	"github.com/mboxkit/mboxkit/internal/response"
)

// HandleLocationsDisplayed queues display notifications for prefetched
// mboxes that are being rendered and sends the pending queue.
func (e *Extension) HandleLocationsDisplayed(ev event.Event) {
	mboxNames := jsonval.OptStringSlice(ev.Data, event.KeyMboxNames)
	parameters := params.FromEventData(jsonval.OptObject(ev.Data, event.KeyTargetParameters))
	e.LocationsDisplayed(mboxNames, parameters, ev)
}

// LocationsDisplayed is the programmatic entry for display
// notifications. Mboxes that were never prefetched, or were already
// served through the loaded cache, are skipped; a qualifying mbox with
// no display tokens is dropped silently without failing the batch.
func (e *Extension) LocationsDisplayed(mboxNames []string, parameters *params.Set, ev event.Event) {
	if err := e.prepareForTargetRequest(); err != nil {
		e.logger.Debug().Err(err).Msg("display notification preconditions failed")
		return
	}
	if len(mboxNames) == 0 {
		e.logger.Warn().Msg("display notification carries no mbox names")
		return
	}

	lifecycle := e.lifecycleSnapshot(&ev)
	queued := 0
	for _, name := range mboxNames {
		cached := e.state.PrefetchedMbox(name)
		if cached == nil {
			e.logger.Debug().Str("mbox", name).Msg("mbox was not prefetched, skipping display notification")
			continue
		}
		if e.state.LoadedMbox(name) != nil {
			e.logger.Debug().Str("mbox", name).Msg("mbox content already delivered, skipping display notification")
			continue
		}

		notification := e.builder.BuildDisplayNotification(name, cached, parameters, ev.Timestamp, lifecycle)
		if notification == nil {
			continue
		}
		e.state.AddNotification(notification)
		queued++
		e.dispatchAnalyticsForTarget(response.AnalyticsPayload(cached), ev)
	}

	if queued == 0 {
		e.logger.Debug().Msg("no display notifications to send")
		return
	}
	e.sendPendingNotifications(ev)
}

// HandleLocationClicked sends a click notification for an mbox whose
// cached response carries a click metric.
func (e *Extension) HandleLocationClicked(ev event.Event) {
	mboxName := jsonval.OptString(ev.Data, event.KeyMboxName, "")
	parameters := params.FromEventData(jsonval.OptObject(ev.Data, event.KeyTargetParameters))
	e.LocationClicked(mboxName, parameters, ev)
}

// LocationClicked is the programmatic entry for click notifications.
func (e *Extension) LocationClicked(mboxName string, parameters *params.Set, ev event.Event) {
	if err := e.prepareForTargetRequest(); err != nil {
		e.logger.Debug().Err(err).Msg("click notification preconditions failed")
		return
	}
	if mboxName == "" {
		e.logger.Warn().Msg("click notification carries no mbox name")
		return
	}

	cached := e.state.CachedMbox(mboxName)
	if cached == nil {
		e.logger.Warn().Str("mbox", mboxName).Msg("mbox was neither prefetched nor loaded, dropping click notification")
		return
	}

	notification, err := e.builder.BuildClickNotification(mboxName, cached, parameters, ev.Timestamp, e.lifecycleSnapshot(&ev))
	if err != nil {
		e.logger.Warn().Err(err).Str("mbox", mboxName).Msg("failed to build click notification")
		return
	}
	e.state.AddNotification(notification)
	e.dispatchAnalyticsForTarget(response.ClickMetricAnalyticsPayload(cached), ev)
	e.sendPendingNotifications(ev)
}

// sendPendingNotifications sends the queued notifications in one
// delivery call. The queue is cleared only when the round-trip
// succeeds; failures keep the notifications for the next attempt.
func (e *Extension) sendPendingNotifications(ev event.Event) {
	payload, err := e.builder.BuildPayload(request.Input{
		Notifications: e.state.Notifications(),
		PropertyToken: e.state.PropertyToken(),
		EnvironmentID: e.state.EnvironmentID(),
		Identity:      e.identitySnapshot(&ev),
		Lifecycle:     e.lifecycleSnapshot(&ev),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to generate notification payload")
		return
	}

	e.sendDeliveryRequest(payload, func(resp *netclient.Response) {
		e.mu.Lock()
		defer e.mu.Unlock()

		tree, err := decodeDeliveryResponse(resp)
		if err != nil {
			e.logger.Warn().Err(err).Msg("notification request failed, keeping queue")
			return
		}
		e.processDeliveryTree(tree, ev)
	})
}
