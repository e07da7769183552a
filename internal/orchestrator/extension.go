// Package orchestrator sequences every request kind end to end:
// precondition checks, payload build, network dispatch, response
// parsing, state mutation, and outward event/callback delivery.
package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mboxkit/mboxkit/internal/domain/event"
	"github.com/mboxkit/mboxkit/internal/domain/visitor"
	"github.com/mboxkit/mboxkit/internal/infrastructure/netclient"
	"github.com/mboxkit/mboxkit/internal/jsonval"
	"github.com/mboxkit/mboxkit/internal/preview"
	"github.com/mboxkit/mboxkit/internal/request"
	"github.com/mboxkit/mboxkit/internal/response"
	"github.com/mboxkit/mboxkit/internal/state"
)

// HostAPI is the extension's view of the host event bus.
type HostAPI interface {
	Dispatch(e event.Event)
	CreateSharedState(shared map[string]any, e *event.Event)
	SharedState(extensionName string, e *event.Event) map[string]any
}

// Names of the sibling extensions whose shared state is read per
// orchestration cycle.
const (
	SharedStateIdentity  = "com.mboxkit.module.identity"
	SharedStateLifecycle = "com.mboxkit.module.lifecycle"
)

// Identity shared-state keys.
const (
	identityKeyMID          = "mid"
	identityKeyBlob         = "blob"
	identityKeyLocationHint = "locationhint"
	identityKeyVisitorIDs   = "visitoridslist"
)

const (
	deliveryURLFormat = "https://%s/rest/v1/delivery/?client=%s&sessionId=%s"
	hostFormat        = "%s.tt.omtrdc.net"

	headerContentType    = "Content-Type"
	contentTypeJSON      = "application/json"
	lifecycleContextData = "lifecyclecontextdata"
)

// Validation failures surfaced as per-request outcomes, never thrown
// across the orchestration boundary.
var (
	errNotOptedIn        = errors.New("privacy status is not opted in")
	errMissingClientCode = errors.New("client code is not configured")
	errNoTransport       = errors.New("network transport is not available")
	errNoBuilder         = errors.New("request builder is not available")
	errEmptyRequestList  = errors.New("request list is empty")
	errPreviewInProgress = errors.New("prefetch is blocked while a preview session is active")
)

// Extension orchestrates mbox content delivery for the host
// application.
type Extension struct {
	// mu serializes state mutation: event intake is sequential, but
	// network completions arrive on worker goroutines and re-enter.
	mu sync.Mutex

	logger  zerolog.Logger
	state   *state.Manager
	builder *request.Builder
	network netclient.Service
	preview *preview.Manager
	host    HostAPI
	now     func() time.Time
}

// NewExtension wires the orchestrator to its collaborators. builder,
// network, and preview may be nil; requests needing them resolve with
// the corresponding failure outcome.
func NewExtension(
	st *state.Manager,
	builder *request.Builder,
	network netclient.Service,
	pv *preview.Manager,
	host HostAPI,
	logger zerolog.Logger,
) *Extension {
	return &Extension{
		logger:  logger.With().Str("service", "target").Logger(),
		state:   st,
		builder: builder,
		network: network,
		preview: pv,
		host:    host,
		now:     time.Now,
	}
}

// HandleRequestContent routes an incoming target request-content
// event to its handler. Routing order matters: raw events first, then
// prefetch, load, display, click, and preview restart.
func (e *Extension) HandleRequestContent(ev event.Event) {
	if ev.Data == nil {
		e.logger.Warn().Str("event_id", ev.ID).Msg("request content event carries no data")
		return
	}

	switch {
	case jsonval.OptBool(ev.Data, event.KeyIsRawEvent, false):
		e.HandleRawRequest(ev)
	case ev.Data[event.KeyPrefetch] != nil:
		e.HandlePrefetchContent(ev)
	case ev.Data[event.KeyLoadRequest] != nil:
		e.HandleLoadRequests(ev)
	case jsonval.OptBool(ev.Data, event.KeyIsLocationDisplayed, false):
		e.HandleLocationsDisplayed(ev)
	case jsonval.OptBool(ev.Data, event.KeyIsLocationClicked, false):
		e.HandleLocationClicked(ev)
	case jsonval.OptString(ev.Data, event.KeyPreviewRestartDeepLink, "") != "":
		e.SetPreviewRestartDeepLink(jsonval.OptString(ev.Data, event.KeyPreviewRestartDeepLink, ""))
	default:
		e.logger.Warn().Str("event_id", ev.ID).Msg("unrecognized request content event")
	}
}

// prepareForTargetRequest runs the common preconditions in order;
// the first failure wins.
func (e *Extension) prepareForTargetRequest() error {
	if e.state.PrivacyStatus() != state.PrivacyOptedIn {
		return errNotOptedIn
	}
	if e.state.ClientCode() == "" {
		return errMissingClientCode
	}
	if e.builder == nil {
		return errNoBuilder
	}
	if e.network == nil {
		return errNoTransport
	}
	return nil
}

// deliveryURL assembles the request URL, preferring an explicit server
// override over the derived edge host over the default client host.
func (e *Extension) deliveryURL() string {
	host := e.state.TargetServer()
	if host == "" {
		host = e.state.EdgeHost()
	}
	if host == "" {
		host = fmt.Sprintf(hostFormat, e.state.ClientCode())
	}
	return fmt.Sprintf(deliveryURLFormat, host, e.state.ClientCode(), e.state.SessionID())
}

// sendDeliveryRequest serializes the payload and dispatches it. The
// callback runs on a worker goroutine.
func (e *Extension) sendDeliveryRequest(payload map[string]any, callback func(*netclient.Response)) {
	url := e.deliveryURL()
	timeout := e.state.NetworkTimeout()
	body := []byte(jsonval.Stringify(payload))

	e.logger.Debug().Str("url", url).Int("bytes", len(body)).Msg("sending delivery request")
	e.network.ConnectAsync(netclient.Request{
		URL:            url,
		Method:         "POST",
		Headers:        map[string]string{headerContentType: contentTypeJSON},
		Body:           body,
		ConnectTimeout: timeout,
		ReadTimeout:    timeout,
	}, callback)
}

// identitySnapshot folds the identity sibling's shared state into the
// request builder's input.
func (e *Extension) identitySnapshot(ev *event.Event) request.IdentitySnapshot {
	snapshot := request.IdentitySnapshot{
		TntID:        e.state.TntID(),
		ThirdPartyID: e.state.ThirdPartyID(),
	}
	shared := e.host.SharedState(SharedStateIdentity, ev)
	if shared == nil {
		return snapshot
	}
	snapshot.MarketingCloudVisitorID = jsonval.OptString(shared, identityKeyMID, "")
	snapshot.Blob = jsonval.OptString(shared, identityKeyBlob, "")
	snapshot.LocationHint = jsonval.OptString(shared, identityKeyLocationHint, "")
	snapshot.CustomerIDs = visitor.CustomerIDsFromEventData(jsonval.OptArray(shared, identityKeyVisitorIDs))
	return snapshot
}

// Lifecycle metric keys remapped to the a.-prefixed context-data names
// the delivery API expects. Keys outside this table pass through as-is.
var lifecycleParameterKeys = map[string]string{
	"advertisingidentifier": "a.adid",
	"appid":                 "a.AppID",
	"carriername":           "a.CarrierName",
	"crashevent":            "a.CrashEvent",
	"dailyenguserevent":     "a.DailyEngUserEvent",
	"dayofweek":             "a.DayOfWeek",
	"dayssincefirstuse":     "a.DaysSinceFirstUse",
	"dayssincelastuse":      "a.DaysSinceLastUse",
	"dayssincelastupgrade":  "a.DaysSinceLastUpgrade",
	"devicename":            "a.DeviceName",
	"hourofday":             "a.HourOfDay",
	"ignoredsessionlength":  "a.ignoredSessionLength",
	"installdate":           "a.InstallDate",
	"installevent":          "a.InstallEvent",
	"launchevent":           "a.LaunchEvent",
	"launches":              "a.Launches",
	"launchessinceupgrade":  "a.LaunchesSinceUpgrade",
	"locale":                "a.locale",
	"monthlyenguserevent":   "a.MonthlyEngUserEvent",
	"osversion":             "a.OSVersion",
	"prevsessionlength":     "a.PrevSessionLength",
	"resolution":            "a.Resolution",
	"runmode":               "a.RunMode",
	"upgradeevent":          "a.UpgradeEvent",
}

// lifecycleSnapshot converts the lifecycle sibling's context data to
// mbox parameters: known metric keys are remapped, everything else is
// free-form and carried through unchanged.
func (e *Extension) lifecycleSnapshot(ev *event.Event) map[string]string {
	shared := e.host.SharedState(SharedStateLifecycle, ev)
	contextData := jsonval.OptStringMap(shared, lifecycleContextData)
	if len(contextData) == 0 {
		return nil
	}
	mapped := make(map[string]string, len(contextData))
	for key, value := range contextData {
		if target, ok := lifecycleParameterKeys[key]; ok {
			mapped[target] = value
		} else {
			mapped[key] = value
		}
	}
	return mapped
}

// processDeliveryTree applies the identity side effects of a
// successful round-trip: refresh the session, replace tnt id and edge
// host from the response even when absent, and republish shared
// identity. Callers must hold e.mu.
func (e *Extension) processDeliveryTree(tree map[string]any, ev event.Event) {
	e.state.ClearNotifications()
	e.state.UpdateSessionTimestamp(false)
	// absent fields null the stored values on purpose
	e.state.SetTntID(response.TntID(tree))
	e.state.UpdateEdgeHost(response.EdgeHost(tree))
	e.host.CreateSharedState(e.state.GenerateSharedState(), &ev)
}
