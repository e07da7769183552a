// Package event defines the host event-bus contract consumed and
// produced by the extension. The bus itself is an external
// collaborator; only the value types and the key vocabulary live here.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event types handled or emitted by the extension.
const (
	TypeTarget        = "com.mboxkit.eventType.target"
	TypeConfiguration = "com.mboxkit.eventType.configuration"
	TypeGenericData   = "com.mboxkit.eventType.genericData"
	TypeAnalytics     = "com.mboxkit.eventType.analytics"
)

// Event sources.
const (
	SourceRequestContent   = "com.mboxkit.eventSource.requestContent"
	SourceRequestReset     = "com.mboxkit.eventSource.requestReset"
	SourceRequestIdentity  = "com.mboxkit.eventSource.requestIdentity"
	SourceResponseContent  = "com.mboxkit.eventSource.responseContent"
	SourceResponseIdentity = "com.mboxkit.eventSource.responseIdentity"
	SourceOS               = "com.mboxkit.eventSource.os"
)

// Names of events dispatched by the extension.
const (
	NameResponse                  = "TargetResponse"
	NameRawResponse               = "TargetRawResponse"
	NameIdentityResponse          = "TargetIdentity"
	NameResetCompletion           = "TargetReset"
	NameAnalyticsForTargetRequest = "AnalyticsForTargetRequest"
)

// Event data keys shared across request kinds.
const (
	KeyMboxName                    = "mboxname"
	KeyMboxNames                   = "mboxnames"
	KeyTargetParameters            = "targetparams"
	KeyDefaultContent              = "defaultcontent"
	KeyResponsePairID              = "responsepairid"
	KeyExecute                     = "execute"
	KeyPrefetch                    = "prefetch"
	KeyLoadRequest                 = "request"
	KeyPrefetchError               = "prefetcherror"
	KeyPrefetchResult              = "prefetchresult"
	KeyIsLocationDisplayed         = "islocationdisplayed"
	KeyIsLocationClicked           = "islocationclicked"
	KeyIsRawEvent                  = "israwevent"
	KeyNotifications               = "notifications"
	KeyResponseData                = "responsedata"
	KeyThirdPartyID                = "thirdpartyid"
	KeyTntID                       = "tntid"
	KeySessionID                   = "sessionid"
	KeyResetExperience             = "resetexperience"
	KeyClearPrefetchCache          = "clearcache"
	KeyPreviewRestartDeepLink      = "restartdeeplink"
	KeyDeepLink                    = "deeplink"
	KeyContent                     = "content"
	KeyDataPayload                 = "data"
	KeyResponseEventID             = "responseEventId"
	KeyAnalyticsPayload            = "analytics.payload"
	KeyResponseTokens              = "responseTokens"
	KeyClickMetricAnalyticsPayload = "clickmetric.analytics.payload"
	KeyA4TSessionID                = "a.target.sessionId"
	KeyTrackAction                 = "action"
	KeyTrackContextData            = "contextdata"
	KeyID                          = "id"
	KeyToken                       = "token"
	KeyContext                     = "context"
	KeyExperienceCloud             = "experienceCloud"
	KeyProperty                    = "property"
	KeyEnvironmentID               = "environmentId"
)

// Event is one message on the host bus.
type Event struct {
	ID     string
	Name   string
	Type   string
	Source string
	Data   map[string]any

	// Timestamp is the bus-assigned creation time in unix
	// milliseconds.
	Timestamp int64

	// ResponseID pairs a response event with the request event it
	// answers; empty for request events.
	ResponseID string
}

// New builds a request event with a fresh id.
func New(name, eventType, source string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewResponse builds a response event paired to the given request
// event.
func NewResponse(name, eventType, source string, data map[string]any, request Event) Event {
	e := New(name, eventType, source, data)
	e.ResponseID = request.ID
	return e
}
