// Package request assembles delivery-API payloads from caller items,
// merged parameters, identity and device snapshots, and pending
// notifications.
package request

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mboxkit/mboxkit/internal/domain/mbox"
	"github.com/mboxkit/mboxkit/internal/domain/params"
	"github.com/mboxkit/mboxkit/internal/domain/visitor"
	"github.com/mboxkit/mboxkit/internal/jsonval"
	"github.com/mboxkit/mboxkit/internal/wire"
)

// DeviceInfo is the device/context collaborator, consumed read-only.
type DeviceInfo interface {
	UserAgent() string
	PlatformName() string
	DeviceName() string
	DeviceType() string
	ApplicationID() string
	ApplicationName() string
	ApplicationVersion() string
	ScreenSize() (width, height int)
	Orientation() string
}

// PreviewProvider supplies the active preview session's token and
// parameter blob. Both empty when no preview session is active.
type PreviewProvider interface {
	Token() string
	Parameters() string
}

// IdentitySnapshot carries the sibling collaborators' visitor identity
// fields folded into the payload's id and experienceCloud nodes.
type IdentitySnapshot struct {
	TntID                   string
	ThirdPartyID            string
	MarketingCloudVisitorID string
	Blob                    string
	LocationHint            string
	CustomerIDs             []visitor.CustomerID
}

// Builder turns request inputs into delivery-API JSON trees.
type Builder struct {
	logger  zerolog.Logger
	device  DeviceInfo
	preview PreviewProvider
	now     func() time.Time
}

// NewBuilder constructs a Builder. device and preview may be nil, in
// which case the context node and preview splice are omitted.
func NewBuilder(device DeviceInfo, preview PreviewProvider, logger zerolog.Logger) *Builder {
	return &Builder{
		logger:  logger.With().Str("component", "request").Logger(),
		device:  device,
		preview: preview,
		now:     time.Now,
	}
}

// Input is everything a structured payload build needs.
type Input struct {
	Prefetch      []mbox.PrefetchItem
	Execute       []mbox.ExecuteItem
	Parameters    *params.Set
	Notifications []map[string]any
	PropertyToken string
	EnvironmentID int64
	Identity      IdentitySnapshot
	Lifecycle     map[string]string
}

// BuildPayload assembles the structured delivery payload. Returns an
// error when the preview parameter blob cannot be parsed; any build
// failure means no payload, never a partial one.
func (b *Builder) BuildPayload(in Input) (map[string]any, error) {
	payload := make(map[string]any)

	if id := b.idNode(in.Identity); len(id) > 0 {
		payload[wire.KeyID] = id
	}
	if ctx := b.contextNode(); len(ctx) > 0 {
		payload[wire.KeyContext] = ctx
	}
	if ec := b.experienceCloudNode(in.Identity); len(ec) > 0 {
		payload[wire.KeyExperienceCloud] = ec
	}
	if in.EnvironmentID != 0 {
		payload[wire.KeyEnvironmentID] = in.EnvironmentID
	}

	if len(in.Prefetch) > 0 {
		mboxes := make([]map[string]any, 0, len(in.Prefetch))
		for i, item := range in.Prefetch {
			mboxes = append(mboxes, b.mboxNode(item.Name, i, item.Parameters, in.Parameters, in.Lifecycle))
		}
		payload[wire.KeyPrefetch] = map[string]any{wire.KeyMboxes: mboxes}
	}
	if len(in.Execute) > 0 {
		mboxes := make([]map[string]any, 0, len(in.Execute))
		for i, item := range in.Execute {
			mboxes = append(mboxes, b.mboxNode(item.Name, i, item.Parameters, in.Parameters, in.Lifecycle))
		}
		payload[wire.KeyExecute] = map[string]any{wire.KeyMboxes: mboxes}
	}
	if len(in.Notifications) > 0 {
		payload[wire.KeyNotifications] = in.Notifications
	}
	if in.PropertyToken != "" {
		payload[wire.KeyProperty] = map[string]any{wire.KeyToken: in.PropertyToken}
	}

	if err := b.splicePreview(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// RawInput is a caller-authored payload passed through nearly as-is.
type RawInput struct {
	Request       map[string]any
	PropertyToken string
	EnvironmentID int64
	Identity      IdentitySnapshot
}

// BuildRawPayload wraps a pre-authored request, filling in the id,
// context, experienceCloud, environment id, and property token nodes
// the caller left out.
func (b *Builder) BuildRawPayload(in RawInput) (map[string]any, error) {
	payload := make(map[string]any)

	if execute := jsonval.OptObject(in.Request, wire.KeyExecute); len(execute) > 0 {
		payload[wire.KeyExecute] = execute
	}
	if prefetch := jsonval.OptObject(in.Request, wire.KeyPrefetch); len(prefetch) > 0 {
		payload[wire.KeyPrefetch] = prefetch
	}
	if notifications := jsonval.OptArray(in.Request, wire.KeyNotifications); len(notifications) > 0 {
		payload[wire.KeyNotifications] = notifications
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("raw request carries no execute, prefetch, or notifications node")
	}

	if id := b.idNode(in.Identity); len(id) > 0 {
		payload[wire.KeyID] = id
	}
	if ctx := b.contextNode(); len(ctx) > 0 {
		payload[wire.KeyContext] = ctx
	}
	if ec := b.experienceCloudNode(in.Identity); len(ec) > 0 {
		payload[wire.KeyExperienceCloud] = ec
	}
	if in.EnvironmentID != 0 {
		payload[wire.KeyEnvironmentID] = in.EnvironmentID
	}
	if in.PropertyToken != "" && jsonval.OptObject(payload, wire.KeyProperty) == nil {
		payload[wire.KeyProperty] = map[string]any{wire.KeyToken: in.PropertyToken}
	}

	if err := b.splicePreview(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (b *Builder) idNode(identity IdentitySnapshot) map[string]any {
	id := make(map[string]any)
	if identity.TntID != "" {
		id[wire.KeyTntID] = identity.TntID
	}
	if identity.ThirdPartyID != "" {
		id[wire.KeyThirdPartyID] = identity.ThirdPartyID
	}
	if identity.MarketingCloudVisitorID != "" {
		id[wire.KeyMarketingCloudVisitorID] = identity.MarketingCloudVisitorID
	}
	if len(identity.CustomerIDs) > 0 {
		customerIDs := make([]map[string]any, 0, len(identity.CustomerIDs))
		for _, cid := range identity.CustomerIDs {
			customerIDs = append(customerIDs, map[string]any{
				wire.KeyCustomerIDID:       cid.ID,
				wire.KeyIntegrationCode:    cid.IntegrationCode,
				wire.KeyAuthenticatedState: cid.AuthenticationState.String(),
			})
		}
		id[wire.KeyCustomerIDs] = customerIDs
	}
	return id
}

func (b *Builder) contextNode() map[string]any {
	if b.device == nil {
		return nil
	}

	ctx := map[string]any{wire.KeyChannel: wire.ChannelMobile}
	platform := make(map[string]any)
	if name := b.device.PlatformName(); name != "" {
		platform[wire.KeyPlatformType] = name
	}
	if name := b.device.DeviceName(); name != "" {
		platform[wire.KeyDeviceName] = name
	}
	if kind := b.device.DeviceType(); kind != "" {
		platform[wire.KeyDeviceType] = kind
	}
	if len(platform) > 0 {
		ctx[wire.KeyMobilePlatform] = platform
	}

	app := make(map[string]any)
	if id := b.device.ApplicationID(); id != "" {
		app[wire.KeyAppID] = id
	}
	if name := b.device.ApplicationName(); name != "" {
		app[wire.KeyAppName] = name
	}
	if version := b.device.ApplicationVersion(); version != "" {
		app[wire.KeyAppVersion] = version
	}
	if len(app) > 0 {
		ctx[wire.KeyApplication] = app
	}

	screen := map[string]any{wire.KeyColorDepth: wire.ColorDepth32}
	if width, height := b.device.ScreenSize(); width > 0 && height > 0 {
		screen[wire.KeyWidth] = width
		screen[wire.KeyHeight] = height
	}
	if orientation := b.device.Orientation(); orientation != "" {
		screen[wire.KeyOrientation] = orientation
	}
	ctx[wire.KeyScreen] = screen

	if ua := b.device.UserAgent(); ua != "" {
		ctx[wire.KeyUserAgent] = ua
	}
	ctx[wire.KeyTimeOffsetInMinutes] = utcOffsetMinutes(b.now())
	return ctx
}

func utcOffsetMinutes(now time.Time) int64 {
	_, offsetSeconds := now.Zone()
	return int64(offsetSeconds / 60)
}

func (b *Builder) experienceCloudNode(identity IdentitySnapshot) map[string]any {
	ec := map[string]any{
		wire.KeyAnalytics: map[string]any{wire.KeyLogging: wire.KeyClientSide},
	}
	am := make(map[string]any)
	if identity.Blob != "" {
		am[wire.KeyBlob] = identity.Blob
	}
	if identity.LocationHint != "" {
		am[wire.KeyLocationHint] = identity.LocationHint
	}
	if len(am) > 0 {
		ec[wire.KeyAudienceManager] = am
	}
	return ec
}

// mboxNode serializes one mbox entry. Per-mbox parameters win over
// global parameters on key collision; lifecycle context data seeds the
// custom parameter map before either.
func (b *Builder) mboxNode(name string, index int, itemParams, globalParams *params.Set, lifecycle map[string]string) map[string]any {
	node := map[string]any{
		wire.KeyMboxIndex: index,
		wire.KeyMboxName:  name,
	}

	attachParameters(node, params.Merge([]*params.Set{
		{Parameters: lifecycle},
		globalParams,
		itemParams,
	}))
	return node
}

// attachParameters serializes a merged parameter set onto a payload
// node. The reserved at_property key is stripped; order and product are
// attached only when complete.
func attachParameters(node map[string]any, merged *params.Set) {
	custom := make(map[string]string, len(merged.Parameters))
	for key, value := range merged.Parameters {
		if key == wire.KeyAtProperty {
			continue
		}
		custom[key] = value
	}
	if len(custom) > 0 {
		node[wire.KeyParameters] = custom
	}
	if len(merged.ProfileParameters) > 0 {
		node[wire.KeyProfileParams] = merged.ProfileParameters
	}
	if merged.Order != nil && merged.Order.IsComplete() {
		node[wire.KeyOrder] = map[string]any{
			wire.KeyOrderID:        merged.Order.ID,
			wire.KeyOrderTotal:     merged.Order.Total,
			wire.KeyOrderPurchased: merged.Order.PurchasedProductIDs,
		}
	}
	if merged.Product != nil && merged.Product.IsComplete() {
		node[wire.KeyProduct] = map[string]any{
			wire.KeyProductID:  merged.Product.ID,
			wire.KeyCategoryID: merged.Product.CategoryID,
		}
	}
}

// splicePreview merges the active preview session's parameters into the
// payload top level. A malformed preview blob fails the whole build.
func (b *Builder) splicePreview(payload map[string]any) error {
	if b.preview == nil || b.preview.Token() == "" {
		return nil
	}
	raw := b.preview.Parameters()
	if raw == "" {
		return nil
	}
	previewParams, err := jsonval.Decode([]byte(raw))
	if err != nil {
		return fmt.Errorf("failed to parse preview parameters: %w", err)
	}
	for key, value := range previewParams {
		payload[key] = value
	}
	return nil
}

// BuildDisplayNotification builds a display notification from an
// mbox's cached response. Returns nil when the cached response is
// absent or carries no usable event tokens; the caller drops that
// single notification silently.
func (b *Builder) BuildDisplayNotification(mboxName string, cached map[string]any, parameters *params.Set, timestamp int64, lifecycle map[string]string) map[string]any {
	if cached == nil {
		b.logger.Debug().Str("mbox", mboxName).Msg("no cached response for display notification")
		return nil
	}

	tokens := displayTokens(cached)
	if len(tokens) == 0 {
		b.logger.Debug().Str("mbox", mboxName).Msg("cached response carries no display tokens")
		return nil
	}
	return b.notification(mboxName, cached, wire.NotificationTypeDisplay, tokens, parameters, timestamp, lifecycle)
}

// BuildClickNotification builds a click notification from an mbox's
// cached response. Unlike display, a missing click token is an error
// surfaced to the caller.
func (b *Builder) BuildClickNotification(mboxName string, cached map[string]any, parameters *params.Set, timestamp int64, lifecycle map[string]string) (map[string]any, error) {
	if cached == nil {
		return nil, fmt.Errorf("no cached response for mbox %s", mboxName)
	}

	var tokens []string
	metrics := jsonval.OptArray(cached, wire.KeyMetrics)
	for _, entry := range metrics {
		metric, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if jsonval.OptString(metric, wire.KeyMetricType, "") != wire.MetricTypeClick {
			continue
		}
		if token := jsonval.OptString(metric, wire.KeyEventToken, ""); token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no click token in cached response for mbox %s", mboxName)
	}
	return b.notification(mboxName, cached, wire.NotificationTypeClick, tokens, parameters, timestamp, lifecycle), nil
}

func displayTokens(cached map[string]any) []string {
	var tokens []string
	for _, entry := range jsonval.OptArray(cached, wire.KeyOptions) {
		option, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if token := jsonval.OptString(option, wire.KeyEventToken, ""); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func (b *Builder) notification(mboxName string, cached map[string]any, kind string, tokens []string, parameters *params.Set, timestamp int64, lifecycle map[string]string) map[string]any {
	mboxNode := map[string]any{wire.KeyMboxName: mboxName}
	if state := jsonval.OptString(cached, wire.KeyMboxState, ""); state != "" {
		mboxNode[wire.KeyMboxState] = state
	}

	notification := map[string]any{
		wire.KeyNotificationID:        uuid.NewString(),
		wire.KeyNotificationTimestamp: timestamp,
		wire.KeyNotificationType:      kind,
		wire.KeyNotificationMbox:      mboxNode,
		wire.KeyNotificationTokens:    tokens,
	}

	attachParameters(notification, params.Merge([]*params.Set{{Parameters: lifecycle}, parameters}))
	return notification
}
