// Package wire holds the delivery-API JSON field names shared by the
// request builder and response parser.
package wire

// Top-level payload nodes.
const (
	KeyID              = "id"
	KeyContext         = "context"
	KeyExperienceCloud = "experienceCloud"
	KeyEnvironmentID   = "environmentId"
	KeyPrefetch        = "prefetch"
	KeyExecute         = "execute"
	KeyNotifications   = "notifications"
	KeyProperty        = "property"
	KeyMessage         = "message"
	KeyEdgeHost        = "edgeHost"
)

// id node fields.
const (
	KeyTntID                   = "tntId"
	KeyThirdPartyID            = "thirdPartyId"
	KeyMarketingCloudVisitorID = "marketingCloudVisitorId"
	KeyCustomerIDs             = "customerIds"
	KeyCustomerIDID            = "id"
	KeyIntegrationCode         = "integrationCode"
	KeyAuthenticatedState      = "authenticatedState"
)

// context node fields.
const (
	KeyChannel             = "channel"
	KeyMobilePlatform      = "mobilePlatform"
	KeyApplication         = "application"
	KeyScreen              = "screen"
	KeyUserAgent           = "userAgent"
	KeyTimeOffsetInMinutes = "timeOffsetInMinutes"
	KeyPlatformType        = "platformType"
	KeyDeviceName          = "deviceName"
	KeyDeviceType          = "deviceType"
	KeyAppID               = "id"
	KeyAppName             = "name"
	KeyAppVersion          = "version"
	KeyColorDepth          = "colorDepth"
	KeyWidth               = "width"
	KeyHeight              = "height"
	KeyOrientation         = "orientation"

	ChannelMobile        = "mobile"
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
	ColorDepth32         = 32
)

// experienceCloud node fields.
const (
	KeyAudienceManager = "audienceManager"
	KeyAnalytics       = "analytics"
	KeyBlob            = "blob"
	KeyLocationHint    = "locationHint"
	KeyLogging         = "logging"
	KeyClientSide      = "client_side"
)

// mbox fields.
const (
	KeyMboxes         = "mboxes"
	KeyMboxName       = "name"
	KeyMboxState      = "state"
	KeyMboxIndex      = "index"
	KeyParameters     = "parameters"
	KeyProfileParams  = "profileParameters"
	KeyOrder          = "order"
	KeyOrderID        = "id"
	KeyOrderTotal     = "total"
	KeyOrderPurchased = "purchasedProductIds"
	KeyProduct        = "product"
	KeyProductID      = "id"
	KeyCategoryID     = "categoryId"
)

// option and metric fields.
const (
	KeyOptions        = "options"
	KeyOptionType     = "type"
	KeyContent        = "content"
	KeyResponseTokens = "responseTokens"
	KeyMetrics        = "metrics"
	KeyMetricType     = "type"
	KeyEventToken     = "eventToken"
	KeyAnalyticsNode  = "analytics"
	KeyPayload        = "payload"

	OptionTypeHTML  = "html"
	OptionTypeJSON  = "json"
	MetricTypeClick = "click"
)

// notification fields.
const (
	KeyNotificationID        = "id"
	KeyNotificationTimestamp = "timestamp"
	KeyNotificationType      = "type"
	KeyNotificationMbox      = "mbox"
	KeyNotificationTokens    = "tokens"
	KeyToken                 = "token"

	NotificationTypeDisplay = "display"
	NotificationTypeClick   = "click"
)

// Reserved mbox parameter superseded by the top-level property token.
const KeyAtProperty = "at_property"
