package request

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mboxkit/mboxkit/internal/domain/mbox"
	"github.com/mboxkit/mboxkit/internal/domain/params"
	"github.com/mboxkit/mboxkit/internal/domain/visitor"
	"github.com/mboxkit/mboxkit/internal/jsonval"
)

type fakeDevice struct{}

func (fakeDevice) UserAgent() string          { return "Mozilla/5.0 (Linux; Android 14)" }
func (fakeDevice) PlatformName() string       { return "android" }
func (fakeDevice) DeviceName() string         { return "Pixel 8" }
func (fakeDevice) DeviceType() string         { return "phone" }
func (fakeDevice) ApplicationID() string      { return "com.example.app" }
func (fakeDevice) ApplicationName() string    { return "Example" }
func (fakeDevice) ApplicationVersion() string { return "1.2.3" }
func (fakeDevice) ScreenSize() (int, int)     { return 1080, 2400 }
func (fakeDevice) Orientation() string        { return "portrait" }

type fakePreview struct {
	token      string
	parameters string
}

func (p fakePreview) Token() string      { return p.token }
func (p fakePreview) Parameters() string { return p.parameters }

func newTestBuilder() *Builder {
	b := NewBuilder(fakeDevice{}, nil, zerolog.Nop())
	b.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func TestBuildPayloadStructure(t *testing.T) {
	b := newTestBuilder()

	payload, err := b.BuildPayload(Input{
		Execute: []mbox.ExecuteItem{
			{Name: "mbox0", Parameters: &params.Set{Parameters: map[string]string{"local": "1"}}},
			{Name: "mbox1"},
		},
		Prefetch: []mbox.PrefetchItem{
			{Name: "home"},
		},
		Parameters:    &params.Set{Parameters: map[string]string{"global": "g"}},
		PropertyToken: "prop-token",
		EnvironmentID: 42,
		Identity: IdentitySnapshot{
			TntID:                   "66E5C681.35_0",
			ThirdPartyID:            "tp",
			MarketingCloudVisitorID: "mcid",
		},
	})
	require.NoError(t, err)

	id := jsonval.OptObject(payload, "id")
	require.NotNil(t, id)
	assert.Equal(t, "66E5C681.35_0", id["tntId"])
	assert.Equal(t, "tp", id["thirdPartyId"])
	assert.Equal(t, "mcid", id["marketingCloudVisitorId"])

	ctx := jsonval.OptObject(payload, "context")
	require.NotNil(t, ctx)
	assert.Equal(t, "mobile", ctx["channel"])
	assert.Equal(t, int64(0), ctx["timeOffsetInMinutes"])

	assert.Equal(t, int64(42), payload["environmentId"])
	assert.Equal(t, map[string]any{"token": "prop-token"}, payload["property"])

	execute := jsonval.OptObject(payload, "execute")
	require.NotNil(t, execute)
	mboxes := execute["mboxes"].([]map[string]any)
	require.Len(t, mboxes, 2)
	assert.Equal(t, 0, mboxes[0]["index"])
	assert.Equal(t, "mbox0", mboxes[0]["name"])
	assert.Equal(t, 1, mboxes[1]["index"])

	// per-mbox parameters merged over globals
	assert.Equal(t, map[string]string{"global": "g", "local": "1"}, mboxes[0]["parameters"])

	prefetch := jsonval.OptObject(payload, "prefetch")
	require.NotNil(t, prefetch)
	require.Len(t, prefetch["mboxes"].([]map[string]any), 1)
}

func TestBuildPayloadOmitsEmptyNodes(t *testing.T) {
	b := NewBuilder(nil, nil, zerolog.Nop())

	payload, err := b.BuildPayload(Input{
		Execute: []mbox.ExecuteItem{{Name: "mbox0"}},
	})
	require.NoError(t, err)

	assert.NotContains(t, payload, "id")
	assert.NotContains(t, payload, "context")
	assert.NotContains(t, payload, "environmentId")
	assert.NotContains(t, payload, "property")
	assert.NotContains(t, payload, "notifications")
	assert.NotContains(t, payload, "prefetch")
}

func TestBuildPayloadCustomerIDs(t *testing.T) {
	b := newTestBuilder()

	payload, err := b.BuildPayload(Input{
		Execute: []mbox.ExecuteItem{{Name: "mbox0"}},
		Identity: IdentitySnapshot{
			CustomerIDs: []visitor.CustomerID{
				{ID: "vid", IntegrationCode: "crm", AuthenticationState: visitor.AuthenticationStateAuthenticated},
			},
		},
	})
	require.NoError(t, err)

	id := jsonval.OptObject(payload, "id")
	require.NotNil(t, id)
	customerIDs := id["customerIds"].([]map[string]any)
	require.Len(t, customerIDs, 1)
	assert.Equal(t, "authenticated", customerIDs[0]["authenticatedState"])
}

func TestBuildPayloadOrderInclusion(t *testing.T) {
	b := newTestBuilder()

	tests := []struct {
		name     string
		order    *params.Order
		included bool
	}{
		{"complete", &params.Order{ID: "o1", Total: 9.99, PurchasedProductIDs: []string{"p1"}}, true},
		{"empty id", &params.Order{Total: 9.99, PurchasedProductIDs: []string{"p1"}}, false},
		{"zero total", &params.Order{ID: "o1", PurchasedProductIDs: []string{"p1"}}, false},
		{"no products", &params.Order{ID: "o1", Total: 9.99}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := b.BuildPayload(Input{
				Execute: []mbox.ExecuteItem{{
					Name:       "mbox0",
					Parameters: &params.Set{Order: tc.order},
				}},
			})
			require.NoError(t, err)

			node := jsonval.OptObject(payload, "execute")["mboxes"].([]map[string]any)[0]
			if tc.included {
				require.Contains(t, node, "order")
				order := node["order"].(map[string]any)
				assert.Equal(t, "o1", order["id"])
				assert.Equal(t, 9.99, order["total"])
				assert.Equal(t, []string{"p1"}, order["purchasedProductIds"])
			} else {
				assert.NotContains(t, node, "order")
			}
		})
	}
}

func TestBuildPayloadStripsAtProperty(t *testing.T) {
	b := newTestBuilder()

	payload, err := b.BuildPayload(Input{
		Execute: []mbox.ExecuteItem{{
			Name:       "mbox0",
			Parameters: &params.Set{Parameters: map[string]string{"at_property": "legacy", "keep": "1"}},
		}},
	})
	require.NoError(t, err)

	node := jsonval.OptObject(payload, "execute")["mboxes"].([]map[string]any)[0]
	assert.Equal(t, map[string]string{"keep": "1"}, node["parameters"])
}

func TestBuildPayloadLifecycleSeedsParameters(t *testing.T) {
	b := newTestBuilder()

	payload, err := b.BuildPayload(Input{
		Execute: []mbox.ExecuteItem{{
			Name:       "mbox0",
			Parameters: &params.Set{Parameters: map[string]string{"a.OSVersion": "override"}},
		}},
		Lifecycle: map[string]string{"a.OSVersion": "Android 14", "a.AppID": "Example 1.2.3"},
	})
	require.NoError(t, err)

	node := jsonval.OptObject(payload, "execute")["mboxes"].([]map[string]any)[0]
	assert.Equal(t, map[string]string{
		"a.OSVersion": "override",
		"a.AppID":     "Example 1.2.3",
	}, node["parameters"])
}

func TestBuildPayloadPreviewSplice(t *testing.T) {
	b := NewBuilder(nil, fakePreview{
		token:      "tok",
		parameters: `{"qaMode": {"token": "tok"}}`,
	}, zerolog.Nop())

	payload, err := b.BuildPayload(Input{Execute: []mbox.ExecuteItem{{Name: "mbox0"}}})
	require.NoError(t, err)
	assert.Contains(t, payload, "qaMode")
}

func TestBuildPayloadPreviewSpliceBadBlob(t *testing.T) {
	b := NewBuilder(nil, fakePreview{token: "tok", parameters: "{broken"}, zerolog.Nop())

	_, err := b.BuildPayload(Input{Execute: []mbox.ExecuteItem{{Name: "mbox0"}}})
	assert.Error(t, err)
}

func TestBuildRawPayload(t *testing.T) {
	b := newTestBuilder()

	payload, err := b.BuildRawPayload(RawInput{
		Request: map[string]any{
			"execute": map[string]any{
				"mboxes": []any{map[string]any{"index": float64(0), "name": "mbox0"}},
			},
		},
		PropertyToken: "prop-token",
		EnvironmentID: 7,
		Identity:      IdentitySnapshot{TntID: "id.35_0"},
	})
	require.NoError(t, err)

	assert.Contains(t, payload, "execute")
	assert.Equal(t, map[string]any{"token": "prop-token"}, payload["property"])
	assert.Equal(t, int64(7), payload["environmentId"])
	assert.Equal(t, "id.35_0", jsonval.OptObject(payload, "id")["tntId"])
}

func TestBuildRawPayloadEmptyRequest(t *testing.T) {
	b := newTestBuilder()

	_, err := b.BuildRawPayload(RawInput{Request: map[string]any{}})
	assert.Error(t, err)
}

func TestBuildDisplayNotification(t *testing.T) {
	b := newTestBuilder()
	cached := map[string]any{
		"state": "mbox-state",
		"options": []any{
			map[string]any{"eventToken": "tok-1"},
			map[string]any{"eventToken": ""},
		},
	}

	notification := b.BuildDisplayNotification("mbox0", cached, nil, 1700000000, nil)
	require.NotNil(t, notification)
	assert.NotEmpty(t, notification["id"])
	assert.Equal(t, int64(1700000000), notification["timestamp"])
	assert.Equal(t, "display", notification["type"])
	assert.Equal(t, []string{"tok-1"}, notification["tokens"])
	assert.Equal(t, map[string]any{"name": "mbox0", "state": "mbox-state"}, notification["mbox"])
}

func TestBuildDisplayNotificationNoTokens(t *testing.T) {
	b := newTestBuilder()
	cached := map[string]any{"options": []any{map[string]any{"content": "c"}}}

	assert.Nil(t, b.BuildDisplayNotification("mbox0", cached, nil, 0, nil))
	assert.Nil(t, b.BuildDisplayNotification("mbox0", nil, nil, 0, nil))
}

func TestBuildClickNotification(t *testing.T) {
	b := newTestBuilder()
	cached := map[string]any{
		"metrics": []any{
			map[string]any{"type": "display", "eventToken": "d"},
			map[string]any{"type": "click", "eventToken": "click-tok"},
		},
	}

	notification, err := b.BuildClickNotification("mbox0", cached, nil, 1700000000, nil)
	require.NoError(t, err)
	assert.Equal(t, "click", notification["type"])
	assert.Equal(t, []string{"click-tok"}, notification["tokens"])
}

func TestBuildClickNotificationNoQualifyingToken(t *testing.T) {
	b := newTestBuilder()

	_, err := b.BuildClickNotification("mbox0", map[string]any{"metrics": []any{}}, nil, 0, nil)
	assert.Error(t, err)

	_, err = b.BuildClickNotification("mbox0", nil, nil, 0, nil)
	assert.Error(t, err)
}
