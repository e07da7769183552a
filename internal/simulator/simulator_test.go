package simulator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mboxkit/mboxkit/internal/infrastructure/kvstore"
	"github.com/mboxkit/mboxkit/internal/jsonval"
)

func newTestServer() *Server {
	s := NewServer(Options{ClientCode: "acme", EdgeHostHint: "35"}, kvstore.NewMemory(), nil, zerolog.Nop())
	s.SetOffer("home", Offer{
		Content:    "welcome",
		EventToken: "display-tok",
		ClickToken: "click-tok",
		Analytics:  map[string]any{"pe": "tnt"},
	})
	return s
}

func postDelivery(t *testing.T, router http.Handler, url string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	tree, err := jsonval.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	return tree
}

func TestDeliveryServesExecuteOffer(t *testing.T) {
	router := newTestServer().Router()

	rec := postDelivery(t, router, "/rest/v1/delivery/?client=acme&sessionId=s1", map[string]any{
		"execute": map[string]any{
			"mboxes": []any{map[string]any{"index": 0, "name": "home"}},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeBody(t, rec)

	assert.Equal(t, "mboxedge35.tt.omtrdc.net", tree["edgeHost"])
	tntID := jsonval.OptString(jsonval.OptObject(tree, "id"), "tntId", "")
	assert.Contains(t, tntID, ".35_0")

	mboxes := jsonval.OptArray(jsonval.OptObject(tree, "execute"), "mboxes")
	require.Len(t, mboxes, 1)
	mbox := mboxes[0].(map[string]any)
	options := jsonval.OptArray(mbox, "options")
	require.Len(t, options, 1)
	option := options[0].(map[string]any)
	assert.Equal(t, "welcome", option["content"])
	assert.Equal(t, "html", option["type"])
	// execute options never carry prefetch event tokens
	assert.NotContains(t, option, "eventToken")

	metrics := jsonval.OptArray(mbox, "metrics")
	require.Len(t, metrics, 1)
	assert.Equal(t, "click-tok", metrics[0].(map[string]any)["eventToken"])
}

func TestDeliveryPrefetchCarriesStateAndToken(t *testing.T) {
	router := newTestServer().Router()

	rec := postDelivery(t, router, "/rest/v1/delivery/?client=acme&sessionId=s1", map[string]any{
		"prefetch": map[string]any{
			"mboxes": []any{map[string]any{"index": 0, "name": "home"}},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	mboxes := jsonval.OptArray(jsonval.OptObject(decodeBody(t, rec), "prefetch"), "mboxes")
	require.Len(t, mboxes, 1)
	mbox := mboxes[0].(map[string]any)
	assert.NotEmpty(t, mbox["state"])
	options := jsonval.OptArray(mbox, "options")
	require.Len(t, options, 1)
	assert.Equal(t, "display-tok", options[0].(map[string]any)["eventToken"])
}

func TestDeliveryUnknownMboxAnsweredEmpty(t *testing.T) {
	router := newTestServer().Router()

	rec := postDelivery(t, router, "/rest/v1/delivery/?client=acme&sessionId=s1", map[string]any{
		"execute": map[string]any{
			"mboxes": []any{map[string]any{"index": 0, "name": "missing"}},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	mboxes := jsonval.OptArray(jsonval.OptObject(decodeBody(t, rec), "execute"), "mboxes")
	require.Len(t, mboxes, 1)
	assert.NotContains(t, mboxes[0].(map[string]any), "options")
}

func TestDeliveryRejectsUnknownClientCode(t *testing.T) {
	router := newTestServer().Router()

	rec := postDelivery(t, router, "/rest/v1/delivery/?client=other&sessionId=s1", map[string]any{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "unknown client code")
}

func TestDeliveryTntIDStablePerSession(t *testing.T) {
	router := newTestServer().Router()

	first := decodeBody(t, postDelivery(t, router, "/rest/v1/delivery/?client=acme&sessionId=s1", map[string]any{}))
	second := decodeBody(t, postDelivery(t, router, "/rest/v1/delivery/?client=acme&sessionId=s1", map[string]any{}))
	other := decodeBody(t, postDelivery(t, router, "/rest/v1/delivery/?client=acme&sessionId=s2", map[string]any{}))

	firstID := jsonval.OptString(jsonval.OptObject(first, "id"), "tntId", "")
	assert.Equal(t, firstID, jsonval.OptString(jsonval.OptObject(second, "id"), "tntId", ""))
	assert.NotEqual(t, firstID, jsonval.OptString(jsonval.OptObject(other, "id"), "tntId", ""))
}

func TestOfferManagement(t *testing.T) {
	server := newTestServer()
	router := server.Router()

	body := bytes.NewReader([]byte(`{"content": {"headline": "sale"}, "type": "json"}`))
	req := httptest.NewRequest(http.MethodPut, "/v1/offers/promo", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	delivered := decodeBody(t, postDelivery(t, router, "/rest/v1/delivery/?client=acme&sessionId=s1", map[string]any{
		"execute": map[string]any{
			"mboxes": []any{map[string]any{"index": 0, "name": "promo"}},
		},
	}))
	mboxes := jsonval.OptArray(jsonval.OptObject(delivered, "execute"), "mboxes")
	require.Len(t, mboxes, 1)
	options := jsonval.OptArray(mboxes[0].(map[string]any), "options")
	require.Len(t, options, 1)
	option := options[0].(map[string]any)
	assert.Equal(t, "json", option["type"])
	assert.Equal(t, "sale", jsonval.OptObject(option, "content")["headline"])

	req = httptest.NewRequest(http.MethodDelete, "/v1/offers/promo", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	_, found := server.offer("promo")
	assert.False(t, found)
}

func TestPreviewPage(t *testing.T) {
	router := newTestServer().Router()

	req := httptest.NewRequest(http.MethodGet, "/ui/admin/acme/preview?token=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "adbinapp://confirm")

	req = httptest.NewRequest(http.MethodGet, "/ui/admin/acme/preview", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
