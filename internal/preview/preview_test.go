package preview

import (
	"net/url"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mboxkit/mboxkit/internal/infrastructure/netclient"
)

// syncNetwork completes every request inline so tests stay
// deterministic.
type syncNetwork struct {
	mu       sync.Mutex
	requests []netclient.Request
	response *netclient.Response
}

func (n *syncNetwork) ConnectAsync(req netclient.Request, callback func(*netclient.Response)) {
	n.mu.Lock()
	n.requests = append(n.requests, req)
	resp := n.response
	n.mu.Unlock()
	callback(resp)
}

type recordingUI struct {
	shown     []string
	dismissed int
}

func (u *recordingUI) ShowPreview(html string) { u.shown = append(u.shown, html) }
func (u *recordingUI) Dismiss()                { u.dismissed++ }

type recordingOpener struct {
	opened []string
}

func (o *recordingOpener) OpenURI(uri string) { o.opened = append(o.opened, uri) }

func TestEnterPreviewFetchesWebView(t *testing.T) {
	network := &syncNetwork{response: &netclient.Response{StatusCode: 200, Body: []byte("<html>preview</html>")}}
	ui := &recordingUI{}
	m := NewManager(network, ui, nil, zerolog.Nop())

	m.EnterPreview("myapp://target?at_preview_token=abc123", "acme")

	assert.Equal(t, "abc123", m.Token())
	require.Len(t, network.requests, 1)
	assert.Equal(t, "https://hal.testandtarget.omniture.com/ui/admin/acme/preview?token=abc123", network.requests[0].URL)
	require.Len(t, ui.shown, 1)
	assert.Equal(t, "<html>preview</html>", ui.shown[0])
}

func TestEnterPreviewCustomEndpoint(t *testing.T) {
	network := &syncNetwork{response: &netclient.Response{StatusCode: 200}}
	m := NewManager(network, nil, nil, zerolog.Nop())

	deepLink := "myapp://target?at_preview_token=abc&at_preview_endpoint=" + url.QueryEscape("custom.example.com")
	m.EnterPreview(deepLink, "acme")

	require.Len(t, network.requests, 1)
	assert.Contains(t, network.requests[0].URL, "https://custom.example.com/")
}

func TestEnterPreviewWithoutTokenIsIgnored(t *testing.T) {
	network := &syncNetwork{}
	m := NewManager(network, nil, nil, zerolog.Nop())

	m.EnterPreview("myapp://target?other=1", "acme")

	assert.Empty(t, m.Token())
	assert.Empty(t, network.requests)
}

func TestEnterPreviewFetchFailureKeepsToken(t *testing.T) {
	network := &syncNetwork{response: nil}
	ui := &recordingUI{}
	m := NewManager(network, ui, nil, zerolog.Nop())

	m.EnterPreview("myapp://target?at_preview_token=abc", "acme")

	assert.Equal(t, "abc", m.Token())
	assert.Empty(t, ui.shown)
}

func TestPreviewConfirm(t *testing.T) {
	m := NewManager(&syncNetwork{response: &netclient.Response{StatusCode: 200}}, &recordingUI{}, &recordingOpener{}, zerolog.Nop())
	m.EnterPreview("myapp://target?at_preview_token=abc", "acme")

	params := url.QueryEscape(`{"qaMode":{"token":"abc"}}`)
	m.PreviewConfirmedWithURL("adbinapp://confirm?at_preview_params=" + params)

	assert.Equal(t, `{"qaMode":{"token":"abc"}}`, m.Parameters())
	assert.Equal(t, "abc", m.Token())
}

func TestPreviewConfirmOpensRestartDeepLink(t *testing.T) {
	opener := &recordingOpener{}
	m := NewManager(&syncNetwork{response: &netclient.Response{StatusCode: 200}}, nil, opener, zerolog.Nop())
	m.EnterPreview("myapp://target?at_preview_token=abc", "acme")
	m.SetRestartDeepLink("myapp://home")

	m.PreviewConfirmedWithURL("adbinapp://confirm?at_preview_params=%7B%7D")

	assert.Equal(t, []string{"myapp://home"}, opener.opened)
}

func TestPreviewCancelResetsSession(t *testing.T) {
	ui := &recordingUI{}
	m := NewManager(&syncNetwork{response: &netclient.Response{StatusCode: 200}}, ui, nil, zerolog.Nop())
	m.EnterPreview("myapp://target?at_preview_token=abc", "acme")

	m.PreviewConfirmedWithURL("adbinapp://cancel")

	assert.Empty(t, m.Token())
	assert.Empty(t, m.Parameters())
	assert.Equal(t, 1, ui.dismissed)
}

func TestPreviewConfirmIgnoresForeignScheme(t *testing.T) {
	m := NewManager(&syncNetwork{response: &netclient.Response{StatusCode: 200}}, nil, nil, zerolog.Nop())
	m.EnterPreview("myapp://target?at_preview_token=abc", "acme")

	m.PreviewConfirmedWithURL("https://example.com/confirm")

	assert.Equal(t, "abc", m.Token())
}
