// Package preview implements the interactive QA session entered
// through a deep link. While a session is active its token and
// parameter blob are spliced into every outbound delivery request and
// prefetch is suppressed.
package preview

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mboxkit/mboxkit/internal/infrastructure/netclient"
)

// Deep-link query keys.
const (
	queryKeyToken    = "at_preview_token"
	queryKeyEndpoint = "at_preview_endpoint"
	queryKeyParams   = "at_preview_params"
)

const (
	defaultEndpoint  = "hal.testandtarget.omniture.com"
	previewURLFormat = "https://%s/ui/admin/%s/preview?token=%s"

	// Scheme and hosts of the confirm/cancel links the preview UI
	// navigates to.
	confirmScheme = "adbinapp"
	hostConfirm   = "confirm"
	hostCancel    = "cancel"
)

// UI presents the fetched preview experience. Implemented by the host
// application's floating-button/fullscreen surface.
type UI interface {
	ShowPreview(html string)
	Dismiss()
}

// URIOpener opens a deep link in the host application.
type URIOpener interface {
	OpenURI(uri string)
}

// Manager owns the preview session state.
type Manager struct {
	mu      sync.Mutex
	logger  zerolog.Logger
	network netclient.Service
	ui      UI
	opener  URIOpener

	token           string
	endpoint        string
	parameters      string
	restartDeepLink string
	webViewHTML     string
	fetching        bool
}

// NewManager constructs the preview manager. ui and opener may be nil
// in headless hosts.
func NewManager(network netclient.Service, ui UI, opener URIOpener, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:  logger.With().Str("component", "preview").Logger(),
		network: network,
		ui:      ui,
		opener:  opener,
	}
}

// Token returns the active preview token, empty when no session is
// active.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Parameters returns the confirmed preview parameter blob.
func (m *Manager) Parameters() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parameters
}

// SetRestartDeepLink stores the deep link reopened after a preview
// confirm.
func (m *Manager) SetRestartDeepLink(deepLink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restartDeepLink = deepLink
}

// EnterPreview starts a preview session from a deep link carrying an
// at_preview_token query parameter and fetches the preview UI from the
// endpoint named in the link. Links without a token are ignored.
func (m *Manager) EnterPreview(deepLink, clientCode string) {
	parsed, err := url.Parse(deepLink)
	if err != nil {
		m.logger.Debug().Err(err).Msg("ignoring malformed preview deep link")
		return
	}
	query := parsed.Query()
	token := query.Get(queryKeyToken)
	if token == "" {
		m.logger.Trace().Msg("deep link carries no preview token")
		return
	}

	endpoint := query.Get(queryKeyEndpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	m.mu.Lock()
	m.token = token
	m.endpoint = endpoint
	m.mu.Unlock()

	m.fetchWebView(clientCode)
}

// fetchWebView downloads the preview UI. A second fetch while one is
// in flight is dropped.
func (m *Manager) fetchWebView(clientCode string) {
	if m.network == nil {
		m.logger.Warn().Msg("no transport available for preview fetch")
		return
	}

	m.mu.Lock()
	if m.fetching {
		m.mu.Unlock()
		m.logger.Debug().Msg("preview fetch already in flight")
		return
	}
	m.fetching = true
	previewURL := fmt.Sprintf(previewURLFormat, m.endpoint, clientCode, url.QueryEscape(m.token))
	m.mu.Unlock()

	m.logger.Debug().Str("url", previewURL).Msg("fetching preview experience")
	m.network.ConnectAsync(netclient.Request{
		URL:    previewURL,
		Method: "GET",
	}, func(resp *netclient.Response) {
		m.mu.Lock()
		m.fetching = false
		if resp == nil || resp.StatusCode != 200 {
			m.mu.Unlock()
			m.logger.Warn().Msg("failed to fetch preview experience")
			return
		}
		m.webViewHTML = string(resp.Body)
		ui := m.ui
		html := m.webViewHTML
		m.mu.Unlock()

		if ui != nil {
			ui.ShowPreview(html)
		}
	})
}

// PreviewConfirmedWithURL handles the confirm/cancel link the preview
// UI navigates to. Confirm captures the selected preview parameters
// and reopens the restart deep link when one is set; cancel tears the
// session down.
func (m *Manager) PreviewConfirmedWithURL(confirmURL string) {
	parsed, err := url.Parse(confirmURL)
	if err != nil || parsed.Scheme != confirmScheme {
		m.logger.Debug().Str("url", confirmURL).Msg("ignoring non-preview confirm url")
		return
	}

	switch parsed.Host {
	case hostCancel:
		m.Reset()
	case hostConfirm:
		params := parsed.Query().Get(queryKeyParams)
		m.mu.Lock()
		if params != "" {
			m.parameters = params
		}
		restart := m.restartDeepLink
		opener := m.opener
		m.mu.Unlock()

		if m.ui != nil {
			m.ui.Dismiss()
		}
		if restart != "" && opener != nil {
			opener.OpenURI(restart)
		}
	default:
		m.logger.Debug().Str("host", parsed.Host).Msg("unknown preview confirm host")
	}
}

// Reset ends the preview session and clears all of its state.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.token = ""
	m.endpoint = ""
	m.parameters = ""
	m.webViewHTML = ""
	m.restartDeepLink = ""
	ui := m.ui
	m.mu.Unlock()

	if ui != nil {
		ui.Dismiss()
	}
}
