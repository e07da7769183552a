// Package state owns the extension's identity, session, configuration
// snapshot, content caches, and pending notification queue. A subset of
// fields is persisted through a key-value Store; without a store the
// manager runs in-memory only.
package state

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mboxkit/mboxkit/internal/jsonval"
)

// Store is the persistence collaborator. Implementations return the
// zero value for absent keys. Persistence failures are logged and
// swallowed by the Manager, never propagated.
type Store interface {
	GetString(key string) (string, error)
	SetString(key, value string) error
	GetInt64(key string) (int64, error)
	SetInt64(key string, value int64) error
	Remove(key string) error
}

// Persisted field keys.
const (
	storeKeyTntID            = "TNT_ID"
	storeKeyThirdPartyID     = "THIRD_PARTY_ID"
	storeKeySessionID        = "SESSION_ID"
	storeKeySessionTimestamp = "SESSION_TIMESTAMP"
	storeKeyEdgeHost         = "EDGE_HOST"
)

// Configuration snapshot keys.
const (
	ConfigKeyClientCode     = "target.clientCode"
	ConfigKeyPrivacy        = "global.privacy"
	ConfigKeySessionTimeout = "target.sessionTimeout"
	ConfigKeyNetworkTimeout = "target.timeout"
	ConfigKeyEnvironmentID  = "target.environmentId"
	ConfigKeyPropertyToken  = "target.propertyToken"
	ConfigKeyServer         = "target.server"
	ConfigKeyPreviewEnabled = "target.previewEnabled"
)

// Privacy statuses carried under ConfigKeyPrivacy.
const (
	PrivacyOptedIn  = "optedin"
	PrivacyOptedOut = "optedout"
	PrivacyUnknown  = "optunknown"
)

const (
	defaultSessionTimeoutSeconds = 1800
	defaultNetworkTimeout        = 2 * time.Second

	edgeHostFormat = "mboxedge%s.tt.omtrdc.net"
)

// The routing hint sits between the uuid's trailing dot and the profile
// suffix underscore, e.g. "<uuid>.35_0". A non-numeric hint means no
// edge host can be derived.
var edgeHostHintPattern = regexp.MustCompile(`\.(\d+)_`)

// Manager is the single extension-state instance. All methods are safe
// for concurrent use; network completions re-enter from worker
// goroutines.
type Manager struct {
	mu     sync.Mutex
	logger zerolog.Logger
	store  Store
	now    func() time.Time

	tntID                   string
	thirdPartyID            string
	edgeHost                string
	sessionID               string
	sessionTimestampSeconds int64

	config map[string]any

	prefetched    map[string]map[string]any
	loaded        map[string]map[string]any
	notifications []map[string]any
}

// NewManager constructs the process-lifetime state instance, loading
// persisted identity fields. store may be nil.
func NewManager(store Store, logger zerolog.Logger) *Manager {
	m := &Manager{
		logger:     logger.With().Str("component", "state").Logger(),
		store:      store,
		now:        time.Now,
		prefetched: make(map[string]map[string]any),
		loaded:     make(map[string]map[string]any),
	}
	m.loadPersisted()
	return m
}

func (m *Manager) loadPersisted() {
	if m.store == nil {
		return
	}
	m.tntID = m.getStoredString(storeKeyTntID)
	m.thirdPartyID = m.getStoredString(storeKeyThirdPartyID)
	m.edgeHost = m.getStoredString(storeKeyEdgeHost)
	m.sessionID = m.getStoredString(storeKeySessionID)
	if ts, err := m.store.GetInt64(storeKeySessionTimestamp); err != nil {
		m.logger.Warn().Err(err).Str("key", storeKeySessionTimestamp).Msg("failed to load persisted field")
	} else {
		m.sessionTimestampSeconds = ts
	}
}

func (m *Manager) getStoredString(key string) string {
	value, err := m.store.GetString(key)
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to load persisted field")
		return ""
	}
	return value
}

func (m *Manager) persistString(key, value string) {
	if m.store == nil {
		return
	}
	var err error
	if value == "" {
		err = m.store.Remove(key)
	} else {
		err = m.store.SetString(key, value)
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to persist field")
	}
}

func (m *Manager) persistInt64(key string, value int64) {
	if m.store == nil {
		return
	}
	var err error
	if value == 0 {
		err = m.store.Remove(key)
	} else {
		err = m.store.SetInt64(key, value)
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to persist field")
	}
}

// UpdateConfiguration replaces the configuration snapshot wholesale.
// A client-code change invalidates the derived edge host.
func (m *Manager) UpdateConfiguration(config map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previousClientCode := jsonval.OptString(m.config, ConfigKeyClientCode, "")
	newClientCode := jsonval.OptString(config, ConfigKeyClientCode, "")
	if previousClientCode != newClientCode {
		m.edgeHost = ""
		m.persistString(storeKeyEdgeHost, "")
	}
	m.config = config
}

// ClientCode returns the configured client code, empty when not set.
func (m *Manager) ClientCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return jsonval.OptString(m.config, ConfigKeyClientCode, "")
}

// PrivacyStatus returns the configured privacy status, defaulting to
// unknown.
func (m *Manager) PrivacyStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.privacyStatusLocked()
}

func (m *Manager) privacyStatusLocked() string {
	return jsonval.OptString(m.config, ConfigKeyPrivacy, PrivacyUnknown)
}

// SessionTimeout returns the configured session timeout.
func (m *Manager) SessionTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.sessionTimeoutSecondsLocked()) * time.Second
}

func (m *Manager) sessionTimeoutSecondsLocked() int64 {
	return jsonval.OptInt64(m.config, ConfigKeySessionTimeout, defaultSessionTimeoutSeconds)
}

// NetworkTimeout returns the configured network timeout, used for both
// connect and read deadlines on delivery requests.
func (m *Manager) NetworkTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	seconds := jsonval.OptInt64(m.config, ConfigKeyNetworkTimeout, 0)
	if seconds <= 0 {
		return defaultNetworkTimeout
	}
	return time.Duration(seconds) * time.Second
}

// EnvironmentID returns the configured environment id, zero when unset.
func (m *Manager) EnvironmentID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return jsonval.OptInt64(m.config, ConfigKeyEnvironmentID, 0)
}

// PropertyToken returns the configured at_property token.
func (m *Manager) PropertyToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return jsonval.OptString(m.config, ConfigKeyPropertyToken, "")
}

// TargetServer returns the configured server override, empty when the
// derived edge host or default host should be used.
func (m *Manager) TargetServer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return jsonval.OptString(m.config, ConfigKeyServer, "")
}

// PreviewEnabled reports whether preview mode may be entered. Defaults
// to true.
func (m *Manager) PreviewEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return jsonval.OptBool(m.config, ConfigKeyPreviewEnabled, true)
}

// HasConfiguration reports whether a configuration snapshot has been
// received.
func (m *Manager) HasConfiguration() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config != nil
}

// IsSessionExpired reports whether the session has outlived the
// configured timeout. A never-set timestamp is not expired.
func (m *Manager) IsSessionExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isSessionExpiredLocked()
}

func (m *Manager) isSessionExpiredLocked() bool {
	if m.sessionTimestampSeconds <= 0 {
		return false
	}
	return m.now().Unix()-m.sessionTimestampSeconds > m.sessionTimeoutSecondsLocked()
}

// SessionID returns the current session id, generating and persisting a
// fresh one when none exists or the session has expired. The session
// timestamp is refreshed only when a new id is generated; otherwise it
// moves only on successful round-trips, so reads cannot keep an idle
// session alive.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" || m.isSessionExpiredLocked() {
		m.sessionID = uuid.NewString()
		m.persistString(storeKeySessionID, m.sessionID)
		m.updateSessionTimestampLocked(false)
	}
	return m.sessionID
}

// SetSessionID overrides the session id, e.g. when restoring a session
// from a raw request. Blocked while opted out unless clearing.
func (m *Manager) SetSessionID(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.privacyStatusLocked() == PrivacyOptedOut && sessionID != "" {
		m.logger.Debug().Msg("ignoring session id update while opted out")
		return
	}
	if m.sessionID != sessionID {
		m.sessionID = sessionID
		m.persistString(storeKeySessionID, sessionID)
	}
}

// UpdateSessionTimestamp refreshes the session timestamp to now, or
// clears it when reset is true.
func (m *Manager) UpdateSessionTimestamp(reset bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateSessionTimestampLocked(reset)
}

func (m *Manager) updateSessionTimestampLocked(reset bool) {
	if reset {
		m.sessionTimestampSeconds = 0
	} else {
		m.sessionTimestampSeconds = m.now().Unix()
	}
	m.persistInt64(storeKeySessionTimestamp, m.sessionTimestampSeconds)
}

// EdgeHost returns the derived edge host, clearing it first when the
// session has expired.
func (m *Manager) EdgeHost() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isSessionExpiredLocked() && m.edgeHost != "" {
		m.logger.Debug().Msg("session expired, clearing edge host")
		m.edgeHost = ""
		m.persistString(storeKeyEdgeHost, "")
	}
	return m.edgeHost
}

// UpdateEdgeHost replaces the edge host, short-circuiting when the
// value is unchanged.
func (m *Manager) UpdateEdgeHost(edgeHost string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.edgeHost == edgeHost {
		m.logger.Debug().Msg("edge host unchanged")
		return
	}
	m.edgeHost = edgeHost
	m.persistString(storeKeyEdgeHost, edgeHost)
}

// TntID returns the service-issued visitor id.
func (m *Manager) TntID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tntID
}

// SetTntID stores a new tnt id and the edge host derived from it as an
// atomic pair. Blocked while opted out unless clearing; a no-op when
// the value is unchanged.
func (m *Manager) SetTntID(tntID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.privacyStatusLocked() == PrivacyOptedOut && tntID != "" {
		m.logger.Debug().Msg("ignoring tnt id update while opted out")
		return
	}
	if m.tntID == tntID {
		return
	}

	edgeHost := deriveEdgeHost(tntID)
	m.logger.Debug().Str("tnt_id", tntID).Str("edge_host", edgeHost).Msg("updating tnt id")

	m.edgeHost = edgeHost
	m.persistString(storeKeyEdgeHost, edgeHost)
	m.tntID = tntID
	m.persistString(storeKeyTntID, tntID)
}

// deriveEdgeHost extracts the numeric location hint from a tnt id of
// the shape "<uuid>.<hint>_<n>". Returns empty when the hint is absent
// or non-numeric.
func deriveEdgeHost(tntID string) string {
	if tntID == "" {
		return ""
	}
	match := edgeHostHintPattern.FindStringSubmatch(tntID)
	if match == nil {
		return ""
	}
	return fmt.Sprintf(edgeHostFormat, match[1])
}

// ThirdPartyID returns the caller-provided third-party id.
func (m *Manager) ThirdPartyID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thirdPartyID
}

// SetThirdPartyID stores a new third-party id. Blocked while opted out
// unless clearing. Changing it does not reset the session id.
func (m *Manager) SetThirdPartyID(thirdPartyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.privacyStatusLocked() == PrivacyOptedOut && thirdPartyID != "" {
		m.logger.Debug().Msg("ignoring third-party id update while opted out")
		return
	}
	if m.thirdPartyID == thirdPartyID {
		return
	}
	m.thirdPartyID = thirdPartyID
	m.persistString(storeKeyThirdPartyID, thirdPartyID)
}

// ResetSession clears the session id and timestamp so the next request
// starts a fresh session.
func (m *Manager) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessionID = ""
	m.persistString(storeKeySessionID, "")
	m.updateSessionTimestampLocked(true)
}

// ResetIdentity clears tnt id, third-party id, edge host, and the
// session, as required by an experience reset or an opt-out.
func (m *Manager) ResetIdentity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tntID = ""
	m.persistString(storeKeyTntID, "")
	m.thirdPartyID = ""
	m.persistString(storeKeyThirdPartyID, "")
	m.edgeHost = ""
	m.persistString(storeKeyEdgeHost, "")
	m.sessionID = ""
	m.persistString(storeKeySessionID, "")
	m.updateSessionTimestampLocked(true)
}

// GenerateSharedState emits the identity fields published to sibling
// subsystems, omitting absent values.
func (m *Manager) GenerateSharedState() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	shared := make(map[string]any)
	if m.tntID != "" {
		shared["tntid"] = m.tntID
	}
	if m.thirdPartyID != "" {
		shared["thirdpartyid"] = m.thirdPartyID
	}
	return shared
}

// MergePrefetched adds entries to the prefetched cache.
func (m *Manager) MergePrefetched(entries map[string]map[string]any) {
	if len(entries) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, response := range entries {
		m.prefetched[name] = response
	}
}

// SaveLoaded adds entries to the loaded cache, used for later
// display/click notification builds.
func (m *Manager) SaveLoaded(entries map[string]map[string]any) {
	if len(entries) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, response := range entries {
		m.loaded[name] = response
	}
}

// RemoveDuplicateLoaded drops loaded-cache entries shadowed by the
// prefetched cache. Prefetch takes priority.
func (m *Manager) RemoveDuplicateLoaded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.prefetched {
		delete(m.loaded, name)
	}
}

// PrefetchedMbox returns the cached prefetch response for name, nil
// when absent.
func (m *Manager) PrefetchedMbox(name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefetched[name]
}

// LoadedMbox returns the cached loaded response for name, nil when
// absent.
func (m *Manager) LoadedMbox(name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[name]
}

// CachedMbox returns the cached response for name, preferring the
// prefetched cache.
func (m *Manager) CachedMbox(name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if response, ok := m.prefetched[name]; ok {
		return response
	}
	return m.loaded[name]
}

// ClearCaches drops both content caches.
func (m *Manager) ClearCaches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefetched = make(map[string]map[string]any)
	m.loaded = make(map[string]map[string]any)
}

// AddNotification appends a pending notification. Insertion order is
// preserved for batching.
func (m *Manager) AddNotification(notification map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notification)
}

// Notifications returns a copy of the pending notification queue.
func (m *Manager) Notifications() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// ClearNotifications empties the pending notification queue. Called
// only after a successful round-trip that carried them.
func (m *Manager) ClearNotifications() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = nil
}
