package state

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mboxkit/mboxkit/internal/infrastructure/kvstore"
	"github.com/mboxkit/mboxkit/internal/state/mocks"
)

func newTestManager(config map[string]any) *Manager {
	m := NewManager(nil, zerolog.Nop())
	if config != nil {
		m.UpdateConfiguration(config)
	}
	return m
}

func freezeClock(m *Manager, at time.Time) {
	m.now = func() time.Time { return at }
}

func TestIsSessionExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	config := map[string]any{ConfigKeySessionTimeout: 30}

	tests := []struct {
		name      string
		timestamp int64
		expired   bool
	}{
		{"31s in the past", now.Unix() - 31, true},
		{"29s in the past", now.Unix() - 29, false},
		{"exactly the timeout", now.Unix() - 30, false},
		{"never set", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(config)
			freezeClock(m, now)
			m.sessionTimestampSeconds = tc.timestamp
			assert.Equal(t, tc.expired, m.IsSessionExpired())
		})
	}
}

func TestSessionIDLazyGeneration(t *testing.T) {
	m := newTestManager(nil)
	freezeClock(m, time.Unix(1_700_000_000, 0))

	first := m.SessionID()
	require.NotEmpty(t, first)
	assert.Equal(t, first, m.SessionID())
	assert.Equal(t, int64(1_700_000_000), m.sessionTimestampSeconds)
}

func TestSessionIDRegeneratedAfterExpiry(t *testing.T) {
	m := newTestManager(map[string]any{ConfigKeySessionTimeout: 30})
	now := time.Unix(1_700_000_000, 0)
	freezeClock(m, now)

	first := m.SessionID()
	freezeClock(m, now.Add(31*time.Second))
	second := m.SessionID()
	assert.NotEqual(t, first, second)
}

func TestSessionIDReadDoesNotRefreshTimestamp(t *testing.T) {
	m := newTestManager(map[string]any{ConfigKeySessionTimeout: 30})
	now := time.Unix(1_700_000_000, 0)
	freezeClock(m, now)

	first := m.SessionID()
	require.Equal(t, int64(1_700_000_000), m.sessionTimestampSeconds)

	// repeated reads within the timeout must not keep the session alive
	freezeClock(m, now.Add(29*time.Second))
	assert.Equal(t, first, m.SessionID())
	assert.Equal(t, int64(1_700_000_000), m.sessionTimestampSeconds)

	freezeClock(m, now.Add(58*time.Second))
	assert.True(t, m.IsSessionExpired())
	assert.NotEqual(t, first, m.SessionID())
}

func TestSetSessionIDDoesNotRefreshTimestamp(t *testing.T) {
	m := newTestManager(nil)
	freezeClock(m, time.Unix(1_700_000_000, 0))

	m.SetSessionID("restored-session")
	assert.Equal(t, "restored-session", m.sessionID)
	assert.Equal(t, int64(0), m.sessionTimestampSeconds)
}

func TestEdgeHostClearedOnExpiredSession(t *testing.T) {
	m := newTestManager(map[string]any{ConfigKeySessionTimeout: 30})
	now := time.Unix(1_700_000_000, 0)
	freezeClock(m, now)

	m.UpdateEdgeHost("mboxedge35.tt.omtrdc.net")
	m.sessionTimestampSeconds = now.Unix() - 31

	assert.Empty(t, m.EdgeHost())
}

func TestSetTntIDDerivesEdgeHost(t *testing.T) {
	m := newTestManager(nil)

	m.SetTntID("66E5C681-4F70-41A2-86AE-F1E151443B10.35_0")
	assert.Equal(t, "66E5C681-4F70-41A2-86AE-F1E151443B10.35_0", m.TntID())
	assert.Equal(t, "mboxedge35.tt.omtrdc.net", m.EdgeHost())
}

func TestSetTntIDNonNumericHint(t *testing.T) {
	m := newTestManager(nil)

	m.SetTntID("66E5C681-4F70-41A2-86AE-F1E151443B10.a1a_0")
	assert.Equal(t, "66E5C681-4F70-41A2-86AE-F1E151443B10.a1a_0", m.TntID())
	assert.Empty(t, m.EdgeHost())
}

func TestSetTntIDClearsPair(t *testing.T) {
	m := newTestManager(nil)

	m.SetTntID("66E5C681-4F70-41A2-86AE-F1E151443B10.35_0")
	m.SetTntID("")
	assert.Empty(t, m.TntID())
	assert.Empty(t, m.EdgeHost())
}

func TestSetTntIDOptOutGuard(t *testing.T) {
	m := newTestManager(nil)
	m.SetTntID("66E5C681-4F70-41A2-86AE-F1E151443B10.35_0")
	m.UpdateConfiguration(map[string]any{ConfigKeyPrivacy: PrivacyOptedOut})

	m.SetTntID("other.35_0")
	assert.Equal(t, "66E5C681-4F70-41A2-86AE-F1E151443B10.35_0", m.TntID())

	// clearing is always allowed
	m.SetTntID("")
	assert.Empty(t, m.TntID())
}

func TestSetThirdPartyIDDoesNotResetSession(t *testing.T) {
	m := newTestManager(nil)
	freezeClock(m, time.Unix(1_700_000_000, 0))

	session := m.SessionID()
	m.SetThirdPartyID("third-party")
	assert.Equal(t, session, m.SessionID())
	assert.Equal(t, "third-party", m.ThirdPartyID())
}

func TestUpdateConfigurationClientCodeChangeClearsEdgeHost(t *testing.T) {
	m := newTestManager(map[string]any{ConfigKeyClientCode: "acme"})
	m.UpdateEdgeHost("mboxedge35.tt.omtrdc.net")

	m.UpdateConfiguration(map[string]any{ConfigKeyClientCode: "other"})
	assert.Empty(t, m.EdgeHost())
}

func TestUpdateConfigurationSameClientCodeKeepsEdgeHost(t *testing.T) {
	m := newTestManager(map[string]any{ConfigKeyClientCode: "acme"})
	m.UpdateEdgeHost("mboxedge35.tt.omtrdc.net")

	m.UpdateConfiguration(map[string]any{ConfigKeyClientCode: "acme", ConfigKeyPropertyToken: "tok"})
	assert.Equal(t, "mboxedge35.tt.omtrdc.net", m.EdgeHost())
}

func TestConfigDefaults(t *testing.T) {
	m := newTestManager(map[string]any{})

	assert.Equal(t, 1800*time.Second, m.SessionTimeout())
	assert.Equal(t, 2*time.Second, m.NetworkTimeout())
	assert.Equal(t, int64(0), m.EnvironmentID())
	assert.Empty(t, m.PropertyToken())
	assert.Empty(t, m.TargetServer())
	assert.True(t, m.PreviewEnabled())
	assert.Equal(t, PrivacyUnknown, m.PrivacyStatus())
}

func TestGenerateSharedStateOmitsEmptyFields(t *testing.T) {
	m := newTestManager(nil)
	assert.Empty(t, m.GenerateSharedState())

	m.SetTntID("id.35_0")
	shared := m.GenerateSharedState()
	assert.Equal(t, map[string]any{"tntid": "id.35_0"}, shared)

	m.SetThirdPartyID("tp")
	shared = m.GenerateSharedState()
	assert.Equal(t, "tp", shared["thirdpartyid"])
}

func TestCacheDeduplication(t *testing.T) {
	m := newTestManager(nil)
	m.SaveLoaded(map[string]map[string]any{"mbox1": {"content": "loaded"}})
	m.MergePrefetched(map[string]map[string]any{"mbox1": {"content": "prefetched"}})

	m.RemoveDuplicateLoaded()
	assert.Nil(t, m.LoadedMbox("mbox1"))
	require.NotNil(t, m.PrefetchedMbox("mbox1"))
	assert.Equal(t, "prefetched", m.PrefetchedMbox("mbox1")["content"])
}

func TestCachedMboxPrefersPrefetched(t *testing.T) {
	m := newTestManager(nil)
	m.SaveLoaded(map[string]map[string]any{"mbox1": {"content": "loaded"}})
	assert.Equal(t, "loaded", m.CachedMbox("mbox1")["content"])

	m.MergePrefetched(map[string]map[string]any{"mbox1": {"content": "prefetched"}})
	assert.Equal(t, "prefetched", m.CachedMbox("mbox1")["content"])
}

func TestNotificationQueueOrder(t *testing.T) {
	m := newTestManager(nil)
	m.AddNotification(map[string]any{"id": "1"})
	m.AddNotification(map[string]any{"id": "2"})

	notifications := m.Notifications()
	require.Len(t, notifications, 2)
	assert.Equal(t, "1", notifications[0]["id"])
	assert.Equal(t, "2", notifications[1]["id"])

	m.ClearNotifications()
	assert.Empty(t, m.Notifications())
}

func TestResetIdentity(t *testing.T) {
	m := newTestManager(nil)
	freezeClock(m, time.Unix(1_700_000_000, 0))
	m.SetTntID("id.35_0")
	m.SetThirdPartyID("tp")
	m.SessionID()

	m.ResetIdentity()
	assert.Empty(t, m.TntID())
	assert.Empty(t, m.ThirdPartyID())
	assert.Empty(t, m.EdgeHost())
	assert.Equal(t, int64(0), m.sessionTimestampSeconds)
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := kvstore.NewMemory()
	m := NewManager(store, zerolog.Nop())
	freezeClock(m, time.Unix(1_700_000_000, 0))

	m.SetTntID("66E5C681-4F70-41A2-86AE-F1E151443B10.35_0")
	m.SetThirdPartyID("tp")
	session := m.SessionID()

	reloaded := NewManager(store, zerolog.Nop())
	assert.Equal(t, "66E5C681-4F70-41A2-86AE-F1E151443B10.35_0", reloaded.TntID())
	assert.Equal(t, "tp", reloaded.ThirdPartyID())
	assert.Equal(t, "mboxedge35.tt.omtrdc.net", reloaded.edgeHost)
	assert.Equal(t, session, reloaded.sessionID)
	assert.Equal(t, int64(1_700_000_000), reloaded.sessionTimestampSeconds)
}

func TestResetIdentityRemovesPersistedFields(t *testing.T) {
	store := kvstore.NewMemory()
	m := NewManager(store, zerolog.Nop())
	m.SetTntID("id.35_0")

	m.ResetIdentity()
	reloaded := NewManager(store, zerolog.Nop())
	assert.Empty(t, reloaded.TntID())
	assert.Empty(t, reloaded.edgeHost)
}

func TestPersistenceFailuresAreSwallowed(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("GetString", mock.Anything).Return("", errors.New("store unavailable"))
	store.On("GetInt64", mock.Anything).Return(int64(0), errors.New("store unavailable"))
	store.On("SetString", mock.Anything, mock.Anything).Return(errors.New("store unavailable"))
	store.On("Remove", mock.Anything).Return(errors.New("store unavailable"))

	m := NewManager(store, zerolog.Nop())
	m.SetTntID("id.35_0")

	// the in-memory value still updates even when persistence fails
	assert.Equal(t, "id.35_0", m.TntID())
	assert.Equal(t, "mboxedge35.tt.omtrdc.net", m.EdgeHost())
	store.AssertCalled(t, "SetString", "TNT_ID", "id.35_0")
}
