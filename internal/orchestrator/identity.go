package orchestrator

import (
	"github.com/mboxkit/mboxkit/internal/domain/event"
	"github.com/mboxkit/mboxkit/internal/jsonval"
	"github.com/mboxkit/mboxkit/internal/state"
)

// HandleResetExperience clears identity, session, caches, and pending
// notifications, or only the content caches for a clear-cache request.
func (e *Extension) HandleResetExperience(ev event.Event) {
	if jsonval.OptBool(ev.Data, event.KeyResetExperience, false) {
		e.logger.Debug().Msg("resetting experience")
		e.state.ResetIdentity()
		e.state.ClearCaches()
		e.state.ClearNotifications()
		e.host.CreateSharedState(e.state.GenerateSharedState(), &ev)
		e.host.Dispatch(event.NewResponse(event.NameResetCompletion, event.TypeTarget, event.SourceResponseContent, nil, ev))
		return
	}
	if jsonval.OptBool(ev.Data, event.KeyClearPrefetchCache, false) {
		e.logger.Debug().Msg("clearing content caches")
		e.state.ClearCaches()
	}
}

// HandleIdentityRequest answers an identity read, or applies identity
// writes when the event carries any identity field.
func (e *Extension) HandleIdentityRequest(ev event.Event) {
	if ev.Data != nil {
		_, hasThirdParty := ev.Data[event.KeyThirdPartyID]
		_, hasTnt := ev.Data[event.KeyTntID]
		_, hasSession := ev.Data[event.KeySessionID]
		if hasThirdParty || hasTnt || hasSession {
			if hasThirdParty {
				e.state.SetThirdPartyID(jsonval.OptString(ev.Data, event.KeyThirdPartyID, ""))
			}
			if hasTnt {
				e.state.SetTntID(jsonval.OptString(ev.Data, event.KeyTntID, ""))
			}
			if hasSession {
				e.state.SetSessionID(jsonval.OptString(ev.Data, event.KeySessionID, ""))
			}
			e.host.CreateSharedState(e.state.GenerateSharedState(), &ev)
			return
		}
	}

	e.host.Dispatch(event.NewResponse(event.NameIdentityResponse, event.TypeTarget, event.SourceResponseIdentity, map[string]any{
		event.KeyTntID:        e.state.TntID(),
		event.KeyThirdPartyID: e.state.ThirdPartyID(),
		event.KeySessionID:    e.state.SessionID(),
	}, ev))
}

// HandleConfigurationResponse replaces the configuration snapshot. An
// opt-out tears down identity, caches, notifications, and any preview
// session.
func (e *Extension) HandleConfigurationResponse(ev event.Event) {
	e.state.UpdateConfiguration(ev.Data)

	if e.state.PrivacyStatus() == state.PrivacyOptedOut {
		e.logger.Debug().Msg("privacy opted out, clearing identity and caches")
		e.state.ResetIdentity()
		e.state.ClearCaches()
		e.state.ClearNotifications()
		if e.preview != nil {
			e.preview.Reset()
		}
		e.host.CreateSharedState(e.state.GenerateSharedState(), &ev)
	}
}

// HandlePreviewDeepLink enters preview mode from a deep link when
// preview is enabled and the extension is configured.
func (e *Extension) HandlePreviewDeepLink(ev event.Event) {
	deepLink := jsonval.OptString(ev.Data, event.KeyDeepLink, "")
	if deepLink == "" {
		return
	}
	clientCode := e.state.ClientCode()
	if clientCode == "" {
		e.logger.Debug().Msg("ignoring preview deep link, client code is not configured")
		return
	}
	if !e.state.PreviewEnabled() {
		e.logger.Debug().Msg("ignoring preview deep link, preview is disabled")
		return
	}
	if e.preview == nil {
		e.logger.Warn().Msg("ignoring preview deep link, preview manager is not available")
		return
	}
	e.preview.EnterPreview(deepLink, clientCode)
}

// SetPreviewRestartDeepLink stores the deep link reopened after a
// preview confirm.
func (e *Extension) SetPreviewRestartDeepLink(deepLink string) {
	if e.preview == nil {
		return
	}
	e.preview.SetRestartDeepLink(deepLink)
}

// PreviewConfirmedWithURL forwards a preview confirm/cancel link from
// the preview UI.
func (e *Extension) PreviewConfirmedWithURL(confirmURL string) {
	if e.preview == nil {
		return
	}
	e.preview.PreviewConfirmedWithURL(confirmURL)
}

// InPreviewMode reports whether a preview session is active.
func (e *Extension) InPreviewMode() bool {
	return e.preview != nil && e.preview.Token() != ""
}
