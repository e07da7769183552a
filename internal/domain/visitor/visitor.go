// Package visitor carries the Experience Cloud visitor identifiers
// shared with the identity collaborator.
package visitor

import "github.com/mboxkit/mboxkit/internal/jsonval"

// AuthenticationState is the login state attached to a customer id.
type AuthenticationState int

const (
	AuthenticationStateUnknown AuthenticationState = iota
	AuthenticationStateAuthenticated
	AuthenticationStateLoggedOut
)

// Wire values for AuthenticationState.
const (
	stateValueUnknown       = "unknown"
	stateValueAuthenticated = "authenticated"
	stateValueLoggedOut     = "logged_out"
)

func (s AuthenticationState) String() string {
	switch s {
	case AuthenticationStateAuthenticated:
		return stateValueAuthenticated
	case AuthenticationStateLoggedOut:
		return stateValueLoggedOut
	default:
		return stateValueUnknown
	}
}

// AuthenticationStateFromString maps a wire value back to its state.
// Unrecognized values map to unknown.
func AuthenticationStateFromString(value string) AuthenticationState {
	switch value {
	case stateValueAuthenticated:
		return AuthenticationStateAuthenticated
	case stateValueLoggedOut:
		return AuthenticationStateLoggedOut
	default:
		return AuthenticationStateUnknown
	}
}

// authenticationStateFromValue accepts both wire forms seen in shared
// state: the string name and the numeric ordinal.
func authenticationStateFromValue(value any) AuthenticationState {
	switch v := value.(type) {
	case string:
		return AuthenticationStateFromString(v)
	case float64:
		return authenticationStateFromOrdinal(int(v))
	case int:
		return authenticationStateFromOrdinal(v)
	case int64:
		return authenticationStateFromOrdinal(int(v))
	default:
		return AuthenticationStateUnknown
	}
}

func authenticationStateFromOrdinal(ordinal int) AuthenticationState {
	switch ordinal {
	case 1:
		return AuthenticationStateAuthenticated
	case 2:
		return AuthenticationStateLoggedOut
	default:
		return AuthenticationStateUnknown
	}
}

// CustomerID is one customer identity from the identity collaborator's
// shared state.
type CustomerID struct {
	ID                  string
	IntegrationCode     string
	AuthenticationState AuthenticationState
}

// Shared-state keys for customer id entries.
const (
	keyID                  = "id"
	keyIntegrationCode     = "integrationCode"
	keyAuthenticationState = "authenticationState"
)

// CustomerIDsFromEventData converts the raw visitor id list from the
// identity collaborator's shared state, skipping entries without both
// an id and an integration code.
func CustomerIDsFromEventData(raw []any) []CustomerID {
	ids := make([]CustomerID, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id := jsonval.OptString(obj, keyID, "")
		code := jsonval.OptString(obj, keyIntegrationCode, "")
		if id == "" || code == "" {
			continue
		}
		ids = append(ids, CustomerID{
			ID:                  id,
			IntegrationCode:     code,
			AuthenticationState: authenticationStateFromValue(obj[keyAuthenticationState]),
		})
	}
	return ids
}
