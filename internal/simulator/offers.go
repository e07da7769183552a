package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/go-chi/chi/v5"
)

// Offer is the content served for one mbox.
type Offer struct {
	// Content is the option payload: a string for html offers, an
	// arbitrary object for json offers.
	Content any `json:"content"`

	// Type is the option type, html when empty.
	Type string `json:"type,omitempty"`

	// EventToken is attached to prefetch options so displays can be
	// reported back.
	EventToken string `json:"eventToken,omitempty"`

	// ClickToken, when set, advertises a click metric for the mbox.
	ClickToken string `json:"clickToken,omitempty"`

	Analytics      map[string]any `json:"analytics,omitempty"`
	ResponseTokens map[string]any `json:"responseTokens,omitempty"`
}

// LoadOffers replaces the offer catalog with the JSON file at path,
// keyed by mbox name.
func (s *Server) LoadOffers(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read offer catalog: %w", err)
	}
	var catalog map[string]Offer
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return fmt.Errorf("failed to parse offer catalog %s: %w", path, err)
	}

	s.mu.Lock()
	s.offers = catalog
	s.mu.Unlock()
	s.logger.Info().Int("offers", len(catalog)).Str("path", path).Msg("offer catalog loaded")
	return nil
}

// SetOffer upserts one offer.
func (s *Server) SetOffer(mboxName string, offer Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[mboxName] = offer
}

func (s *Server) offer(mboxName string) (Offer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offer, ok := s.offers[mboxName]
	return offer, ok
}

func (s *Server) listOffers(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.offers))
	for name := range s.offers {
		names = append(names, name)
	}
	catalog := make(map[string]Offer, len(s.offers))
	for name, offer := range s.offers {
		catalog[name] = offer
	}
	s.mu.RUnlock()

	sort.Strings(names)
	respondJSON(w, http.StatusOK, map[string]any{
		"mboxes": names,
		"offers": catalog,
	})
}

func (s *Server) putOffer(w http.ResponseWriter, r *http.Request) {
	mboxName := chi.URLParam(r, "mboxName")
	var offer Offer
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"message": "offer body is not valid json"})
		return
	}
	s.SetOffer(mboxName, offer)
	s.broadcast("offer_updated", map[string]any{"mbox": mboxName})
	respondJSON(w, http.StatusOK, map[string]any{"mbox": mboxName})
}

func (s *Server) deleteOffer(w http.ResponseWriter, r *http.Request) {
	mboxName := chi.URLParam(r, "mboxName")
	s.mu.Lock()
	delete(s.offers, mboxName)
	s.mu.Unlock()
	s.broadcast("offer_deleted", map[string]any{"mbox": mboxName})
	respondJSON(w, http.StatusOK, map[string]any{"mbox": mboxName})
}
