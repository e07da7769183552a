// Package simulator serves a local stand-in for the delivery API so
// the extension can be exercised without a provisioned client code.
package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mboxkit/mboxkit/internal/infrastructure/sse"
	"github.com/mboxkit/mboxkit/internal/jsonval"
	"github.com/mboxkit/mboxkit/internal/state"
	"github.com/mboxkit/mboxkit/internal/wire"
)

// Options configures the simulator server.
type Options struct {
	ClientCode string

	// EdgeHostHint is the cluster hint baked into issued tnt ids and
	// the derived edge host.
	EdgeHostHint string

	// ResponseDelay is slept before answering each delivery request.
	ResponseDelay time.Duration

	LogRequestBodies bool
}

// Server answers delivery, preview, and offer-management requests.
type Server struct {
	logger  zerolog.Logger
	options Options
	store   state.Store
	hub     *sse.Hub

	mu     sync.RWMutex
	offers map[string]Offer
}

// NewServer wires the simulator. store persists session identity across
// restarts; hub may be nil when no activity stream is needed.
func NewServer(options Options, store state.Store, hub *sse.Hub, logger zerolog.Logger) *Server {
	return &Server{
		logger:  logger.With().Str("service", "deliverysim").Logger(),
		options: options,
		store:   store,
		hub:     hub,
		offers:  make(map[string]Offer),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/rest/v1/delivery/", s.handleDelivery)
	r.Get("/ui/admin/{clientCode}/preview", s.handlePreview)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/activity", s.handleActivity)
		r.Route("/offers", func(r chi.Router) {
			r.Get("/", s.listOffers)
			r.Put("/{mboxName}", s.putOffer)
			r.Delete("/{mboxName}", s.deleteOffer)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	return r
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	clientCode := r.URL.Query().Get("client")
	sessionID := r.URL.Query().Get("sessionId")

	if s.options.ResponseDelay > 0 {
		time.Sleep(s.options.ResponseDelay)
	}

	if clientCode != s.options.ClientCode {
		s.logger.Warn().Str("client", clientCode).Msg("rejecting unknown client code")
		respondJSON(w, http.StatusBadRequest, map[string]any{
			wire.KeyMessage: fmt.Sprintf("unknown client code %q", clientCode),
		})
		return
	}

	var tree map[string]any
	if err := json.NewDecoder(r.Body).Decode(&tree); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			wire.KeyMessage: "request body is not valid json",
		})
		return
	}
	if s.options.LogRequestBodies {
		s.logger.Debug().Str("session_id", sessionID).Str("body", jsonval.Stringify(tree)).Msg("delivery request")
	}

	tntID := s.tntIDForSession(sessionID)
	payload := map[string]any{
		"requestId":      uuid.NewString(),
		"client":         clientCode,
		wire.KeyID:       map[string]any{wire.KeyTntID: tntID},
		wire.KeyEdgeHost: fmt.Sprintf("mboxedge%s.tt.omtrdc.net", s.options.EdgeHostHint),
	}

	executeCount := s.fillMboxes(payload, tree, wire.KeyExecute)
	prefetchCount := s.fillMboxes(payload, tree, wire.KeyPrefetch)
	notificationCount := len(jsonval.OptArray(tree, wire.KeyNotifications))

	s.broadcast("delivery", map[string]any{
		"client":        clientCode,
		"sessionId":     sessionID,
		"tntId":         tntID,
		"execute":       executeCount,
		"prefetch":      prefetchCount,
		"notifications": notificationCount,
	})
	respondJSON(w, http.StatusOK, payload)
}

// fillMboxes answers the requested mboxes under key with the catalog's
// offers and reports how many were requested.
func (s *Server) fillMboxes(payload, tree map[string]any, key string) int {
	requested := jsonval.OptArray(jsonval.OptObject(tree, key), wire.KeyMboxes)
	if len(requested) == 0 {
		return 0
	}

	prefetch := key == wire.KeyPrefetch
	answered := make([]any, 0, len(requested))
	for _, entry := range requested {
		request, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name := jsonval.OptString(request, wire.KeyMboxName, "")
		if name == "" {
			continue
		}
		node := map[string]any{
			wire.KeyMboxIndex: jsonval.OptInt64(request, wire.KeyMboxIndex, 0),
			wire.KeyMboxName:  name,
		}
		if offer, found := s.offer(name); found {
			attachOffer(node, offer, prefetch)
		}
		answered = append(answered, node)
	}

	payload[key] = map[string]any{wire.KeyMboxes: answered}
	return len(answered)
}

// attachOffer renders the offer as delivery-API option, metric, and
// analytics nodes. Prefetch responses additionally carry the opaque
// state and per-option event tokens the client echoes back in display
// notifications.
func attachOffer(node map[string]any, offer Offer, prefetch bool) {
	optionType := offer.Type
	if optionType == "" {
		optionType = wire.OptionTypeHTML
	}
	option := map[string]any{
		wire.KeyOptionType: optionType,
		wire.KeyContent:    offer.Content,
	}
	if len(offer.ResponseTokens) > 0 {
		option[wire.KeyResponseTokens] = offer.ResponseTokens
	}
	if prefetch {
		node[wire.KeyMboxState] = uuid.NewString()
		if offer.EventToken != "" {
			option[wire.KeyEventToken] = offer.EventToken
		}
	}
	node[wire.KeyOptions] = []any{option}

	if offer.ClickToken != "" {
		node[wire.KeyMetrics] = []any{map[string]any{
			wire.KeyMetricType: wire.MetricTypeClick,
			wire.KeyEventToken: offer.ClickToken,
		}}
	}
	if len(offer.Analytics) > 0 {
		node[wire.KeyAnalyticsNode] = map[string]any{wire.KeyPayload: offer.Analytics}
	}
}

// tntIDForSession issues a stable tnt id per session, persisting it so
// a restarted simulator keeps recognizing returning sessions.
func (s *Server) tntIDForSession(sessionID string) string {
	if sessionID == "" {
		return fmt.Sprintf("%s.%s_0", uuid.NewString(), s.options.EdgeHostHint)
	}
	key := "tnt:" + sessionID
	if s.store != nil {
		if existing, err := s.store.GetString(key); err == nil && existing != "" {
			return existing
		}
	}
	tntID := fmt.Sprintf("%s.%s_0", uuid.NewString(), s.options.EdgeHostHint)
	if s.store != nil {
		if err := s.store.SetString(key, tntID); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist session tnt id")
		}
	}
	return tntID
}

func (s *Server) broadcast(kind string, data map[string]any) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(&sse.Event{Kind: kind, Data: data})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
