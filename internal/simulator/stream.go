package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mboxkit/mboxkit/internal/infrastructure/sse"
)

// handleActivity streams simulator activity as server-sent events until
// the client disconnects.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if s.hub == nil {
		http.Error(w, "activity stream disabled", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := sse.NewClient(uuid.NewString(), 32)
	s.hub.Register(client)
	defer s.hub.Unregister(client.ID)
	s.logger.Debug().Str("client_id", client.ID).Msg("activity stream connected")

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-client.Messages:
			if !open {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
			flusher.Flush()
		}
	}
}

// handlePreview serves a minimal preview experience page so deep-link
// driven preview sessions have something to render.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	clientCode := chi.URLParam(r, "clientCode")
	token := r.URL.Query().Get("token")
	if clientCode != s.options.ClientCode {
		respondJSON(w, http.StatusNotFound, map[string]any{"message": "unknown client code"})
		return
	}
	if token == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"message": "missing preview token"})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, previewPage, clientCode, token)
	s.broadcast("preview_fetched", map[string]any{"client": clientCode})
}

const previewPage = `<!DOCTYPE html>
<html>
<head><title>Preview</title></head>
<body>
<h1>Preview session for %s</h1>
<p>Token: %s</p>
<p><a href="adbinapp://confirm?at_preview_params=">Confirm</a>
<a href="adbinapp://cancel">Cancel</a></p>
</body>
</html>
`
