package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

// handleMessage answers every well-formed request with 200; success or
// failure is carried in the body.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req usecase.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, usecase.Response{Error: "invalid request body"})
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Dispatch(r.Context(), req))
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var ev domain.NavigationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid navigation event"})
		return
	}
	verdict, err := s.navigator.HandleNavigation(r.Context(), ev)
	if err != nil {
		s.logger.Warn("navigation evaluated with error, letting it through",
			zap.Int("tab", ev.TabID),
			zap.Error(err))
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleTabCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.navigator.DrainCommands())
}

func (s *Server) handleTabClosed(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid tab id"})
		return
	}
	s.navigator.TabClosed(tabID)
	w.WriteHeader(http.StatusNoContent)
}
