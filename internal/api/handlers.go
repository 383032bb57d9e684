package api

import (
	"encoding/json"
	"net/http"

	"github.com/ernie/trinity-link/internal/domain"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps a link error onto an HTTP status
func writeDomainError(w http.ResponseWriter, err error) {
	switch domain.Kind(err) {
	case domain.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case domain.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case domain.KindPersistence:
		writeError(w, http.StatusInternalServerError, "failed to persist links")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// LinksResponse is a page of links
type LinksResponse struct {
	Links  []domain.Link `json:"links"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// handleGetLinks returns links ordered by game identity
func (r *Router) handleGetLinks(w http.ResponseWriter, req *http.Request) {
	limit := parseLimit(req, 100, 1000)
	offset := parseOffset(req)

	all := r.links.Links()
	page := []domain.Link{}
	if offset < len(all) {
		end := min(offset+limit, len(all))
		page = all[offset:end]
	}

	writeJSON(w, http.StatusOK, LinksResponse{
		Links:  page,
		Total:  len(all),
		Limit:  limit,
		Offset: offset,
	})
}

// handleGetLinkCount returns the number of links
func (r *Router) handleGetLinkCount(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": r.links.LinkCount()})
}

// handleGetLinkByGame returns the chat identity linked to a game identity
func (r *Router) handleGetLinkByGame(w http.ResponseWriter, req *http.Request) {
	game, ok := parseIdentity(req, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid identity")
		return
	}

	chat, linked := r.links.GetLinkedChat(game)
	if !linked {
		writeError(w, http.StatusNotFound, "not linked")
		return
	}
	writeJSON(w, http.StatusOK, domain.LinkEvent{Game: game, Chat: chat})
}

// handleGetLinkByChat returns the game identity linked to a chat identity
func (r *Router) handleGetLinkByChat(w http.ResponseWriter, req *http.Request) {
	chat, ok := parseIdentity(req, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid identity")
		return
	}

	game, linked := r.links.GetLinkedGame(chat)
	if !linked {
		writeError(w, http.StatusNotFound, "not linked")
		return
	}
	writeJSON(w, http.StatusOK, domain.LinkEvent{Game: game, Chat: chat})
}

// handleIsAuthenticated reports whether an identity of either kind is linked
func (r *Router) handleIsAuthenticated(w http.ResponseWriter, req *http.Request) {
	id, ok := parseIdentity(req, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid identity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            id,
		"authenticated": r.links.IsAuthenticated(id),
	})
}

// handleDeleteLinkByGame removes a link by game identity (admin only)
func (r *Router) handleDeleteLinkByGame(w http.ResponseWriter, req *http.Request) {
	game, ok := parseIdentity(req, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid identity")
		return
	}

	if err := r.links.Deauthenticate(req.Context(), game); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "link removed"})
}

// handleDeleteLinkByChat removes a link by chat identity (admin only)
func (r *Router) handleDeleteLinkByChat(w http.ResponseWriter, req *http.Request) {
	chat, ok := parseIdentity(req, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid identity")
		return
	}

	if err := r.links.DeauthenticateChat(req.Context(), chat); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "link removed"})
}

// handleHealth returns service health
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"links":      r.links.LinkCount(),
		"ws_clients": r.wsHub.ClientCount(),
	})
}
