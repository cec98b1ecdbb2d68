package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"hvgateway/internal/apierr"
	"hvgateway/internal/store"
)

type supportHandlers struct{ d *Deps }

type supportMessageRequest struct {
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// message files a new support ticket. Tickets open in status "open";
// triage happens outside the gateway.
func (h *supportHandlers) message(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req supportMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" || req.Message == "" {
		writeError(w, r, apierr.BadRequestf("subject and message are required"))
		return
	}
	if req.Priority == "" {
		req.Priority = "normal"
	}

	t := &store.Ticket{
		ID:       uuid.NewString(),
		Subject:  req.Subject,
		Message:  req.Message,
		Priority: req.Priority,
		Status:   "open",
	}
	if err := h.d.Tickets.CreateTicket(r.Context(), t); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// history returns every filed ticket, newest first.
func (h *supportHandlers) history(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tickets, err := h.d.Tickets.ListTickets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}
