package signals

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/domain"
)

// Handler exposes the webhook endpoint for inbound signals.
type Handler struct {
	service *Service
	token   string
	log     zerolog.Logger
}

// NewHandler creates the webhook handler. An empty token disables intake
// entirely rather than accepting unauthenticated signals.
func NewHandler(service *Service, token string, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		token:   token,
		log:     log.With().Str("handler", "webhook").Logger(),
	}
}

type webhookResponse struct {
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// ServeHTTP handles POST /webhook.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var sig domain.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		h.respond(w, http.StatusBadRequest, webhookResponse{Outcome: domain.OutcomeError, Detail: "invalid payload"})
		return
	}

	if !h.authorized(sig.AuthToken) {
		h.log.Warn().Str("signal_id", sig.SignalID).Msg("Webhook rejected: bad token")
		h.respond(w, http.StatusUnauthorized, webhookResponse{Outcome: domain.OutcomeError, Detail: "unauthorized"})
		return
	}

	if sig.SignalID == "" {
		h.respond(w, http.StatusBadRequest, webhookResponse{Outcome: domain.OutcomeError, Detail: "signal_id is required"})
		return
	}

	outcome := h.service.ProcessSignal(r.Context(), sig)

	status := http.StatusOK
	switch outcome.Code {
	case domain.OutcomeError, domain.OutcomeFailedNoAPI:
		status = http.StatusBadGateway
	case domain.OutcomeRejectedSafety, domain.OutcomeQtyZero,
		domain.OutcomeMaxPositionsReached, domain.OutcomeAlreadyHolding:
		status = http.StatusUnprocessableEntity
	}
	h.respond(w, status, webhookResponse{Outcome: outcome.Code, Detail: outcome.Detail})
}

func (h *Handler) authorized(token string) bool {
	if h.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

func (h *Handler) respond(w http.ResponseWriter, status int, body webhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
