package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
)

// WebhookService is the registration surface the API exposes.
type WebhookService interface {
	Register(ctx context.Context, req webhook.CreateRequest) (*webhook.Endpoint, error)
	Unregister(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*webhook.Endpoint, error)
	List(ctx context.Context) ([]webhook.Endpoint, error)
	Update(ctx context.Context, id string, req webhook.UpdateRequest) (*webhook.Endpoint, error)
}

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// Stats is the runtime snapshot served by the health endpoint.
type Stats struct {
	Sessions          int  `json:"sessions"`
	Identities        int  `json:"identities"`
	Rooms             int  `json:"rooms"`
	PendingDeliveries int  `json:"pending_deliveries"`
	QueueConnected    bool `json:"queue_connected"`
}

// Handlers serves the admin API.
type Handlers struct {
	Webhooks  WebhookService
	Publisher Publisher
	Stats     func() Stats
	Clock     clockwork.Clock
}

func (h *Handlers) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock.Now()
}

// Health reports liveness and a runtime snapshot.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		Status string `json:"status"`
		Stats
	}{Status: "ok"}
	if h.Stats != nil {
		resp.Stats = h.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateWebhook registers an endpoint. The response is the only place the
// signing secret is ever returned.
func (h *Handlers) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[webhook.CreateRequest](w, r)
	if !ok {
		return
	}
	ep, err := h.Webhooks.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "webhook not found")
		return
	}
	writeJSON(w, http.StatusCreated, ep)
}

// ListWebhooks lists endpoints without their secrets.
func (h *Handlers) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	eps, err := h.Webhooks.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "webhook not found")
		return
	}
	out := make([]endpointView, 0, len(eps))
	for i := range eps {
		out = append(out, newEndpointView(eps[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetWebhook(w http.ResponseWriter, r *http.Request) {
	ep, err := h.Webhooks.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "webhook not found")
		return
	}
	writeJSON(w, http.StatusOK, newEndpointView(*ep))
}

func (h *Handlers) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[webhook.UpdateRequest](w, r)
	if !ok {
		return
	}
	ep, err := h.Webhooks.Update(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, r, err, "webhook not found")
		return
	}
	writeJSON(w, http.StatusOK, newEndpointView(*ep))
}

func (h *Handlers) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Webhooks.Unregister(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, r, err, "webhook not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// publishRequest is the body of POST /events.
type publishRequest struct {
	ID        string      `json:"id,omitempty"`
	Type      event.Type  `json:"type"`
	Timestamp time.Time   `json:"timestamp,omitzero"`
	Data      any         `json:"data"`
	Scope     event.Scope `json:"scope"`
}

// PublishEvent accepts an event for fan-out. Webhook deliveries continue
// after the response.
func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[publishRequest](w, r)
	if !ok {
		return
	}
	at := req.Timestamp
	if at.IsZero() {
		at = h.now()
	}
	e, err := event.New(req.Type, req.Scope, req.Data, at)
	if err != nil {
		writeDomainError(w, r, err, "event not found")
		return
	}
	if req.ID != "" {
		if _, err := uuid.Parse(req.ID); err != nil {
			writeError(w, http.StatusBadRequest, "id must be a uuid")
			return
		}
		e.ID = req.ID
	}
	if err := h.Publisher.Publish(r.Context(), e); err != nil {
		writeDomainError(w, r, err, "event not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": e.ID})
}

// endpointView is an endpoint as listed by the API: no secret, plus its
// derived state.
type endpointView struct {
	webhook.Endpoint
	State webhook.State `json:"state"`
}

func newEndpointView(ep webhook.Endpoint) endpointView {
	return endpointView{Endpoint: ep.Redacted(), State: ep.State()}
}
