package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/asakaida/attrgate/internal/infrastructure/logging"
	"github.com/asakaida/attrgate/internal/services"
)

// CredentialHeader carries the Basic credential of a gateway request
const CredentialHeader = "x-is-authorization"

// Dispatcher processes one decoded gateway request
type Dispatcher interface {
	Handle(ctx context.Context, req services.Request) services.Response
}

// FaultRecorder counts fault payloads
type FaultRecorder interface {
	RecordFault(fault string)
}

// GatewayHandler adapts the gateway to HTTP
type GatewayHandler struct {
	gateway             Dispatcher
	trustForwardedProto bool
	maxBodyBytes        int64
	faults              FaultRecorder
}

// NewGatewayHandler creates a new GatewayHandler.
// faults may be nil.
func NewGatewayHandler(gateway Dispatcher, trustForwardedProto bool, maxBodyBytes int64, faults FaultRecorder) *GatewayHandler {
	return &GatewayHandler{
		gateway:             gateway,
		trustForwardedProto: trustForwardedProto,
		maxBodyBytes:        maxBodyBytes,
		faults:              faults,
	}
}

// ServeHTTP answers every request with status 200 and one JSON payload,
// except writes over an insecure channel which get 403.
// Methods other than POST get an empty body.
func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")

	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("panic", rec).Error("gateway request panicked")
			h.writePayload(w, r, http.StatusOK, services.Fault{Fault: services.FaultUnprocessable})
		}
	}()

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}

	if !h.isSecure(r) && r.Method != http.MethodGet {
		h.writePayload(w, r, http.StatusForbidden, services.ForbiddenFault{
			Fault:  services.FaultForbidden,
			Status: "403",
		})
		return
	}

	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		logger.WithError(err).Info("failed to read request body")
		h.writePayload(w, r, http.StatusOK, services.Fault{Fault: services.FaultUnprocessable})
		return
	}

	resp := h.gateway.Handle(r.Context(), services.Request{
		Authorization: r.Header.Get(CredentialHeader),
		Body:          data,
	})

	h.writePayload(w, r, http.StatusOK, resp.Payload)
}

func (h *GatewayHandler) isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return h.trustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (h *GatewayHandler) writePayload(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	if h.faults != nil {
		switch f := payload.(type) {
		case services.Fault:
			h.faults.RecordFault(f.Fault)
		case services.ForbiddenFault:
			h.faults.RecordFault(f.Fault)
		}
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("failed to write response")
	}
}
