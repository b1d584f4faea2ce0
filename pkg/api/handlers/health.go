package handlers

import (
	"net/http"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/passthrough"
)

// Listener is the view of an LDAP listener the admin endpoints report on.
type Listener interface {
	Protocol() string
	Port() int
	GetActiveConnections() int32
}

// PassThroughStatus reports the remote servers of a pass-through policy.
type PassThroughStatus interface {
	Status() []passthrough.ServerStatus
}

// MechanismLister lists the registered SASL mechanisms.
type MechanismLister interface {
	Mechanisms() []string
}

// HealthHandler serves the liveness, readiness and status endpoints.
//
// Any collaborator may be nil: a nil pass-through source means pass-through
// is disabled, and readiness fails without listeners or mechanisms.
type HealthHandler struct {
	listeners   []Listener
	mechanisms  MechanismLister
	passThrough PassThroughStatus
}

// NewHealthHandler creates the handler.
func NewHealthHandler(listeners []Listener, mechanisms MechanismLister, passThrough PassThroughStatus) *HealthHandler {
	return &HealthHandler{listeners: listeners, mechanisms: mechanisms, passThrough: passThrough}
}

// ListenerStatus describes one LDAP listener.
type ListenerStatus struct {
	Protocol          string `json:"protocol"`
	Port              int    `json:"port"`
	ActiveConnections int32  `json:"active_connections"`
}

// ReadinessResponse is the payload of GET /healthz/ready.
type ReadinessResponse struct {
	Listeners   []ListenerStatus `json:"listeners"`
	Mechanisms  []string         `json:"mechanisms"`
	PassThrough string           `json:"passthrough"`
}

// Liveness handles GET /healthz. It succeeds while the process serves HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "ldapauth",
	}))
}

// Readiness handles GET /healthz/ready.
//
// The server is ready when at least one listener and one SASL mechanism are
// configured and, with pass-through enabled, at least one remote server
// accepts binds. Returns 503 otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{
		Listeners:   make([]ListenerStatus, 0, len(h.listeners)),
		Mechanisms:  []string{},
		PassThrough: "disabled",
	}
	for _, l := range h.listeners {
		resp.Listeners = append(resp.Listeners, ListenerStatus{
			Protocol:          l.Protocol(),
			Port:              l.Port(),
			ActiveConnections: l.GetActiveConnections(),
		})
	}
	if h.mechanisms != nil {
		resp.Mechanisms = h.mechanisms.Mechanisms()
	}

	if h.passThrough != nil {
		resp.PassThrough = "unavailable"
		for _, s := range h.passThrough.Status() {
			if s.Purpose == passthrough.PurposeBind && s.Available {
				resp.PassThrough = "available"
				break
			}
		}
	}

	switch {
	case len(resp.Listeners) == 0:
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(resp, "no listeners configured"))
	case len(resp.Mechanisms) == 0:
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(resp, "no SASL mechanisms registered"))
	case resp.PassThrough == "unavailable":
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(resp, "no pass-through server available"))
	default:
		writeJSON(w, http.StatusOK, healthyResponse(resp))
	}
}

// PassThrough handles GET /status/passthrough. It lists every remote server
// with its availability, or 404 when pass-through is disabled.
func (h *HealthHandler) PassThrough(w http.ResponseWriter, r *http.Request) {
	if h.passThrough == nil {
		writeJSON(w, http.StatusNotFound, errorResponse("pass-through authentication is disabled"))
		return
	}
	servers := h.passThrough.Status()
	if servers == nil {
		servers = []passthrough.ServerStatus{}
	}
	writeJSON(w, http.StatusOK, okResponse(servers))
}
