package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/passthrough"
)

type fakeListener struct {
	protocol string
	port     int
	active   int32
}

func (l fakeListener) Protocol() string            { return l.protocol }
func (l fakeListener) Port() int                   { return l.port }
func (l fakeListener) GetActiveConnections() int32 { return l.active }

type fakeMechanisms []string

func (m fakeMechanisms) Mechanisms() []string { return m }

type fakePassThrough []passthrough.ServerStatus

func (p fakePassThrough) Status() []passthrough.ServerStatus { return p }

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil, nil, nil)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decode(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}
	if data["service"] != "ldapauth" {
		t.Errorf("Expected service 'ldapauth', got '%v'", data["service"])
	}
}

func TestReadiness(t *testing.T) {
	ldapListener := []Listener{fakeListener{protocol: "LDAP", port: 389, active: 3}}
	mechs := fakeMechanisms{"PLAIN"}

	tests := []struct {
		name        string
		listeners   []Listener
		mechanisms  MechanismLister
		passThrough PassThroughStatus
		wantCode    int
		wantError   string
	}{
		{
			name:       "no listeners",
			mechanisms: mechs,
			wantCode:   http.StatusServiceUnavailable,
			wantError:  "no listeners configured",
		},
		{
			name:      "no mechanisms",
			listeners: ldapListener,
			wantCode:  http.StatusServiceUnavailable,
			wantError: "no SASL mechanisms registered",
		},
		{
			name:       "pass-through disabled",
			listeners:  ldapListener,
			mechanisms: mechs,
			wantCode:   http.StatusOK,
		},
		{
			name:       "pass-through servers down",
			listeners:  ldapListener,
			mechanisms: mechs,
			passThrough: fakePassThrough{
				{Server: "ldap1:389", Purpose: passthrough.PurposeBind, Available: false},
				{Server: "ldap2:389", Purpose: passthrough.PurposeSearch, Available: true},
			},
			wantCode:  http.StatusServiceUnavailable,
			wantError: "no pass-through server available",
		},
		{
			name:       "pass-through server up",
			listeners:  ldapListener,
			mechanisms: mechs,
			passThrough: fakePassThrough{
				{Server: "ldap1:389", Purpose: passthrough.PurposeBind, Available: false},
				{Server: "ldap2:389", Purpose: passthrough.PurposeBind, Available: true},
			},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.listeners, tt.mechanisms, tt.passThrough)
			req := httptest.NewRequest("GET", "/healthz/ready", nil)
			w := httptest.NewRecorder()

			handler.Readiness(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			resp := decode(t, w)
			if resp.Error != tt.wantError {
				t.Errorf("Expected error '%s', got '%s'", tt.wantError, resp.Error)
			}
		})
	}
}

func TestReadiness_ReportsListeners(t *testing.T) {
	handler := NewHealthHandler(
		[]Listener{fakeListener{protocol: "LDAPS", port: 636, active: 7}},
		fakeMechanisms{"EXTERNAL", "PLAIN"},
		nil,
	)
	req := httptest.NewRequest("GET", "/healthz/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	var resp struct {
		Data ReadinessResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(resp.Data.Listeners) != 1 {
		t.Fatalf("Expected 1 listener, got %d", len(resp.Data.Listeners))
	}
	l := resp.Data.Listeners[0]
	if l.Protocol != "LDAPS" || l.Port != 636 || l.ActiveConnections != 7 {
		t.Errorf("Unexpected listener status %+v", l)
	}
	if len(resp.Data.Mechanisms) != 2 {
		t.Errorf("Expected 2 mechanisms, got %v", resp.Data.Mechanisms)
	}
	if resp.Data.PassThrough != "disabled" {
		t.Errorf("Expected pass-through 'disabled', got '%s'", resp.Data.PassThrough)
	}
}

func TestPassThrough_Disabled_Returns404(t *testing.T) {
	handler := NewHealthHandler(nil, nil, nil)
	req := httptest.NewRequest("GET", "/status/passthrough", nil)
	w := httptest.NewRecorder()

	handler.PassThrough(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if resp := decode(t, w); resp.Status != "error" {
		t.Errorf("Expected status 'error', got '%s'", resp.Status)
	}
}

func TestPassThrough_ListsServers(t *testing.T) {
	handler := NewHealthHandler(nil, nil, fakePassThrough{
		{Server: "ldap1:389", Tier: passthrough.TierPrimary, Purpose: passthrough.PurposeBind, Available: true},
		{Server: "ldap2:389", Tier: passthrough.TierSecondary, Purpose: passthrough.PurposeBind, LastError: "connection refused"},
	})
	req := httptest.NewRequest("GET", "/status/passthrough", nil)
	w := httptest.NewRecorder()

	handler.PassThrough(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp struct {
		Status string                     `json:"status"`
		Data   []passthrough.ServerStatus `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", resp.Status)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("Expected 2 servers, got %d", len(resp.Data))
	}
	if resp.Data[1].LastError != "connection refused" || resp.Data[1].Available {
		t.Errorf("Unexpected secondary status %+v", resp.Data[1])
	}
}
