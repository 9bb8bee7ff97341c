package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wazo-platform/wazo-calld-sub001/internal/adhocconf"
	"github.com/wazo-platform/wazo-calld-sub001/internal/amid"
	"github.com/wazo-platform/wazo-calld-sub001/internal/api/middleware"
	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/calls"
	"github.com/wazo-platform/wazo-calld-sub001/internal/confd"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchboard"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl/switchtest"
)

var apiSecret = []byte("api-test-secret")

type fakeDirectory struct {
	lines        map[string][]confd.Line
	switchboards map[string]confd.Switchboard
}

func (d *fakeDirectory) UserLines(_ context.Context, uuid string) ([]confd.Line, error) {
	lines, ok := d.lines[uuid]
	if !ok {
		return nil, confd.ErrNotFound
	}
	return lines, nil
}

func (d *fakeDirectory) Switchboard(_ context.Context, uuid string) (confd.Switchboard, error) {
	sb, ok := d.switchboards[uuid]
	if !ok {
		return confd.Switchboard{}, confd.ErrNotFound
	}
	return sb, nil
}

type apiFixture struct {
	fake   *switchtest.Fake
	server *Server
	token  string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	fake := switchtest.New()
	acc := switchctl.NewAccessor(fake)
	store := switchctl.NewStateStore(fake)
	pub := bus.NewRecorder()
	ami := amid.NewRecorder()
	directory := &fakeDirectory{
		lines: map[string][]confd.Line{
			"u-1": {{ID: 11, Name: "alice-line", Endpoint: "PJSIP/alice"}},
		},
		switchboards: map[string]confd.Switchboard{
			"sb-1": {UUID: "sb-1", TenantUUID: "t-1", Name: "reception"},
		},
	}

	token, err := middleware.GenerateToken(apiSecret, "u-1", "t-1")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	return &apiFixture{
		fake: fake,
		server: NewServer(Deps{
			Calls:        calls.NewService(acc, pub, ami, directory),
			Switchboards: switchboard.NewOrchestrator(acc, pub, directory, "calld"),
			Conferences:  adhocconf.NewOrchestrator(acc, store, pub, ami, "calld"),
			JWTSecret:    apiSecret,
		}),
		token: token,
	}
}

func (f *apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+f.token)
	rr := httptest.NewRecorder()
	f.server.ServeHTTP(rr, req)
	return rr
}

func errorID(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error *errorBody `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Error == nil {
		t.Fatalf("response carries no error: %s", rr.Body.String())
	}
	return resp.Error.ID
}

func TestStatusIsUnauthenticated(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rr := httptest.NewRecorder()
	f.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls", nil)
	rr := httptest.NewRecorder()
	f.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if got := errorID(t, rr); got != "authentication-required" {
		t.Errorf("error_id = %q, want %q", got, "authentication-required")
	}
}

func TestOriginateThenListOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/calls", `{"extension":"1234","context":"default"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("originate status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Data calls.Call `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to parse originate response: %v", err)
	}
	if created.Data.ID == "" {
		t.Fatal("originate returned empty call_id")
	}
	if created.Data.UserUUID != "u-1" {
		t.Errorf("user_uuid = %q, want %q", created.Data.UserUUID, "u-1")
	}

	rr = f.do(t, http.MethodGet, "/api/v1/calls", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}
	var listed struct {
		Data struct {
			Items []calls.Call `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to parse list response: %v", err)
	}
	if len(listed.Data.Items) != 1 {
		t.Fatalf("listed %d calls, want 1", len(listed.Data.Items))
	}
	if listed.Data.Items[0].ID != created.Data.ID {
		t.Errorf("listed call_id = %q, want %q", listed.Data.Items[0].ID, created.Data.ID)
	}
}

func TestOriginateRejectsMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"unknown field", `{"extension":"1234","context":"default","bogus":true}`},
		{"trailing object", `{"extension":"1234","context":"default"}{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/v1/calls", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if got := errorID(t, rr); got != "invalid-request-body" {
				t.Errorf("error_id = %q, want %q", got, "invalid-request-body")
			}
		})
	}
}

func TestGetMissingCallIs404(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/calls/ghost", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if got := errorID(t, rr); got != "no-such-call" {
		t.Errorf("error_id = %q, want %q", got, "no-such-call")
	}
}

func TestHangupForeignCallIs403(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.CreateChannel(switchctl.ChannelInfo{ID: "c-other", Name: "PJSIP/bob-1", State: "Up"},
		map[string]string{
			switchctl.VarUserUUID:   "u-2",
			switchctl.VarTenantUUID: "t-1",
		})

	rr := f.do(t, http.MethodDelete, "/api/v1/calls/c-other", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	if len(f.fake.Hangups()) != 0 {
		t.Errorf("switch saw %d hangups, want 0", len(f.fake.Hangups()))
	}
}

func TestHoldOwnCallOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.CreateChannel(switchctl.ChannelInfo{ID: "c-1", Name: "PJSIP/alice-1", State: "Up"},
		map[string]string{
			switchctl.VarUserUUID:   "u-1",
			switchctl.VarTenantUUID: "t-1",
		})

	rr := f.do(t, http.MethodPut, "/api/v1/calls/c-1/hold", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rr.Code, rr.Body.String())
	}
	if got := f.fake.Var("c-1", switchctl.VarOnHold); got != "true" {
		t.Errorf("hold flag = %q, want %q", got, "true")
	}
}

func TestSendDTMFRequiresDigits(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.CreateChannel(switchctl.ChannelInfo{ID: "c-1", Name: "PJSIP/alice-1", State: "Up"},
		map[string]string{switchctl.VarUserUUID: "u-1"})

	rr := f.do(t, http.MethodPost, "/api/v1/calls/c-1/dtmf", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if got := errorID(t, rr); got != "invalid-dtmf" {
		t.Errorf("error_id = %q, want %q", got, "invalid-dtmf")
	}
}

func TestEnqueueUnknownSwitchboardIs404(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.CreateChannel(switchctl.ChannelInfo{ID: "c-1", Name: "PJSIP/caller-1", State: "Up"}, nil)

	rr := f.do(t, http.MethodPut, "/api/v1/switchboards/sb-ghost/calls/queued/c-1", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if got := errorID(t, rr); got != "no-such-switchboard" {
		t.Errorf("error_id = %q, want %q", got, "no-such-switchboard")
	}
}

func TestSwitchboardQueueRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.CreateChannel(switchctl.ChannelInfo{
		ID:           "c-caller",
		Name:         "PJSIP/caller-1",
		State:        "Up",
		CallerName:   "Caller",
		CallerNumber: "5551234",
	}, nil)

	rr := f.do(t, http.MethodPut, "/api/v1/switchboards/sb-1/calls/queued/c-caller", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("enqueue status = %d, want 204: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, "/api/v1/switchboards/sb-1/calls/queued", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}
	var listed struct {
		Data struct {
			Items []switchboard.QueuedCall `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to parse list response: %v", err)
	}
	if len(listed.Data.Items) != 1 {
		t.Fatalf("listed %d queued calls, want 1", len(listed.Data.Items))
	}
	if listed.Data.Items[0].ID != "c-caller" {
		t.Errorf("queued call_id = %q, want %q", listed.Data.Items[0].ID, "c-caller")
	}
}

func TestAnswerQueuedRejectsBadLineID(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPut, "/api/v1/switchboards/sb-1/calls/queued/c-1/answer?line_id=zero", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if got := errorID(t, rr); got != "invalid-line-id" {
		t.Errorf("error_id = %q, want %q", got, "invalid-line-id")
	}
}

func TestCreateConferenceValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing host", `{"participant_call_ids":["c-2"]}`, http.StatusBadRequest},
		{"no participants", `{"host_call_id":"c-1"}`, http.StatusBadRequest},
		{"unknown host", `{"host_call_id":"ghost","participant_call_ids":["c-2"]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/v1/adhoc_conferences", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

func TestDeleteUnknownConferenceIs404(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodDelete, "/api/v1/adhoc_conferences/conf-ghost", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if got := errorID(t, rr); got != "no-such-adhoc-conference" {
		t.Errorf("error_id = %q, want %q", got, "no-such-adhoc-conference")
	}
}
