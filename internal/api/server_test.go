package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/protocol"
	"github.com/santiagoj/homeguard/pkg/logger"
)

type fakeDirectory struct {
	snapshot   *models.DirectorySnapshot
	addErr     error
	refreshErr error
	positions  map[string]*models.Position
	removed    []string
}

func (f *fakeDirectory) Refresh(ctx context.Context) (*models.DirectorySnapshot, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.snapshot, nil
}

func (f *fakeDirectory) Snapshot() *models.DirectorySnapshot { return f.snapshot }

func (f *fakeDirectory) AddContact(ctx context.Context, code string) (*models.TrustedContact, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	return &models.TrustedContact{DisplayName: "Ana", PairingCode: code}, nil
}

func (f *fakeDirectory) RemoveContact(ctx context.Context, code string) error {
	if f.snapshot.FindContact(code) == nil {
		return models.ErrContactUnresolved
	}
	f.removed = append(f.removed, code)
	return nil
}

func (f *fakeDirectory) LatestPosition(ctx context.Context, code string) (*models.Position, error) {
	pos, ok := f.positions[code]
	if !ok {
		return nil, models.ErrContactUnresolved
	}
	return pos, nil
}

func (f *fakeDirectory) RecentPositions(ctx context.Context, code string, n int) ([]models.Position, error) {
	pos, ok := f.positions[code]
	if !ok {
		return nil, models.ErrContactUnresolved
	}
	return []models.Position{*pos}, nil
}

type fakeCurfews struct {
	jobs      []*models.CurfewJob
	cancelErr error
	armed     []models.CurfewRule
}

func (f *fakeCurfews) Arm(ctx context.Context, rule models.CurfewRule) (*models.CurfewJob, error) {
	f.armed = append(f.armed, rule)
	return &models.CurfewJob{
		ID:          1,
		PairingCode: rule.ContactPairingCode,
		DisplayName: rule.ContactDisplayName,
		Deadline:    rule.Deadline,
		Status:      models.CurfewJobPending,
	}, nil
}

func (f *fakeCurfews) List(ctx context.Context) ([]*models.CurfewJob, error) { return f.jobs, nil }

func (f *fakeCurfews) Cancel(ctx context.Context, id int64) error { return f.cancelErr }

type fakeExchange struct {
	requested []string
	reqErr    error
	result    protocol.InboundResult
	inbound   []string
}

func (f *fakeExchange) RequestLocation(ctx context.Context, contact *models.TrustedContact) error {
	if f.reqErr != nil {
		return f.reqErr
	}
	f.requested = append(f.requested, contact.PairingCode)
	return nil
}

func (f *fakeExchange) HandleInbound(ctx context.Context, sender, body string) protocol.InboundResult {
	f.inbound = append(f.inbound, body)
	return f.result
}

type fakeReporter struct {
	reported []models.Position
	err      error
}

func (f *fakeReporter) Report(ctx context.Context, pos models.Position) error {
	if f.err != nil {
		return f.err
	}
	f.reported = append(f.reported, pos)
	return nil
}

type env struct {
	directory *fakeDirectory
	curfews   *fakeCurfews
	exchange  *fakeExchange
	reporter  *fakeReporter
	server    *Server
}

func newEnv() *env {
	e := &env{
		directory: &fakeDirectory{
			snapshot: &models.DirectorySnapshot{
				OwnPairingCode: "MYCODE",
				Contacts: []models.TrustedContact{
					{DisplayName: "Ana", PairingCode: "ABC123", PhoneNumber: "+639171234567"},
				},
				FetchedAt: time.Now(),
			},
			positions: map[string]*models.Position{},
		},
		curfews:  &fakeCurfews{},
		exchange: &fakeExchange{},
		reporter: &fakeReporter{},
	}
	e.server = NewServer(
		e.directory, e.curfews, e.exchange, e.reporter,
		prometheus.NewRegistry(), logger.New("error"),
	)
	return e
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetContacts(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodGet, "/api/contacts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.DirectorySnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "MYCODE", snap.OwnPairingCode)
	require.Len(t, snap.Contacts, 1)
}

func TestAddContact(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodPost, "/api/contacts", `{"pairing_code":"xyz789"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var contact models.TrustedContact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contact))
	// Codes are opaque and reach the directory exactly as submitted.
	assert.Equal(t, "xyz789", contact.PairingCode)
}

func TestAddContactErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"self pairing", models.ErrSelfPairing, http.StatusBadRequest},
		{"already paired", models.ErrAlreadyPaired, http.StatusConflict},
		{"unknown code", models.ErrContactUnresolved, http.StatusNotFound},
		{"backend offline", models.ErrNetworkUnavailable, http.StatusServiceUnavailable},
		{"backend error", models.ErrRemoteFailure, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			e.directory.addErr = tt.err

			rec := e.do(t, http.MethodPost, "/api/contacts", `{"pairing_code":"ABC123"}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAddContactRequiresCode(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodPost, "/api/contacts", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveContact(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodDelete, "/api/contacts/ABC123", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"ABC123"}, e.directory.removed)

	rec = e.do(t, http.MethodDelete, "/api/contacts/NOPE99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshOffline(t *testing.T) {
	e := newEnv()
	e.directory.refreshErr = models.ErrNetworkUnavailable

	rec := e.do(t, http.MethodPost, "/api/directory/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLocate(t *testing.T) {
	e := newEnv()
	e.directory.positions["ABC123"] = &models.Position{
		Latitude: 14.5995, Longitude: 120.9842, CapturedAt: time.Now(),
	}

	rec := e.do(t, http.MethodGet, "/api/contacts/ABC123/locate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var pos models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, 14.5995, pos.Latitude)

	rec = e.do(t, http.MethodGet, "/api/contacts/GHOST1/locate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocateSMS(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodPost, "/api/contacts/ABC123/locate/sms", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"ABC123"}, e.exchange.requested)

	// Unpaired contacts cannot be asked for their location.
	rec = e.do(t, http.MethodPost, "/api/contacts/GHOST1/locate/sms", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryLimitValidation(t *testing.T) {
	e := newEnv()
	e.directory.positions["ABC123"] = &models.Position{Latitude: 1, Longitude: 2}

	rec := e.do(t, http.MethodGet, "/api/contacts/ABC123/history", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/contacts/ABC123/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/contacts/ABC123/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportPosition(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodPost, "/api/position", `{"latitude":14.5995,"longitude":120.9842}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, e.reporter.reported, 1)
	assert.Equal(t, 14.5995, e.reporter.reported[0].Latitude)
	assert.False(t, e.reporter.reported[0].CapturedAt.IsZero())
}

func TestReportPositionRejectsOutOfRange(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodPost, "/api/position", `{"latitude":91,"longitude":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/position", `{"latitude":0,"longitude":-181}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.reporter.reported)
}

func TestArmCurfew(t *testing.T) {
	e := newEnv()

	body := `{"contact_pairing_code":"ABC123","deadline":"2026-09-01T21:00:00+08:00","home_latitude":14.5995,"home_longitude":120.9842}`
	rec := e.do(t, http.MethodPost, "/api/curfews", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, e.curfews.armed, 1)
	rule := e.curfews.armed[0]
	assert.Equal(t, "ABC123", rule.ContactPairingCode)
	// The display name is resolved from the paired contact.
	assert.Equal(t, "Ana", rule.ContactDisplayName)
	assert.Equal(t, 14.5995, rule.HomeAnchor.Latitude)
}

func TestArmCurfewValidation(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodPost, "/api/curfews", `{"deadline":"2026-09-01T21:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/curfews", `{"contact_pairing_code":"ABC123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/curfews", `{"contact_pairing_code":"ABC123","deadline":"tonight"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Curfews only make sense for paired contacts.
	rec = e.do(t, http.MethodPost, "/api/curfews", `{"contact_pairing_code":"GHOST1","deadline":"2026-09-01T21:00:00Z"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Codes match byte for byte. "abc123" is not the paired "ABC123".
	rec = e.do(t, http.MethodPost, "/api/curfews", `{"contact_pairing_code":"abc123","deadline":"2026-09-01T21:00:00Z"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, e.curfews.armed)
}

func TestCancelCurfew(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodDelete, "/api/curfews/7", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/curfews/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInboundSMSWebhook(t *testing.T) {
	e := newEnv()
	e.exchange.result = protocol.InboundResult{Disposition: protocol.DispositionResponded}

	rec := e.do(t, http.MethodPost, "/api/sms/inbound", `{"sender":"+639171234567","body":"LOC_REQ:MYCODE"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "responded", resp["disposition"])
	assert.Equal(t, []string{"LOC_REQ:MYCODE"}, e.exchange.inbound)
}

func TestInboundSMSRequiresSender(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodPost, "/api/sms/inbound", `{"body":"LOC_REQ:MYCODE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.exchange.inbound)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
