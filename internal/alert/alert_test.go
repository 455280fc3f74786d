package alert

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type mockHTTPClient struct {
	statusCode int
	err        error
	lastReq    *http.Request
	lastBody   []byte
	calls      int
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls++
	m.lastReq = req
	if req.Body != nil {
		m.lastBody, _ = io.ReadAll(req.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       http.NoBody,
	}, nil
}

func (m *mockHTTPClient) message(t *testing.T) slackMessage {
	t.Helper()
	var msg slackMessage
	if err := json.Unmarshal(m.lastBody, &msg); err != nil {
		t.Fatalf("failed to decode slack payload: %v", err)
	}
	return msg
}

func TestNewManager(t *testing.T) {
	m := NewManager(true, "https://hooks.slack.com/test")
	if m == nil {
		t.Fatal("expected non-nil manager")
	}
	if !m.Enabled() {
		t.Error("expected manager to be enabled")
	}
	if m.slackWebhook != "https://hooks.slack.com/test" {
		t.Error("expected slack webhook to be set")
	}
}

func TestDisabledManagerSendsNothing(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusOK}

	for _, m := range []*Manager{
		NewManagerWithClient(false, "https://hooks.slack.com/test", mock),
		NewManagerWithClient(true, "", mock),
	} {
		if err := m.SendEmergencyStopAlert("owner", 10); err != nil {
			t.Errorf("expected nil error when disabled, got: %v", err)
		}
		if err := m.SendAuditTamperAlert(3, "hash mismatch"); err != nil {
			t.Errorf("expected nil error when disabled, got: %v", err)
		}
	}

	if mock.calls != 0 {
		t.Errorf("expected no requests, got %d", mock.calls)
	}
}

func TestSendEmergencyStopAlert(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusOK}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	if err := m.SendEmergencyStopAlert("owner", 42); err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}

	if mock.lastReq.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", mock.lastReq.Method)
	}
	if ct := mock.lastReq.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}

	msg := mock.message(t)
	if !strings.Contains(msg.Text, "EMERGENCY STOP") {
		t.Errorf("unexpected text: %s", msg.Text)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Color != "danger" {
		t.Fatalf("unexpected attachments: %+v", msg.Attachments)
	}
	if msg.Attachments[0].Fields[1].Value != "42" {
		t.Errorf("expected height 42, got %s", msg.Attachments[0].Fields[1].Value)
	}
}

func TestSendPauseAlert(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusOK}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	if err := m.SendPauseAlert(true, "owner", 5); err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if got := mock.message(t).Attachments[0].Color; got != "warning" {
		t.Errorf("expected warning color for pause, got %s", got)
	}

	if err := m.SendPauseAlert(false, "owner", 6); err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if got := mock.message(t).Attachments[0].Color; got != "good" {
		t.Errorf("expected good color for resume, got %s", got)
	}
}

func TestSendAuditTamperAlert(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusOK}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	if err := m.SendAuditTamperAlert(7, "content hash mismatch"); err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}

	msg := mock.message(t)
	if msg.Attachments[0].Fields[0].Value != "7" {
		t.Errorf("expected operation 7, got %s", msg.Attachments[0].Fields[0].Value)
	}
	if msg.Attachments[0].Ts == 0 {
		t.Error("expected timestamp to be set")
	}
}

func TestSendSnapshotMismatchAlert(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusOK}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	if err := m.SendSnapshotMismatchAlert("snap-1", "audit root mismatch"); err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if got := mock.message(t).Attachments[0].Fields[0].Value; got != "snap-1" {
		t.Errorf("expected snapshot id, got %s", got)
	}
}

func TestSendSystemAlert_Severity(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusOK}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	tests := map[string]string{
		"warning":  "warning",
		"good":     "good",
		"critical": "danger",
	}
	for severity, want := range tests {
		if err := m.SendSystemAlert("Export failing", "postgres unreachable", severity); err != nil {
			t.Fatalf("expected nil error, got: %v", err)
		}
		if got := mock.message(t).Attachments[0].Color; got != want {
			t.Errorf("severity %s: expected color %s, got %s", severity, want, got)
		}
	}
}

func TestSend_Non200(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusInternalServerError}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	if err := m.SendAuditTamperAlert(1, "x"); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestSend_HTTPError(t *testing.T) {
	mock := &mockHTTPClient{err: errors.New("connection refused")}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	if err := m.SendEmergencyStopAlert("owner", 1); err == nil {
		t.Error("expected error for HTTP failure")
	}
}
