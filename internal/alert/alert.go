package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	footerIntegrity = "ledgerd integrity"
	footerControl   = "ledgerd control"
	footerSystem    = "ledgerd system monitor"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager posts alerts to a Slack incoming webhook. A disabled manager, or
// one without a webhook, accepts every alert and sends nothing.
type Manager struct {
	enabled      bool
	slackWebhook string
	httpClient   HTTPClient
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewManager(enabled bool, slackWebhook string) *Manager {
	return NewManagerWithClient(enabled, slackWebhook, &http.Client{Timeout: 10 * time.Second})
}

func NewManagerWithClient(enabled bool, slackWebhook string, client HTTPClient) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   client,
	}
}

func (m *Manager) Enabled() bool {
	return m.enabled && m.slackWebhook != ""
}

// SendEmergencyStopAlert reports that the owner halted all mutations.
func (m *Manager) SendEmergencyStopAlert(performer string, height uint64) error {
	return m.send("🛑 *EMERGENCY STOP*", slackAttachment{
		Color: "danger",
		Title: "Ledger halted",
		Fields: []slackField{
			{Title: "Performer", Value: performer, Short: true},
			{Title: "Height", Value: fmt.Sprintf("%d", height), Short: true},
		},
		Footer: footerControl,
	})
}

// SendPauseAlert reports a pause toggle in either direction.
func (m *Manager) SendPauseAlert(paused bool, performer string, height uint64) error {
	text, color, title := "▶️ *LEDGER RESUMED*", "good", "Mutations accepted again"
	if paused {
		text, color, title = "⏸️ *LEDGER PAUSED*", "warning", "Mutations rejected until resumed"
	}

	return m.send(text, slackAttachment{
		Color: color,
		Title: title,
		Fields: []slackField{
			{Title: "Performer", Value: performer, Short: true},
			{Title: "Height", Value: fmt.Sprintf("%d", height), Short: true},
		},
		Footer: footerControl,
	})
}

// SendAuditTamperAlert reports an audit entry whose hash no longer matches its
// content or its predecessor.
func (m *Manager) SendAuditTamperAlert(operationID uint64, reason string) error {
	return m.send("🚨 *AUDIT LOG TAMPERING DETECTED*", slackAttachment{
		Color: "danger",
		Title: "Hash chain broken",
		Fields: []slackField{
			{Title: "Operation", Value: fmt.Sprintf("%d", operationID), Short: true},
			{Title: "Details", Value: reason, Short: false},
		},
		Footer: footerIntegrity,
	})
}

// SendSnapshotMismatchAlert reports a snapshot marker that no longer agrees
// with the audit log.
func (m *Manager) SendSnapshotMismatchAlert(snapshotID, details string) error {
	return m.send("🚨 *SNAPSHOT INTEGRITY VIOLATION*", slackAttachment{
		Color: "danger",
		Title: "Snapshot mismatch",
		Fields: []slackField{
			{Title: "Snapshot", Value: snapshotID, Short: true},
			{Title: "Details", Value: details, Short: false},
		},
		Footer: footerIntegrity,
	})
}

func (m *Manager) SendSystemAlert(title, message, severity string) error {
	color := "danger"
	if severity == "warning" {
		color = "warning"
	} else if severity == "good" {
		color = "good"
	}

	return m.send(fmt.Sprintf("🚨 *SYSTEM ALERT: %s*", title), slackAttachment{
		Color: color,
		Title: title,
		Fields: []slackField{
			{Title: "Message", Value: message, Short: false},
		},
		Footer: footerSystem,
	})
}

func (m *Manager) send(text string, attachment slackAttachment) error {
	if !m.Enabled() {
		return nil
	}

	attachment.Ts = time.Now().Unix()
	return m.sendSlackMessage(slackMessage{
		Text:        text,
		Attachments: []slackAttachment{attachment},
	})
}

func (m *Manager) sendSlackMessage(msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.slackWebhook, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-200 status: %d", resp.StatusCode)
	}

	return nil
}
