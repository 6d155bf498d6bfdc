// Package telemetry queues usage events and ships them to an opt-in
// collection endpoint. Everything is a no-op until Initialize is called
// with Enabled set; the queue never touches the terminal.
package telemetry

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/periscope-debug/periscope/internal/version"
)

type EventType string

const (
	EventUIEnable      EventType = "ui_enable"
	EventUIDisable     EventType = "ui_disable"
	EventUIStartFailed EventType = "ui_start_failed"
	EventFatalError    EventType = "fatal_error"
)

type Event struct {
	Type       EventType      `json:"type"`
	Timestamp  string         `json:"timestamp"`
	Properties map[string]any `json:"properties"`
	Client     ClientInfo     `json:"client"`
}

type ClientInfo struct {
	Version   string `json:"version"`
	ID        string `json:"id"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

type Config struct {
	Enabled  bool
	ClientID string
	Endpoint string
}

type Manager struct {
	config      Config
	initialized bool
	queue       []Event
	mu          sync.Mutex
	httpClient  *http.Client
}

func NewManager() *Manager {
	return &Manager{
		queue:      []Event{},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *Manager) Initialize(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return
	}
	m.config = config
	if m.config.ClientID == "" {
		m.config.ClientID = generateClientID()
	}
	m.initialized = true
}

// Track queues an event. Cheap and safe to call from any goroutine;
// dropped silently when telemetry is disabled.
func (m *Manager) Track(eventType EventType, properties map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized || !m.config.Enabled {
		return
	}

	if properties == nil {
		properties = map[string]any{}
	}

	m.queue = append(m.queue, Event{
		Type:       eventType,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Properties: properties,
		Client: ClientInfo{
			Version:   version.Version,
			ID:        m.config.ClientID,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		},
	})
}

// Pending reports how many events are queued.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	if !m.config.Enabled || len(m.queue) == 0 || m.config.Endpoint == "" {
		m.mu.Unlock()
		return nil
	}
	payload, err := json.Marshal(m.queue)
	m.queue = []Event{}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("telemetry request failed: %s", resp.Status)
	}
	return nil
}

// FlushSync flushes with a short deadline; failures are logged, never
// surfaced.
func (m *Manager) FlushSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Flush(ctx); err != nil {
		slog.Debug("Telemetry flush failed", "error", err)
	}
}

func generateClientID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "anonymous"
	}
	return hex.EncodeToString(buf)
}
