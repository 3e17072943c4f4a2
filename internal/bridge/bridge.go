package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"

	"costguard/internal/adapters/config"
	"costguard/internal/metrics"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

// Bridge delivers action status updates to the external orchestration
// agent over its JSON-RPC chat endpoint, and keeps a bounded in-memory
// log of recent bridge activity for the operator API.
type Bridge struct {
	url     string
	token   string
	client  *http.Client
	ringLog *ringLog
	clock   clockwork.Clock
	log     *logger.Logger
}

// LogEntry is a single bridge activity record
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Details   string `json:"details"`
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Message rpcMessage `json:"message"`
}

type rpcMessage struct {
	Parts []rpcPart `json:"parts"`
}

type rpcPart struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// New creates a bridge client
func New(cfg config.BridgeConfig, clock clockwork.Clock) *Bridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bridge{
		url:   cfg.URL,
		token: cfg.APIToken,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		ringLog: newRingLog(cfg.LogSize),
		clock:   clock,
		log:     logger.Get().With("component", "workflow_bridge"),
	}
}

// NotifyStatus sends a chat message about an action's status change to
// the external agent. Failures are returned but the caller is expected
// to treat them as advisory: bridge outages never roll back a transition.
func (b *Bridge) NotifyStatus(ctx context.Context, actionID, status, approver string) error {
	if b.url == "" {
		b.record("Bridge", "Skipped", "No bridge URL configured")
		return nil
	}

	text := fmt.Sprintf(
		"Cost anomaly action update.\n\nAction ID: %s\nStatus: %s\nApprover: %s\n\nPlease analyze this anomaly and suggest remediation steps.",
		actionID, status, approver,
	)

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "message/send",
		Params: rpcParams{
			Message: rpcMessage{
				Parts: []rpcPart{{Kind: "text", Text: text}},
			},
		},
	}

	b.record("Bridge", "Sending", fmt.Sprintf("Notifying agent about action %s (%s)", actionID, status))

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to marshal bridge request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build bridge request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.token)
	httpReq.Header.Set("User-Agent", "CostGuard/1.0")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		b.record("Bridge", "Failed", "Timeout or connection error: "+err.Error())
		metrics.BridgeCalls.WithLabelValues("error").Inc()
		return errors.Wrap(err, "bridge request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b.record("Bridge", "Failed", fmt.Sprintf("HTTP %d", resp.StatusCode))
		metrics.BridgeCalls.WithLabelValues("error").Inc()
		return errors.Wrapf(errors.ErrUnavailable, "bridge returned HTTP %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		b.record("Bridge", "Failed", "Malformed response: "+err.Error())
		metrics.BridgeCalls.WithLabelValues("error").Inc()
		return errors.Wrap(err, "failed to decode bridge response")
	}

	if rpcResp.Error != nil {
		b.record("Bridge", "Failed", fmt.Sprintf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
		metrics.BridgeCalls.WithLabelValues("error").Inc()
		return errors.Newf("bridge RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	metrics.BridgeCalls.WithLabelValues("success").Inc()
	b.record("Bridge", "Success", "Agent received the status update")
	if reply := extractReply(rpcResp.Result); reply != "" {
		b.record("Agent", "Reply", reply)
	}

	return nil
}

// Log returns the recent bridge activity, newest first
func (b *Bridge) Log() []LogEntry {
	return b.ringLog.entries()
}

func (b *Bridge) record(entryType, status, details string) {
	b.ringLog.add(LogEntry{
		Timestamp: b.clock.Now().UTC().Format("15:04:05"),
		Type:      entryType,
		Status:    status,
		Details:   details,
	})
	b.log.Infof("[bridge] %s: %s - %s", entryType, status, details)
}

// extractReply pulls the agent's text parts out of a message/send result.
// The result may either be the message object itself or wrap one.
func extractReply(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}

	var wrapper struct {
		Message *rpcMessage `json:"message"`
		Parts   []rpcPart   `json:"parts"`
	}
	if err := json.Unmarshal(result, &wrapper); err != nil {
		return ""
	}

	parts := wrapper.Parts
	if wrapper.Message != nil {
		parts = wrapper.Message.Parts
	}

	reply := ""
	for _, p := range parts {
		if p.Kind != "text" || p.Text == "" {
			continue
		}
		if reply != "" {
			reply += " "
		}
		reply += p.Text
	}
	return reply
}

// ringLog is a fixed-size, newest-first activity buffer
type ringLog struct {
	mu      sync.Mutex
	buf     []LogEntry
	maxSize int
}

func newRingLog(maxSize int) *ringLog {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &ringLog{
		buf:     make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

func (r *ringLog) add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append([]LogEntry{e}, r.buf...)
	if len(r.buf) > r.maxSize {
		r.buf = r.buf[:r.maxSize]
	}
}

func (r *ringLog) entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]LogEntry, len(r.buf))
	copy(out, r.buf)
	return out
}
