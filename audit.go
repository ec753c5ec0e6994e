package authguard

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Audit actions recorded by the security core. The set is closed; new
// security-relevant decisions must add a constant here.
const (
	AuditActionRegister   = "register"
	AuditActionVerify     = "verify"
	AuditActionRevoke     = "revoke"
	AuditActionRevokeAll  = "revoke_all"
	AuditActionRateLimit  = "rate_limited"
	AuditActionRecovery   = "recovery_consume"
	AuditActionRegenerate = "recovery_regenerate"
	AuditActionDisable    = "mfa_disable"
	AuditActionMFASetup   = "mfa_setup"
)

// AuditEvent is an immutable security audit record. Events are append-only;
// nothing in this core mutates or deletes them.
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	DeviceID  string    `json:"device_id,omitempty"`
	Route     string    `json:"route,omitempty"`
	Success   bool      `json:"success"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// AuditSink receives emitted audit events.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink writes audit events into a buffered channel. Used in tests
// and by callers that run their own consumer.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// StoreSink appends events to the credential store's audit log.
// Append failures are surfaced to the fallback logger, never to callers.
type StoreSink struct {
	store  Store
	logger *zap.Logger
}

func NewStoreSink(store Store, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

func (s *StoreSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.AppendAuditEvent(ctx, event); err != nil {
		s.logger.Warn("audit append failed",
			zap.String("action", event.Action),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

// ZapSink mirrors audit events into structured logs.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info("audit",
		zap.String("event_id", event.ID),
		zap.String("action", event.Action),
		zap.String("user_id", event.UserID),
		zap.String("device_id", event.DeviceID),
		zap.String("route", event.Route),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	)
}

// TeeSink fans an event out to several sinks in order.
type TeeSink []AuditSink

func (t TeeSink) Emit(ctx context.Context, event AuditEvent) {
	for _, s := range t {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
