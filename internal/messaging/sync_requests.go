package messaging

import (
	"context"
	"encoding/json"

	"labjobs/internal/errors"
	"labjobs/internal/models"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SyncRequestSubject = "jobs.sync.requested"
	syncQueueGroup     = "labjobs"
)

type CycleRunner interface {
	RunSyncCycle(ctx context.Context) (*models.CycleReport, error)
}

// SyncRequestHandler runs a sync cycle for every message on
// SyncRequestSubject and replies with the cycle report when the request
// carries a reply subject.
type SyncRequestHandler struct {
	logger *zap.Logger
	conn   *nats.Conn
	runner CycleRunner
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

type syncReply struct {
	Report *models.CycleReport `json:"report,omitempty"`
	Error  *syncError          `json:"error,omitempty"`
}

type syncError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewSyncRequestHandler(conn *nats.Conn, runner CycleRunner, logger *zap.Logger) *SyncRequestHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncRequestHandler{
		logger: logger,
		conn:   conn,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe is a no-op without a connection.
func (h *SyncRequestHandler) Subscribe() error {
	if h.conn == nil {
		return nil
	}

	sub, err := h.conn.QueueSubscribe(SyncRequestSubject, syncQueueGroup, h.handleMessage)
	if err != nil {
		return errors.Unavailable("subscribing to "+SyncRequestSubject, err)
	}
	h.sub = sub
	h.logger.Info("listening for sync requests", zap.String("subject", SyncRequestSubject))
	return nil
}

// Close cancels a running requested cycle and drops the subscription.
func (h *SyncRequestHandler) Close() error {
	h.cancel()
	if h.sub == nil {
		return nil
	}
	return h.sub.Unsubscribe()
}

func (h *SyncRequestHandler) handleMessage(msg *nats.Msg) {
	reply := h.handle(h.ctx)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		h.logger.Warn("failed to answer sync request", zap.Error(err))
	}
}

func (h *SyncRequestHandler) handle(ctx context.Context) []byte {
	ctx, span := tracer.Start(ctx, "SyncRequestHandler.handle")
	defer span.End()

	var reply syncReply
	report, err := h.runner.RunSyncCycle(ctx)
	if err != nil {
		span.RecordError(err)
		h.logger.Info("requested sync cycle not run", zap.Error(err))
		reply.Error = &syncError{Type: string(errors.TypeOf(err)), Message: err.Error()}
	} else {
		reply.Report = report
	}

	data, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("failed to encode sync reply", zap.Error(err))
		return []byte(`{"error":{"type":"INTERNAL","message":"encoding reply"}}`)
	}
	return data
}
