package messaging

import (
	"context"
	"encoding/json"
	"time"

	"labjobs/common/telemetry"
	"labjobs/internal/config"
	"labjobs/internal/errors"
	"labjobs/internal/models"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("labjobs/messaging")

const (
	CycleCompletedSubject = "jobs.cycle.completed"
)

type Publisher interface {
	PublishCycleReport(ctx context.Context, report *models.CycleReport) error
	Close()
}

type natsPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Connect dials cfg.NATSURL. It returns a nil connection when no URL is
// configured.
func Connect(logger *zap.Logger, config *config.Config) (*nats.Conn, error) {
	if config.NATSURL == "" {
		logger.Info("NATS_URL not set, cycle events disabled")
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name("labjobs"),
		nats.Timeout(config.NATSConnTimeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, errors.Unavailable("connecting to NATS", err)
	}
	return conn, nil
}

// NewPublisher publishes on conn, or only logs reports when conn is nil.
func NewPublisher(conn *nats.Conn, logger *zap.Logger) Publisher {
	if conn == nil {
		return &logPublisher{logger: logger}
	}
	return NewNATSPublisher(conn, logger)
}

func NewNATSPublisher(conn *nats.Conn, logger *zap.Logger) Publisher {
	return &natsPublisher{
		conn:   conn,
		logger: logger,
	}
}

func (p *natsPublisher) PublishCycleReport(ctx context.Context, report *models.CycleReport) error {
	_, span := tracer.Start(ctx, "PublishCycleReport")
	defer span.End()

	data, err := json.Marshal(report)
	if err != nil {
		span.RecordError(err)
		return errors.Internal("marshaling cycle report", err)
	}

	span.SetAttributes(
		telemetry.String("nats.subject", CycleCompletedSubject),
		telemetry.Int("message.size", len(data)),
	)

	if err := p.conn.Publish(CycleCompletedSubject, data); err != nil {
		span.RecordError(err)
		p.logger.Error("failed to publish cycle report",
			zap.String("cycle_id", report.CycleID),
			zap.Error(err))
		return errors.Unavailable("publishing to NATS", err)
	}

	p.logger.Debug("published cycle report",
		zap.String("cycle_id", report.CycleID),
		zap.String("subject", CycleCompletedSubject))
	return nil
}

func (p *natsPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

type logPublisher struct {
	logger *zap.Logger
}

func (p *logPublisher) PublishCycleReport(ctx context.Context, report *models.CycleReport) error {
	p.logger.Debug("cycle report",
		zap.String("cycle_id", report.CycleID),
		zap.Int("sources", len(report.Sources)),
		zap.Int("failed", len(report.Failed())))
	return nil
}

func (p *logPublisher) Close() {}
