package websocket

import (
	"dealroom/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnLogger provides structured logging for connection events. Every entry
// carries the participant and connection ids.
type ConnLogger struct {
	logger *zap.Logger
}

func NewConnLogger(base *logger.Logger) *ConnLogger {
	if base == nil {
		return &ConnLogger{logger: zap.L().With(zap.String("component", "websocket"))}
	}
	return &ConnLogger{logger: base.Named("websocket").Logger}
}

func (l *ConnLogger) fields(event string, participantID uuid.UUID, connectionID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("participant_id", participantID.String()),
		zap.String("connection_id", connectionID),
	}, extra...)
}

func (l *ConnLogger) Info(event string, participantID uuid.UUID, connectionID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.fields(event, participantID, connectionID, fields)...)
}

func (l *ConnLogger) Debug(event string, participantID uuid.UUID, connectionID string, fields ...zap.Field) {
	l.logger.Debug("websocket_event", l.fields(event, participantID, connectionID, fields)...)
}

func (l *ConnLogger) Warn(event string, participantID uuid.UUID, connectionID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.fields(event, participantID, connectionID, fields)...)
}

func (l *ConnLogger) Error(event string, participantID uuid.UUID, connectionID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.fields(event, participantID, connectionID, append(fields, zap.Error(err)))...)
}
