package httpserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	"go.uber.org/zap"
)

// ZapOperationLogger forwards booking operation records to zap.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps a zap logger as a booking.OperationLogger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	return &ZapOperationLogger{logger: logger}
}

func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.ActorID.IsZero() {
		fields = append(fields, zap.String("actor_id", entry.ActorID.String()))
	}
	if !entry.SlotID.IsZero() {
		fields = append(fields, zap.String("event_id", entry.SlotID.String()))
	}
	if !entry.TargetID.IsZero() {
		fields = append(fields, zap.String("target_id", entry.TargetID.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("operation failed", fields...)
		return
	}
	operationLogger.logger.Info("operation completed", fields...)
}
