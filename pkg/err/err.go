package errprocess

import (
	"fmt"

	"realtime_chat_client/pkg/logger"

	"go.uber.org/zap"
)

// Wrap log err with msg, keep err in chain
func Wrap(msg string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(msg, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", msg, err)
}
