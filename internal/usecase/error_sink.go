package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"PriceAgent/internal/domain/failure"
	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	"PriceAgent/internal/domain/service"
	applogger "PriceAgent/pkg/logger"
)

// ErrorSink records caught failures in error_logs and the process log.
// It never fails: a store error is only logged.
type ErrorSink struct {
	store   domrepo.ErrorLogStore
	metrics domrepo.Metrics
	now     func() time.Time
	l       *applogger.Logger
}

// NewErrorSink creates an ErrorSink.
func NewErrorSink(store domrepo.ErrorLogStore, metrics domrepo.Metrics) *ErrorSink {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &ErrorSink{store: store, metrics: metrics, now: time.Now, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *ErrorSink) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

var _ service.ErrorReporter = (*ErrorSink)(nil)

// Report logs err under stage and appends an ErrorLogEntry.
func (s *ErrorSink) Report(ctx context.Context, stage string, err error) {
	if err == nil {
		return
	}
	s.metrics.RecordError(stage)
	s.l.Error("agent failure",
		applogger.String("context", stage),
		applogger.String("kind", string(failure.KindOf(err))),
		applogger.Error(err),
	)

	entry := models.ErrorLogEntry{
		Context:   stage,
		Message:   err.Error(),
		Stack:     fmt.Sprintf("%+v\n%s", err, debug.Stack()),
		Timestamp: s.now().UTC(),
	}
	// Written even when the caller's context is already cancelled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if werr := s.store.AppendErrorLog(wctx, entry); werr != nil {
		s.l.Warn("error log write failed", applogger.String("context", stage), applogger.Error(werr))
	}
}

// Recent returns the newest entries first.
func (s *ErrorSink) Recent(ctx context.Context, limit int) ([]models.ErrorLogEntry, error) {
	return s.store.ListErrorLogs(ctx, limit)
}
