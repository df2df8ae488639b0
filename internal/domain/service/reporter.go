package service

import "context"

// ErrorReporter records a caught failure under a stage label.
type ErrorReporter interface {
	Report(ctx context.Context, stage string, err error)
}

// NopReporter discards reports.
type NopReporter struct{}

func (NopReporter) Report(context.Context, string, error) {}
