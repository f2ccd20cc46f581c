package utils

import (
	"context"
	"time"
)

const (
	// UploadTimeout bounds writing one uploaded file to object storage
	UploadTimeout = 30 * time.Second

	// ProbeTimeout bounds each readiness check
	ProbeTimeout = 2 * time.Second
)

func WithUploadTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, UploadTimeout)
}

func WithProbeTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ProbeTimeout)
}
