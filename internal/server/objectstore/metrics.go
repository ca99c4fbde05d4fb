package objectstore

import (
	"io"
	"time"
)

// Metrics receives observations about store calls. A nil Metrics passed to a
// constructor is replaced by a no-op implementation.
type Metrics interface {
	// ObserveOperation records one store call with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred by read/write operations.
	RecordBytes(operation string, bytes int64)

	// RecordMultipart counts multipart session events
	// ("created", "completed", "aborted", "rejected").
	RecordMultipart(event string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                      {}
func (noopMetrics) RecordMultipart(string)                         {}

// metricsReadCloser counts bytes read from an object body.
type metricsReadCloser struct {
	io.ReadCloser
	metrics   Metrics
	operation string
	bytesRead int64
}

func (m *metricsReadCloser) Read(p []byte) (n int, err error) {
	n, err = m.ReadCloser.Read(p)
	if n > 0 {
		m.bytesRead += int64(n)
	}
	return n, err
}

func (m *metricsReadCloser) Close() error {
	err := m.ReadCloser.Close()
	if m.bytesRead > 0 {
		m.metrics.RecordBytes(m.operation, m.bytesRead)
	}
	return err
}
