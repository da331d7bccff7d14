package storage

import "context"

// ExportSink receives finished CSV exports. Upload returns a location the
// caller can hand to the user (an object URL or a local path).
type ExportSink interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}
