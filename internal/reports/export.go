package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"follower-archive/internal/models"
	"follower-archive/internal/timewindow"
)

// csvHeader is the fixed export column order.
var csvHeader = []string{"detected_at", "target_account", "list_type", "change_type", "username", "full_name"}

// ExportChangesToCSV writes the window's change events to path, creating
// parent directories as needed. Returns the number of rows written.
func (s *Service) ExportChangesToCSV(ctx context.Context, path string, w timewindow.Window, account string) (int, error) {
	events, err := s.RecentChanges(ctx, w, account, 0)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create export dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := writeChangesCSV(f, events); err != nil {
		return 0, err
	}

	s.log.Info("csv_exported", "path", path, "rows", len(events))
	return len(events), nil
}

// ChangesCSV renders the window's change events as a CSV document, for
// callers that ship the export somewhere other than the local filesystem.
func (s *Service) ChangesCSV(ctx context.Context, w timewindow.Window, account string) ([]byte, int, error) {
	events, err := s.RecentChanges(ctx, w, account, 0)
	if err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	if err := writeChangesCSV(&buf, events); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(events), nil
}

func writeChangesCSV(out io.Writer, events []models.ChangeEvent) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ev := range events {
		row := []string{
			ev.DetectedAt.UTC().Format(time.RFC3339),
			ev.TargetAccount,
			string(ev.ListType),
			string(ev.ChangeType),
			ev.User.Username,
			ev.User.FullName,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
