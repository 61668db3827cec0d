// Package export writes analysis output: the full results document, and a
// compact dashboard payload derived from the dataset and document.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cricstats/stature/internal/domain/dataset"
	"github.com/cricstats/stature/internal/domain/results"
	"github.com/cricstats/stature/pkg/logger"
)

// WriteDocument serializes the results document to path, creating parent
// directories as needed.
func WriteDocument(ctx context.Context, doc *results.Document, path string) error {
	raw, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := writeFile(path, raw); err != nil {
		return err
	}
	logger.Named("export").Info(ctx, "results written",
		logger.String("path", path),
		logger.Int("bytes", len(raw)),
	)
	return nil
}

// WriteDashboard serializes the dashboard payload to path.
func WriteDashboard(ctx context.Context, t *dataset.Table, doc *results.Document, path string) error {
	payload := BuildDashboard(t, doc)
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dashboard: %w", err)
	}
	if err := writeFile(path, raw); err != nil {
		return err
	}
	logger.Named("export").Info(ctx, "dashboard written",
		logger.String("path", path),
		logger.Int("bytes", len(raw)),
	)
	return nil
}

func writeFile(path string, raw []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
