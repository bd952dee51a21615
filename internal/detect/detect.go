package detect

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"

	"dashsync/internal/clock"
	"dashsync/internal/domain"
)

// Detector computes dataset fingerprints and change signals.
// Params: clock for the hashing-failure fallback value and logger.
// Returns: change detector used by the scheduler per tick.
type Detector struct {
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a change detector.
// Params: clock and logger.
// Returns: detector instance.
func New(clk clock.Clock, logger *slog.Logger) *Detector {
	return &Detector{clock: clk, logger: logger}
}

// Fingerprint digests every cell of the table in row-then-column order.
// Params: dataset snapshot.
// Returns: hex digest, or a timestamp-derived fallback when a cell cannot be
// rendered so the caller still observes a change instead of a stalled sync.
func (d *Detector) Fingerprint(table domain.Table) string {
	digest := md5.New()
	for _, column := range table.Columns {
		digest.Write([]byte(column))
		digest.Write([]byte{0x1f})
	}
	digest.Write([]byte{0x1e})
	for _, row := range table.Rows {
		for _, cell := range row {
			rendered, err := domain.RenderCell(cell)
			if err != nil {
				fallback := fmt.Sprintf("fetch_%d", d.clock.Now().UnixNano())
				if d.logger != nil {
					d.logger.Warn("fingerprint fallback", "error", err.Error())
				}
				return fallback
			}
			digest.Write([]byte(rendered))
			digest.Write([]byte{0x1f})
		}
		digest.Write([]byte{0x1e})
	}
	return hex.EncodeToString(digest.Sum(nil))
}

// HasChanged compares the previous and new fingerprints.
// Params: stored fingerprint (empty when never synced) and freshly computed one.
// Returns: true when they differ or no previous fingerprint exists.
func (d *Detector) HasChanged(previous, next string) bool {
	if previous == "" {
		return true
	}
	return previous != next
}
