package metatile

import (
	"io"

	"github.com/jaennil/guide_helper/backend/wmscache/pkg/metrics"
)

// WriteTile encodes tile index to w. It returns false before Split, for a bad
// index or format, and when encoding fails; the metatile is never modified.
func (m *MetaTile) WriteTile(index int, format Format, w io.Writer) bool {
	tiles := m.tiles.Load()
	if tiles == nil {
		m.logger.Debug("write before split", "metatile", m.DebugString(), "index", index)
		return false
	}

	if index < 0 || index >= len(*tiles) {
		m.logger.Error("tile index out of range", "metatile", m.DebugString(), "index", index)
		return false
	}

	if err := encode(w, (*tiles)[index], format); err != nil {
		metrics.TileEncodeFailures.WithLabelValues(string(format)).Inc()
		m.logger.Error("failed to encode tile",
			"metatile", m.DebugString(),
			"index", index,
			"format", format,
			"error", err,
		)
		return false
	}

	return true
}
