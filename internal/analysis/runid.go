package analysis

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns "analysis_" + 12 hex chars + "_" + the UTC time as
// YYYYMMDD_HHMMSS.
func NewRunID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "analysis_" + hex[:12] + "_" + now.UTC().Format("20060102_150405")
}
