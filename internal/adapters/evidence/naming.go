package evidence

import (
	"fmt"
	"path"
	"strings"

	"github.com/mikey/image-mod-relay/internal/core"
)

const (
	fallbackLabel = "violation"

	// maxNameAttempts bounds the numeric suffixes tried on name collisions
	maxNameAttempts = 1000
)

// FileName returns {YYYYMMDD_HHMMSS}_group{G}_user{U}_{labels}.jpg
func FileName(record *core.EvidenceRecord) string {
	labels := fallbackLabel
	if len(record.Labels) > 0 {
		labels = strings.Join(record.Labels, "_")
	}
	return fmt.Sprintf("%s_group%s_user%s_%s.jpg",
		record.CapturedAt.Format("20060102_150405"),
		sanitize(record.GroupID),
		sanitize(record.UserID),
		sanitize(labels))
}

// suffixed returns name with _n inserted before the extension; n == 0
// returns name unchanged
func suffixed(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// sanitize keeps names inside the evidence directory
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '-'
		}
		return r
	}, s)
}
