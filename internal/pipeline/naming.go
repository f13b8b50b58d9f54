package pipeline

import (
	"strings"
	"time"

	"github.com/stream-sync/recsync/internal/models"
)

// ModuleDateLayout renders the start time appended to module names.
const ModuleDateLayout = "Monday, 2 January 2006, 3:04 PM"

// NameOptions control how course module names are built.
type NameOptions struct {
	Prefix           string
	AddDate          bool
	HideTopic        bool
	AddRecordingType bool
}

// ModuleName builds the module name: prefix, topic, recording type and date, each optional.
func ModuleName(rec *models.Recording, o NameOptions, loc *time.Location) string {
	var parts []string
	if o.Prefix != "" {
		parts = append(parts, o.Prefix)
	}
	if !o.HideTopic && rec.Topic != "" {
		parts = append(parts, rec.Topic)
	}
	if o.AddRecordingType {
		if rt := rec.RecordingValue("recording_type"); rt != "" {
			parts = append(parts, recordingTypeLabel(rt))
		}
	}
	if o.AddDate && rec.StartTime != nil {
		if loc == nil {
			loc = time.UTC
		}
		parts = append(parts, "("+rec.StartTime.In(loc).Format(ModuleDateLayout)+")")
	}
	return strings.Join(parts, " ")
}

// recordingTypeLabel turns "shared_screen_with_speaker_view" into "Shared screen with speaker view".
func recordingTypeLabel(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
