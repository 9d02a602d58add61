// Package export renders a job's coaching tips as editor-friendly documents:
// a CSV table and a CMX 3600 EDL whose events cut the violation spans into a
// back-to-back review reel.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/formsight/formsight-server/internal/analysis"
)

// Clip describes the source video the tips refer to.
type Clip struct {
	Title     string
	MediaPath string
	FrameRate float64
}

// GenerateEDL emits one event per tip, cutting the violation spans onto a
// sequential record timeline. Tips without a positive duration are skipped.
func GenerateEDL(clip Clip, tips []analysis.Tip) string {
	fps := int(math.Round(clip.FrameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(clip.FrameRate-29.97) < 0.01 || math.Abs(clip.FrameRate-59.94) < 0.01

	title := SanitizeName(clip.Title, 70)
	if title == "" {
		title = "Form Review"
	}

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	event := 0
	var recordOffsetMs int64
	for _, tip := range tips {
		durationMs := tip.EndMS - tip.StartMS
		if durationMs <= 0 {
			continue
		}
		event++

		srcIn := msToTimecode(tip.StartMS, fps)
		srcOut := msToTimecode(tip.EndMS, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", event, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", SanitizeName(tip.Category+" - "+tip.Text, 60)),
			fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath),
		)

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int64, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
