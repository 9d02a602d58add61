package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/formsight/formsight-server/internal/analysis"
)

// WriteCSV renders tips as a spreadsheet-friendly table, one row per tip.
func WriteCSV(w io.Writer, tips []analysis.Tip) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"category", "severity", "text", "start_frame", "end_frame", "start_ms", "end_ms"}); err != nil {
		return err
	}
	for _, tip := range tips {
		rec := []string{
			tip.Category,
			strconv.FormatFloat(tip.Severity, 'f', 2, 64),
			tip.Text,
			strconv.Itoa(tip.StartFrame),
			strconv.Itoa(tip.EndFrame),
			strconv.FormatInt(tip.StartMS, 10),
			strconv.FormatInt(tip.EndMS, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
