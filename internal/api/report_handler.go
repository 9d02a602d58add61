package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/formsight/formsight-server/internal/export"
	"github.com/formsight/formsight-server/internal/jobs"
)

// reportHandler streams the coaching tips of a finished job as a CSV table
// or an EDL cut list for video editors. Format defaults to csv.
func reportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}

		doc, err := job.ParseResult()
		if err != nil {
			cfg.Logger.Error("stored result document is unreadable", "error", err, "job_id", job.ID)
			WriteError(w, http.StatusInternalServerError, "failed to load result", "INTERNAL_ERROR")
			return
		}
		if doc == nil {
			WriteError(w, http.StatusConflict, "job has no result yet", "NOT_READY")
			return
		}

		format := strings.ToLower(r.URL.Query().Get("format"))
		if format == "" {
			format = "csv"
		}

		switch format {
		case "csv":
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+"-tips.csv"))
			if err := export.WriteCSV(w, doc.Tips); err != nil {
				cfg.Logger.Error("csv export failed", "error", err, "job_id", job.ID)
			}
		case "edl":
			clip := export.Clip{
				Title:     strings.TrimSpace(job.Sport + " form review"),
				MediaPath: reportMediaPath(job, doc),
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+"-review.edl"))
			if _, err := io.WriteString(w, export.GenerateEDL(clip, doc.Tips)); err != nil {
				cfg.Logger.Error("edl export failed", "error", err, "job_id", job.ID)
			}
		default:
			WriteError(w, http.StatusBadRequest, "format must be csv or edl", "BAD_REQUEST")
		}
	}
}

// reportMediaPath names the clip an edit references: the annotated video when
// one exists, otherwise a placeholder derived from the job id.
func reportMediaPath(job *jobs.Job, doc *jobs.ResultDoc) string {
	if doc.Video != nil {
		if doc.Video.Object != "" {
			return doc.Video.Object
		}
		if doc.Video.URL != "" {
			return doc.Video.URL
		}
	}
	return job.ID + ".mp4"
}
