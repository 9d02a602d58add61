package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cheggaaa/pb/v3"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/config"
	"github.com/formsight/formsight-server/internal/export"
	"github.com/formsight/formsight-server/internal/jobs"
	"github.com/formsight/formsight-server/internal/logging"
	"github.com/formsight/formsight-server/internal/pipeline"
	"github.com/formsight/formsight-server/internal/pose"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("analyze: %v", err)
	}
}

func run() error {
	var (
		inPath     = flag.String("in", "", "clip to analyze (required)")
		outPath    = flag.String("out", "", "annotated output path (default: <in>.annotated.mp4)")
		sport      = flag.String("sport", "", "skip sport detection and analyze as this sport")
		reportPath = flag.String("report", "", "also write a tip report (.csv or .edl by extension)")
	)
	flag.Parse()

	if *inPath == "" {
		flag.Usage()
		return fmt.Errorf("-in is required")
	}
	if *outPath == "" {
		*outPath = strings.TrimSuffix(*inPath, filepath.Ext(*inPath)) + ".annotated.mp4"
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Warnings still surface; the progress display owns the terminal.
	logger := logging.NewLogger("warn")

	rules, err := analysis.LoadRules(cfg.RulesPath())
	if err != nil {
		return fmt.Errorf("failed to load coaching rules: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	pool, err := pose.StartWorkers(ctx, cfg.PoseWorkers(), pose.WorkerConfig{
		PythonPath: cfg.PosePython(),
		ModuleName: cfg.PoseModule(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start pose workers: %w", err)
	}
	defer pool.Close()

	pipe := pipeline.New(cfg, rules, pool, logger)

	opts := pipeline.DefaultOptions()
	opts.Sport = strings.ToLower(strings.TrimSpace(*sport))

	progress, finish := stderrProgress()
	res, runErr := pipe.Run(ctx, *inPath, *outPath, opts, progress)
	finish()

	videoObject := ""
	if res.VideoPath != "" {
		videoObject = filepath.Base(res.VideoPath)
	}
	doc := jobs.BuildResult(jobs.NewID(), res, videoObject, "")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode result document: %w", err)
	}

	if *reportPath != "" {
		mediaPath := *inPath
		if res.VideoPath != "" {
			mediaPath = res.VideoPath
		}
		if err := writeReport(*reportPath, doc, mediaPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "report written to %s\n", *reportPath)
	}

	if res.VideoPath != "" {
		fmt.Fprintf(os.Stderr, "annotated video written to %s\n", res.VideoPath)
	}

	return runErr
}

// stderrProgress renders a run on stderr: a ticking bar for the decode pass
// and one line per later stage. The pipeline invokes the callback from a
// single goroutine, so the bar needs no locking.
func stderrProgress() (pipeline.Progress, func()) {
	var bar *pb.ProgressBar

	finish := func() {
		if bar != nil {
			bar.Finish()
			bar = nil
		}
	}

	fn := func(state pipeline.State, done, total int) {
		switch state {
		case pipeline.StateDecoding:
			if total <= 0 {
				return
			}
			if bar == nil {
				bar = pb.New(total)
				bar.SetWriter(os.Stderr)
				bar.Set("prefix", "decoding")
				bar.Start()
			}
			bar.SetCurrent(int64(done))
		case pipeline.StateAnalyzing:
			finish()
			fmt.Fprintln(os.Stderr, "analyzing landmark track")
		case pipeline.StateRendering:
			if total > 0 {
				fmt.Fprintf(os.Stderr, "rendered %d/%d frames\n", done, total)
			} else {
				fmt.Fprintln(os.Stderr, "rendering skeleton overlay")
			}
		case pipeline.StateFinalizing:
			fmt.Fprintln(os.Stderr, "finalizing")
		}
	}

	return fn, finish
}

// writeReport writes the tip report named by path, picking the format from
// the extension: .edl gets a cut list, anything else CSV.
func writeReport(path string, doc *jobs.ResultDoc, mediaPath string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".edl") {
		sport := doc.Sport
		if sport == analysis.SportUnknown {
			sport = ""
		}
		clip := export.Clip{
			Title:     strings.TrimSpace(sport + " form review"),
			MediaPath: mediaPath,
		}
		_, err = io.WriteString(f, export.GenerateEDL(clip, doc.Tips))
	} else {
		err = export.WriteCSV(f, doc.Tips)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
