package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/a3tai/mcp-exam-extractor/internal/config"
	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/pipeline"
)

const usage = `exam_pipeline - run exam extraction stages from the command line

USAGE:
  exam_pipeline [OPTIONS] <stage> [arguments]

STAGES:
  pdf <doc_id> <file>        ingest a PDF from the input directory
  text <doc_id> <file>       ingest a plain text file
  html <doc_id> <file>       ingest a saved HTML page (see --base-url)
  url <doc_id> <url>         fetch and ingest an exam page
  artifacts <doc_id>         collect code, images and tables (see --kinds)
  merge <doc_id>             fold side-files into the records
  validate <doc_id>          write the document's issue list
  report [doc_id...]         aggregate documents (all when none given)
  batch <manifest.yaml>      run every stage for each manifest document

OPTIONS:
`

// options are the command-line settings shared by every stage
type options struct {
	inputDir     string
	dataDir      string
	rulesPath    string
	baseURL      string
	kinds        string
	reportFormat []string
	output       string
	images       bool
	verbose      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	flags := pflag.NewFlagSet("exam_pipeline", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.inputDir, "dir", ".", "Input directory holding source files")
	flags.StringVar(&opts.dataDir, "data", config.DefaultDataDirName, "Data directory for records and side-files")
	flags.StringVar(&opts.rulesPath, "rules", "", "Rules YAML file (default: embedded rules)")
	flags.StringVar(&opts.baseURL, "base-url", "", "Base URL for resolving links in an HTML file")
	flags.StringVar(&opts.kinds, "kinds", "", "Comma-separated artifact kinds: code, image, table (default: all)")
	flags.StringSliceVar(&opts.reportFormat, "report-format", []string{"json"}, "Report file formats: json, xlsx")
	flags.StringVar(&opts.output, "format", "text", "Output format: text, json")
	flags.BoolVar(&opts.images, "images", false, "Download remote images during artifact passes")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.output != "text" && opts.output != "json" {
		fmt.Fprintf(stderr, "Error: unknown output format %q (must be text or json)\n", opts.output)
		return 2
	}
	if flags.NArg() == 0 {
		fmt.Fprintf(stderr, "Error: stage required\n\n")
		flags.Usage()
		return 2
	}

	svc, err := newService(opts, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	result, err := runStage(ctx, svc, opts, flags.Arg(0), flags.Args()[1:])
	printable := err == nil
	if batch, ok := result.(*pipeline.BatchResult); ok && batch != nil {
		printable = true
	}
	if printable {
		if werr := writeResult(stdout, opts.output, result); werr != nil {
			fmt.Fprintf(stderr, "Error writing output: %v\n", werr)
			return 1
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	if batch, ok := result.(*pipeline.BatchResult); ok && batch.Failed > 0 {
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func newService(opts options, stderr io.Writer) (*pipeline.Service, error) {
	inputDir, err := filepath.Abs(opts.inputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve input directory: %w", err)
	}
	dataDir, err := filepath.Abs(opts.dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.InputDirectory = inputDir
	cfg.DataDirectory = dataDir
	cfg.RulesPath = opts.rulesPath
	cfg.DownloadImages = opts.images
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	svc, err := pipeline.NewService(cfg)
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		svc.SetLogger(log.New(stderr, "[Pipeline] ", log.LstdFlags))
	} else {
		svc.SetLogger(log.New(io.Discard, "", 0))
	}
	return svc, nil
}

func runStage(ctx context.Context, svc *pipeline.Service, opts options, stage string, args []string) (any, error) {
	need := func(n int, names string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s %s", errUsage, stage, names)
		}
		return nil
	}

	switch stage {
	case pipeline.SourcePDF, pipeline.SourceText, pipeline.SourceHTML, pipeline.SourceURL:
		if err := need(2, "<doc_id> <source>"); err != nil {
			return nil, err
		}
		return svc.Ingest(ctx, pipeline.Job{DocID: args[0], Kind: stage, Source: args[1], BaseURL: opts.baseURL})

	case "artifacts":
		if err := need(1, "<doc_id>"); err != nil {
			return nil, err
		}
		var kinds []exam.ArtifactKind
		for _, k := range strings.Split(opts.kinds, ",") {
			if k = strings.TrimSpace(k); k == "" {
				continue
			}
			kind, err := exam.ParseArtifactKind(k)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errUsage, err)
			}
			kinds = append(kinds, kind)
		}
		return svc.ExtractArtifacts(ctx, args[0], kinds)

	case "merge":
		if err := need(1, "<doc_id>"); err != nil {
			return nil, err
		}
		return svc.Merge(args[0])

	case "validate":
		if err := need(1, "<doc_id>"); err != nil {
			return nil, err
		}
		return svc.Validate(args[0])

	case "report":
		return writeReports(svc, args, opts.reportFormat)

	case "batch":
		if err := need(1, "<manifest.yaml>"); err != nil {
			return nil, err
		}
		manifest, err := pipeline.LoadManifest(args[0])
		if err != nil {
			return nil, err
		}
		batch, err := svc.Batch(ctx, manifest.Documents)
		if err != nil {
			return batch, err
		}
		if len(manifest.Report.Formats) > 0 {
			if _, err := writeReports(svc, nil, manifest.Report.Formats); err != nil {
				return batch, err
			}
		}
		return batch, nil
	}
	return nil, fmt.Errorf("%w: unknown stage %q", errUsage, stage)
}

// reportOutput is what the report stage prints
type reportOutput struct {
	RunID     string   `json:"run_id"`
	Documents int      `json:"documents"`
	Questions int      `json:"questions"`
	Issues    int      `json:"issues"`
	Files     []string `json:"files"`
}

func writeReports(svc *pipeline.Service, docIDs, formats []string) (*reportOutput, error) {
	rep, err := svc.Report(docIDs)
	if err != nil {
		return nil, err
	}
	out := &reportOutput{
		RunID:     rep.Summary.RunID,
		Documents: len(rep.Summary.Documents),
		Questions: rep.Summary.Total.Questions,
		Issues:    rep.Summary.Total.Issues,
	}
	for _, format := range formats {
		path, err := svc.WriteReport(rep, format)
		if err != nil {
			return out, err
		}
		out.Files = append(out.Files, path)
	}
	return out, nil
}

func writeResult(w io.Writer, format string, result any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(result)
	}

	switch r := result.(type) {
	case *pipeline.IngestResult:
		fmt.Fprintf(w, "✅ %s: %d questions (%d low confidence) from %s\n", r.DocID, r.Questions, r.LowConfidence, r.Source)
		printWarnings(w, r.Warnings)
	case *pipeline.ArtifactsResult:
		fmt.Fprintf(w, "✅ %s: artifact passes done\n", r.DocID)
		for _, kind := range exam.ArtifactKinds() {
			if st, ok := r.Stats[kind]; ok {
				fmt.Fprintf(w, "   %s: %d found, %d attached, %d orphaned, %d rejected\n",
					kind, st.Found, st.Attached, st.Orphaned, st.Rejected)
			}
		}
		printWarnings(w, r.Warnings)
	case *pipeline.MergeResult:
		fmt.Fprintf(w, "✅ %s: merged %d records\n", r.DocID, r.Stats.Records)
		for _, kind := range exam.ArtifactKinds() {
			fmt.Fprintf(w, "   %s: %d updated, %d retained, %d orphaned\n",
				kind, r.Stats.Updated[kind], r.Stats.Retained[kind], r.Stats.Orphans[kind])
		}
	case *pipeline.ValidateResult:
		fmt.Fprintf(w, "✅ %s: %d issues\n", r.DocID, len(r.Issues))
		for _, issue := range r.Issues {
			fmt.Fprintf(w, "   [P%d] %s %s: %s\n", issue.Priority, issue.QNo, issue.Type, issue.Message)
		}
	case *reportOutput:
		fmt.Fprintf(w, "✅ report %s: %d documents, %d questions, %d issues\n", r.RunID, r.Documents, r.Questions, r.Issues)
		for _, f := range r.Files {
			fmt.Fprintf(w, "   %s\n", f)
		}
	case *pipeline.BatchResult:
		fmt.Fprintf(w, "Batch: %d succeeded, %d failed\n", r.Succeeded, r.Failed)
		for _, job := range r.Jobs {
			if job.Error != "" {
				fmt.Fprintf(w, "   ❌ %s: %s\n", job.DocID, job.Error)
				continue
			}
			questions := 0
			if job.Ingest != nil {
				questions = job.Ingest.Questions
			}
			fmt.Fprintf(w, "   ✅ %s: %d questions, %d issues\n", job.DocID, questions, job.Issues)
		}
	default:
		return fmt.Errorf("unexpected result type %T", result)
	}
	return nil
}

func printWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "   ⚠️  %s\n", warning)
	}
}
