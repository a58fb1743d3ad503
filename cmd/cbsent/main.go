// Command cbsent plans, submits and resumes chunked sentiment batch runs.
//
// Usage:
//
//	cbsent plan   -input speeches.jsonl
//	cbsent submit
//	cbsent resume [-wait] [-no-resubmit]
//	cbsent run    -input speeches.jsonl [-wait]
//	cbsent status
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"cbsent/internal/config"
	"cbsent/internal/dataset"
	"cbsent/internal/logger"
	"cbsent/internal/service"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cbsent <plan|submit|resume|run|status> [flags]")
	fmt.Fprintln(w, "  plan   -input FILE            encode documents and write chunk files")
	fmt.Fprintln(w, "  submit [-input FILE]          plan when given a dataset, then submit chunk files that have no job yet")
	fmt.Fprintln(w, "  resume [-wait] [-no-resubmit] refresh, resubmit failures, merge when complete")
	fmt.Fprintln(w, "  run    -input FILE [-wait]    plan followed by resume")
	fmt.Fprintln(w, "  status                        print the ledger without remote calls")
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", "", "dataset file (.jsonl or .csv)")
	wait := fs.Bool("wait", false, "poll in-progress chunks until they finish (overrides resume.wait)")
	noResubmit := fs.Bool("no-resubmit", false, "do not resubmit failed chunks")

	switch cmd {
	case "plan", "submit", "resume", "run", "status":
	case "-h", "--help", "help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		usage(stderr)
		return exitUsage
	}
	if err := fs.Parse(rest); err != nil {
		return exitUsage
	}
	if (cmd == "plan" || cmd == "run") && *input == "" {
		fmt.Fprintf(stderr, "%s requires -input\n", cmd)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFail
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return exitFail
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "failed to build logger: %v\n", err)
		return exitFail
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return exitFail
	}
	defer a.Close()

	opts := service.ResumeOptions{
		Wait:     cfg.Resume.Wait || *wait,
		Resubmit: cfg.Resume.AutoResubmit && !*noResubmit,
	}

	var out interface{}
	code := exitOK
	switch cmd {
	case "plan":
		out, err = a.plan(ctx, *input)
	case "submit":
		if *input != "" {
			_, err = a.plan(ctx, *input)
		}
		if err == nil {
			var res *service.SweepResult
			res, err = a.orch.Submit(ctx)
			out = res
		}
	case "resume":
		var res *service.ResumeResult
		res, err = a.orch.Resume(ctx, opts)
		out, code = res, outcomeCode(res)
	case "run":
		if _, err = a.plan(ctx, *input); err == nil {
			var res *service.ResumeResult
			res, err = a.orch.Resume(ctx, opts)
			out, code = res, outcomeCode(res)
		}
	case "status":
		out, err = a.orch.Status(ctx)
	}

	if err == nil && out != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted; progress is saved in the ledger", zap.String("ledger", cfg.Paths.LedgerFile))
		} else {
			log.Error(cmd+" failed", zap.Error(err))
		}
		return exitFail
	}
	return code
}

// outcomeCode maps a resume outcome to the process exit code. Waiting and
// paused runs are healthy and only need another resume.
func outcomeCode(res *service.ResumeResult) int {
	if res == nil {
		return exitFail
	}
	switch res.Outcome {
	case service.OutcomeFailed, service.OutcomeIncomplete:
		return exitFail
	default:
		return exitOK
	}
}

type planSummary struct {
	Chunks      int      `json:"chunks"`
	Documents   int      `json:"documents"`
	TotalTokens int      `json:"total_estimated_tokens"`
	Written     int      `json:"files_written"`
	Rejected    []string `json:"rejected,omitempty"`
}

func (a *app) plan(ctx context.Context, input string) (*planSummary, error) {
	filter, err := dataset.NewFilter(a.cfg.Dataset)
	if err != nil {
		return nil, err
	}
	docs, err := dataset.NewLoader(filter, a.logger).Load(input)
	if err != nil {
		return nil, err
	}
	res, err := a.orch.Plan(ctx, docs)
	if err != nil {
		return nil, err
	}
	summary := &planSummary{
		Chunks:      len(res.Chunks),
		Documents:   res.Documents,
		TotalTokens: res.TotalTokens,
		Written:     res.Written,
	}
	for _, r := range res.Rejected {
		summary.Rejected = append(summary.Rejected, r.Error())
	}
	return summary, nil
}
