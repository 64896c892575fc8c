package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tdda-tools/internal/config"
	"tdda-tools/internal/dataset"
	"tdda-tools/internal/detect"
	"tdda-tools/internal/discover"
	"tdda-tools/internal/persistence"
	"tdda-tools/internal/rex"
	"tdda-tools/internal/verify"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tdda <command> [options]

Commands:
  discover <data.csv> [-out constraints.tdda] [-no-rex]
      Infer constraints from a dataset and print or save them.
  verify <data.csv> <constraints.tdda> [-epsilon e] [-strict] [-failures-only]
      Check a dataset against saved constraints.
  detect <data.csv> <constraints.tdda> [-out failures.csv] [-write-all] [-per-constraint] [-index]
      Mark the records that violate constraints.
  console
      Start the interactive console.
`)
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime)

	cfg := config.LoadConfig()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Cancellation is cooperative: discovery and verification stop
	// between fields, detection between row batches.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "discover":
		err = runDiscover(ctx, cfg, os.Args[2:])
	case "verify":
		err = runVerify(ctx, cfg, os.Args[2:])
	case "detect":
		err = runDetect(ctx, cfg, os.Args[2:])
	case "console":
		err = runConsole(ctx, cfg)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("tdda %s: %v", os.Args[1], err)
	}
}

func (p *policies) discoverOptions(cfg config.Config) discover.Options {
	return discover.Options{
		MaxDistinct: cfg.DistinctCap,
		DiscoverRex: p.discoverRex,
		Rex:         rex.Options{MaxAlternation: cfg.MaxAlternation},
		Workers:     cfg.Workers,
	}
}

// policies carries the per-invocation overrides of the config defaults.
type policies struct {
	epsilon      float64
	strict       bool
	failuresOnly bool
	discoverRex  bool
}

func newPolicies(cfg config.Config) *policies {
	return &policies{
		epsilon:     cfg.Epsilon,
		strict:      cfg.StrictTypes,
		discoverRex: cfg.DiscoverRex,
	}
}

func (p *policies) verifyPolicy(cfg config.Config) verify.Policy {
	pol := verify.Policy{
		Epsilon:      p.epsilon,
		TypeChecking: verify.TypeCheckingSloppy,
		ReportMode:   verify.ReportAll,
		Workers:      cfg.Workers,
	}
	if p.strict {
		pol.TypeChecking = verify.TypeCheckingStrict
	}
	if p.failuresOnly {
		pol.ReportMode = verify.ReportFailuresOnly
	}
	return pol
}

func runDiscover(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	outPath := fs.String("out", "", "path to save the constraints document")
	noRex := fs.Bool("no-rex", false, "disable regular-expression discovery")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one dataset path")
	}

	ds, err := dataset.LoadCSV(fs.Arg(0), dataset.CSVOptions{DistinctCap: cfg.DistinctCap})
	if err != nil {
		return err
	}

	pols := newPolicies(cfg)
	pols.discoverRex = pols.discoverRex && !*noRex
	doc, err := discover.Discover(ctx, ds, pols.discoverOptions(cfg))
	if err != nil {
		return err
	}

	if *outPath != "" {
		return persistence.SaveConstraints(*outPath, doc)
	}
	data, err := doc.Serialize()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runVerify(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	pols := newPolicies(cfg)
	fs.Float64Var(&pols.epsilon, "epsilon", pols.epsilon, "fuzzy-comparison tolerance for numeric bounds")
	fs.BoolVar(&pols.strict, "strict", pols.strict, "treat int and real as distinct types")
	fs.BoolVar(&pols.failuresOnly, "failures-only", false, "report only failing constraints")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("expected a dataset path and a constraints path")
	}

	ds, err := dataset.LoadCSV(fs.Arg(0), dataset.CSVOptions{DistinctCap: cfg.DistinctCap})
	if err != nil {
		return err
	}
	doc, err := persistence.LoadConstraints(fs.Arg(1))
	if err != nil {
		return err
	}

	report, err := verify.Verify(ctx, ds, doc, pols.verifyPolicy(cfg))
	if err != nil {
		return err
	}
	renderReport(os.Stdout, report)
	if !report.AllPassed() {
		os.Exit(1)
	}
	return nil
}

func runDetect(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	pols := newPolicies(cfg)
	outPath := fs.String("out", "", "path for the detection output CSV")
	writeAll := fs.Bool("write-all", false, "retain passing records too")
	perConstraint := fs.Bool("per-constraint", false, "add one boolean column per constraint")
	includeIndex := fs.Bool("index", false, "include the input record number")
	fs.Float64Var(&pols.epsilon, "epsilon", pols.epsilon, "fuzzy-comparison tolerance for numeric bounds")
	fs.BoolVar(&pols.strict, "strict", pols.strict, "treat int and real as distinct types")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("expected a dataset path and a constraints path")
	}

	ds, err := dataset.LoadCSV(fs.Arg(0), dataset.CSVOptions{DistinctCap: cfg.DistinctCap})
	if err != nil {
		return err
	}
	doc, err := persistence.LoadConstraints(fs.Arg(1))
	if err != nil {
		return err
	}

	pol := detect.Policy{
		WriteAll:      *writeAll,
		PerConstraint: *perConstraint,
		IncludeIndex:  *includeIndex,
		Epsilon:       pols.epsilon,
		TypeChecking:  verify.TypeCheckingSloppy,
	}
	if pols.strict {
		pol.TypeChecking = verify.TypeCheckingStrict
	}
	result, err := detect.Detect(ctx, ds, doc, pol)
	if err != nil {
		return err
	}
	if *outPath != "" {
		return persistence.WriteDetectionOutput(*outPath, result)
	}
	renderDetection(os.Stdout, result, 25)
	return nil
}
