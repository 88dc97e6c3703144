package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ImpactRank/internal/services/impact"
	"ImpactRank/internal/usecase"
	"ImpactRank/pkg/config"
	applogger "ImpactRank/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rankctl",
		Short:         "Rank tickers from impact events offline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRankCmd())
	return root
}

type rankFlags struct {
	file            string
	configPath      string
	referenceTime   string
	decayBase       float64
	halfLife        float64
	maxAge          float64
	propagateScopes bool
	includeScopes   bool
	limit           int
	format          string
	verbose         bool
}

func newRankCmd() *cobra.Command {
	f := &rankFlags{}
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank a batch of events read from a file or stdin",
		Long: "Reads extractor output (a JSON array or object, optionally wrapped in a\n" +
			"markdown code fence) and prints the ranked recommendations. No stored\n" +
			"history is consulted.",
		Example: "  rankctl rank -f events.json --reference-time 2024-05-01T12:00:00Z --decay-base 0.98",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRank(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "file", "f", "-", "events file, - for stdin")
	fl.StringVar(&f.configPath, "config", "", "service config to take engine defaults from")
	fl.StringVar(&f.referenceTime, "reference-time", "", "reference time (RFC3339); defaults to now")
	fl.Float64Var(&f.decayBase, "decay-base", 0.99, "per-hour decay factor, in (0,1)")
	fl.Float64Var(&f.halfLife, "half-life", 0, "half-life in hours; overrides --decay-base when set")
	fl.Float64Var(&f.maxAge, "max-age", 48, "history window size in hours")
	fl.BoolVar(&f.propagateScopes, "propagate-scopes", false, "fan Scope events out to tagged assets")
	fl.BoolVar(&f.includeScopes, "include-scopes", false, "also print the scope ranking")
	fl.IntVar(&f.limit, "limit", 0, "print only the top N (0 = all)")
	fl.StringVar(&f.format, "format", "json", "output format: json or table")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log parse errors and misses to stderr")
	return cmd
}

func runRank(cmd *cobra.Command, f *rankFlags) error {
	if f.format != "json" && f.format != "table" {
		return fmt.Errorf("unknown format %q", f.format)
	}

	engine := impact.DefaultConfig(time.Time{})
	if f.configPath != "" {
		cfg, err := config.Load(f.configPath)
		if err != nil {
			return err
		}
		engine.DecayBase = cfg.Engine.DecayBase
		engine.HalfLifeHours = cfg.Engine.HalfLifeHours
		engine.MaxAgeHours = cfg.Engine.MaxAgeHours
		engine.PropagateScopes = cfg.Engine.PropagateScopes
	}

	raw, err := readInput(cmd.InOrStdin(), f.file)
	if err != nil {
		return err
	}
	records, err := impact.DecodeRecords(raw)
	if err != nil {
		return fmt.Errorf("decode %s: %w", f.file, err)
	}

	l := applogger.NewNop()
	if f.verbose {
		if l, err = applogger.New(&applogger.Config{Level: "debug", Format: "console", Output: "stderr"}); err != nil {
			return err
		}
	}

	params := usecase.RankParams{
		Records:       records,
		ReferenceTime: f.referenceTime,
		IncludeScopes: f.includeScopes,
		Limit:         f.limit,
		Source:        "cli",
	}
	flags := cmd.Flags()
	if flags.Changed("decay-base") {
		params.DecayBase = &f.decayBase
	}
	if flags.Changed("half-life") {
		params.HalfLifeHours = &f.halfLife
	}
	if flags.Changed("max-age") {
		params.MaxAgeHours = &f.maxAge
	}
	if flags.Changed("propagate-scopes") {
		params.PropagateScopes = &f.propagateScopes
	}

	uc := usecase.NewRankingUseCase(engine, nil, 0, nil, l)
	out, err := uc.Rank(context.Background(), params)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if f.format == "table" {
		return writeTable(w, out)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeTable(w io.Writer, out *usecase.RankOutput) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTICKER\tSCORE\tEVIDENCE")
	for i, r := range out.Recommendations {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\n", i+1, r.Ticker, r.Score, strings.Join(r.References(), "; "))
	}
	if len(out.Scopes) > 0 {
		fmt.Fprintln(tw, "\nSCOPE\t\tSCORE\t")
		for _, s := range out.Scopes {
			fmt.Fprintf(tw, "%s\t\t%.4f\t\n", s.Scope, s.Score)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n := len(out.ParseErrors); n > 0 {
		fmt.Fprintf(w, "\n%d record(s) rejected\n", n)
	}
	if n := len(out.Misses); n > 0 {
		fmt.Fprintf(w, "%d macro event(s) matched no asset\n", n)
	}
	return nil
}
