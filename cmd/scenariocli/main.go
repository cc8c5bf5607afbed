// scenario_cli analyzes and (eventually) generates scenario-set configs
// (§6). `analyze` runs a full scenario set end to end through the batch
// coordinator and reports per-scenario results; `generate` is out of core
// scope and reports as much, matching this module's convention of a
// flag.NewFlagSet per verb.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/finiex/testingide/pkg/batch"
	"github.com/finiex/testingide/pkg/brokerconfig"
	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/livestats"
	"github.com/finiex/testingide/pkg/metrics"
	"github.com/finiex/testingide/pkg/preparator"
	"github.com/finiex/testingide/pkg/scenario"
	"github.com/finiex/testingide/pkg/tickstore"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: scenario_cli {analyze|generate} [flags]")
		return 1
	}
	verb, rest := args[0], args[1:]
	switch verb {
	case "analyze":
		return cmdAnalyze(rest)
	case "generate":
		return cmdGenerate(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", verb)
		return 1
	}
}

func cmdGenerate(args []string) int {
	fmt.Fprintln(os.Stderr, "generate: scenario-set generation is out of scope for this engine")
	return 1
}

func cmdAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	scenarioSetPath := fs.String("scenario-set", "", "path to a scenario-set JSON file (required)")
	brokerConfigDir := fs.String("broker-configs", "./configs/brokers", "directory of broker config JSON files, one per broker_type")
	sidecar := fs.String("sidecar", "", "tick/bar index sidecar (required)")
	output := fs.String("output", "", "optional JSON output path for results")
	parallel := fs.Bool("parallel", false, "dispatch scenarios in parallel")
	maxConcurrency := fs.Int("max-concurrency", 0, "cap on concurrent scenarios (0 = unbounded)")
	liveInterval := fs.Duration("live-interval", 500*time.Millisecond, "live-stats throttle interval")
	withMetrics := fs.Bool("metrics", false, "record Prometheus metrics for this run")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *scenarioSetPath == "" || *sidecar == "" {
		fmt.Fprintln(os.Stderr, "analyze: -scenario-set and -sidecar are required")
		return 1
	}

	set, err := scenario.LoadScenarioSet(*scenarioSetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		return 1
	}

	brokerSpecs, err := loadBrokerSpecs(*brokerConfigDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		return 1
	}

	idx, err := tickstore.Load(*sidecar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		return 1
	}

	prep := preparator.New(idx, preparator.CSVTickReader{}, preparator.CSVBarReader{})

	var live *livestats.Coordinator
	live = livestats.NewCoordinator(true, livestats.NewQueue(256), *liveInterval)

	var m *metrics.BacktestMetrics
	if *withMetrics {
		m = metrics.New()
	}

	coord := batch.NewCoordinator(batch.Config{
		ScenarioSetName:    set.Name,
		ParallelScenarios:  *parallel,
		MaxConcurrency:     *maxConcurrency,
		LiveUpdateInterval: *liveInterval,
	}, prep, live, m)

	results, err := coord.Run(set.Scenarios, brokerSpecs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		return 1
	}

	printSummary(set.Name, results)

	if *output != "" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "analyze: marshaling results: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*output, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "analyze: writing %s: %v\n", *output, err)
			return 1
		}
		fmt.Printf("wrote results to %s\n", *output)
	}
	return 0
}

func loadBrokerSpecs(dir string) (map[string]brokersim.BrokerSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading broker config dir %s: %w", dir, err)
	}
	specs := make(map[string]brokersim.BrokerSpec, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		spec, err := brokerconfig.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		specs[spec.Name] = *spec
	}
	return specs, nil
}

func printSummary(setName string, results []scenario.ProcessResult) {
	fmt.Println()
	fmt.Printf("==== scenario set: %s ====\n", setName)
	fmt.Println()
	succeeded, failed := 0, 0
	for _, r := range results {
		status := "OK"
		if !r.Success {
			status = "FAILED: " + r.ErrorMessage
			failed++
		} else {
			succeeded++
		}
		equity := "n/a"
		if p := r.TickLoopResults.PortfolioStats; p != nil {
			equity = scenario.FormatMoney(p.Currency, p.Equity)
		}
		fmt.Printf("  [%2d] %-24s %-8s equity=%-12s %8.1fms  %s\n",
			r.ScenarioIndex, r.ScenarioName, r.Symbol, equity, r.ExecutionTimeMs, status)
	}
	fmt.Println()
	fmt.Printf("  %d succeeded, %d failed (of %d)\n", succeeded, failed, len(results))
	fmt.Println()
}
