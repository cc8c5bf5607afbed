// bar_index_cli manages the JSON sidecar index over a symbol's tick and
// bar files (§4.2, §6): rebuild, status, report, and render subcommands,
// dispatched through flag.NewFlagSet per verb in the same style as this
// module's other cmd/ entrypoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/finiex/testingide/pkg/tickstore"
	"github.com/finiex/testingide/pkg/timeframe"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: bar_index_cli {rebuild|status|report|render} [flags]")
		return 1
	}

	verb, rest := args[0], args[1:]
	switch verb {
	case "rebuild":
		return cmdRebuild(rest)
	case "status":
		return cmdStatus(rest)
	case "report":
		return cmdReport(rest)
	case "render":
		return cmdRender(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", verb)
		return 1
	}
}

func cmdRebuild(args []string) int {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	dataRoot := fs.String("data-root", "./data", "collector root containing ticks/ and bars/")
	symbol := fs.String("symbol", "", "symbol to index (required)")
	sidecar := fs.String("sidecar", "", "sidecar path override (defaults under data-root)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "rebuild: -symbol is required")
		return 1
	}

	path := *sidecar
	if path == "" {
		path = filepath.Join(*dataRoot, *symbol+".parquet_index.json")
	}

	idx, err := scanSymbol(*dataRoot, *symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild: %v\n", err)
		return 1
	}
	if err := idx.Save(path); err != nil {
		fmt.Fprintf(os.Stderr, "rebuild: %v\n", err)
		return 1
	}
	fmt.Printf("rebuilt index for %s at %s\n", *symbol, path)
	return 0
}

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	sidecar := fs.String("sidecar", "", "sidecar path (required)")
	dataRoot := fs.String("data-root", "./data", "collector root (not read by status; staleness is checked against the paths recorded in the sidecar)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *sidecar == "" {
		fmt.Fprintln(os.Stderr, "status: -sidecar is required")
		return 1
	}

	idx, err := tickstore.Load(*sidecar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}

	var files []string
	for _, entries := range idx.Ticks {
		for _, e := range entries {
			files = append(files, e.Path)
		}
	}
	stale, err := tickstore.NeedsRebuild(*sidecar, files, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}

	fmt.Printf("generated_at: %s\n", idx.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("symbols indexed: %d\n", len(idx.Ticks))
	fmt.Printf("needs rebuild:   %v\n", stale)
	_ = dataRoot
	return 0
}

func cmdReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	sidecar := fs.String("sidecar", "", "sidecar path (required)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *sidecar == "" {
		fmt.Fprintln(os.Stderr, "report: -sidecar is required")
		return 1
	}

	idx, err := tickstore.Load(*sidecar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		return 1
	}

	symbols := make([]string, 0, len(idx.Ticks))
	for s := range idx.Ticks {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, s := range symbols {
		entries := idx.Ticks[s]
		var rows int
		for _, e := range entries {
			rows += e.RowCount
		}
		fmt.Printf("%-12s ticks: %d files, %d rows\n", s, len(entries), rows)
		if bars, ok := idx.Bars[s]; ok {
			tfs := make([]timeframe.Name, 0, len(bars))
			for tf := range bars {
				tfs = append(tfs, tf)
			}
			sort.Slice(tfs, func(i, j int) bool { return string(tfs[i]) < string(tfs[j]) })
			for _, tf := range tfs {
				b := bars[tf]
				fmt.Printf("%-12s bars[%s]: %d rows (%s .. %s)\n", "", tf, b.RowCount, b.StartTime.Format("2006-01-02"), b.EndTime.Format("2006-01-02"))
			}
		}
	}
	return 0
}

func cmdRender(args []string) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dataRoot := fs.String("data-root", "./data", "collector root containing ticks/ and bars/")
	symbol := fs.String("symbol", "", "symbol to index (required)")
	sidecar := fs.String("sidecar", "", "sidecar path override (defaults under data-root)")
	clean := fs.Bool("clean", false, "discard any existing sidecar before rendering")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "render: -symbol is required")
		return 1
	}

	path := *sidecar
	if path == "" {
		path = filepath.Join(*dataRoot, *symbol+".parquet_index.json")
	}
	if *clean {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "render: removing %s: %v\n", path, err)
			return 1
		}
	}

	idx, err := scanSymbol(*dataRoot, *symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		return 1
	}
	if err := idx.Save(path); err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		return 1
	}
	fmt.Printf("rendered index for %s at %s (%d tick files)\n", *symbol, path, len(idx.Ticks[*symbol]))
	return 0
}

// scanSymbol walks the conventional ticks/<symbol> and bars/<symbol>
// directories under dataRoot and builds a fresh index from file metadata
// alone (row counts are left at zero; a collector-specific importer fills
// them in when it writes the file).
func scanSymbol(dataRoot, symbol string) (*tickstore.Index, error) {
	idx := &tickstore.Index{Ticks: map[string][]tickstore.TickFileEntry{}, Bars: map[string]map[timeframe.Name]tickstore.BarFileEntry{}}

	tickDir := tickstore.TickFilesDir(dataRoot, symbol)
	entries, err := os.ReadDir(tickDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", tickDir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		idx.AddTickFile(symbol, tickstore.TickFileEntry{
			Path:    filepath.Join(tickDir, e.Name()),
			ModTime: info.ModTime(),
		})
	}

	barDir := tickstore.BarFilesDir(dataRoot, symbol)
	barEntries, err := os.ReadDir(barDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", barDir, err)
	}
	for _, e := range barEntries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		tf := timeframe.Name(trimExt(e.Name()))
		idx.AddBarFile(symbol, tf, tickstore.BarFileEntry{
			Path:    filepath.Join(barDir, e.Name()),
			ModTime: info.ModTime(),
		})
	}

	return idx, nil
}

func trimExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
