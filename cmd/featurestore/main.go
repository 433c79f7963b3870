// Command featurestore inspects the versioned feature sets written by the
// pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/okian/pitwall/internal/adapters/repository"
	types "github.com/okian/pitwall/internal/domain/types"
	"github.com/okian/pitwall/internal/featurestore"
	"github.com/okian/pitwall/internal/models"
	"github.com/okian/pitwall/pkg/logger"
)

const defaultPath = "data/features"

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			os.Stderr.WriteString("featurestore: " + err.Error() + "\n")
		}
		os.Exit(1)
	}
}

type options struct {
	path       string
	list       bool
	describe   string
	version    string
	importance string
	ratings    string
	target     string
	asJSON     bool
	verbose    bool
}

func parse(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("featurestore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.path, "path", defaultPath, "Feature store base directory")
	fs.BoolVar(&o.list, "list", false, "List every saved feature set, newest first")
	fs.StringVar(&o.describe, "describe", "", "Show the metadata of a feature set")
	fs.StringVar(&o.version, "version", featurestore.Latest, "Version (YYYYMMDD_HHMMSS) for -describe and -importance")
	fs.StringVar(&o.importance, "importance", "", "Show per-feature statistics of a feature set")
	fs.StringVar(&o.ratings, "ratings", "", "Show the driver table of a saved rating model file")
	fs.StringVar(&o.target, "target", "position", "Target column excluded from -importance")
	fs.BoolVar(&o.asJSON, "json", false, "Print JSON instead of a table")
	fs.BoolVar(&o.verbose, "verbose", false, "Log store operations to stderr")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: featurestore [-path dir] (-list | -describe name [-version v] | -importance name [-version v] | -ratings file) [-json]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	n := 0
	for _, set := range []bool{o.list, o.describe != "", o.importance != "", o.ratings != ""} {
		if set {
			n++
		}
	}
	if n != 1 {
		fs.Usage()
		return o, fmt.Errorf("%w: exactly one of -list, -describe, -importance, -ratings is required", errUsage)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parse(args, stderr)
	if err != nil {
		return err
	}
	lg := logger.Nop()
	if o.verbose {
		if err := logger.InitWithWriter(stderr); err != nil {
			return err
		}
		lg = logger.Named("featurestore")
	}
	store, err := featurestore.NewStore(o.path, featurestore.WithLogger(lg))
	if err != nil {
		return err
	}

	switch {
	case o.list:
		entries, err := store.List(ctx)
		if err != nil {
			return err
		}
		if o.asJSON {
			return writeJSON(stdout, entries)
		}
		return printList(stdout, entries)
	case o.describe != "":
		meta, err := store.LoadMetadata(ctx, o.describe, o.version)
		if err != nil {
			return err
		}
		if o.asJSON {
			return writeJSON(stdout, meta)
		}
		return printMetadata(stdout, meta)
	case o.ratings != "":
		m, err := models.LoadRatingModel(ctx, o.ratings,
			models.WithBoard(repository.NewBoard()), models.WithRatingLogger(lg))
		if err != nil {
			return err
		}
		ranked, err := m.CurrentRankings(ctx)
		if err != nil {
			return err
		}
		entries := make([]types.RatingEntry, len(ranked))
		for i, e := range ranked {
			entries[i] = types.RatingEntry{Rank: e.Rank, DriverID: e.DriverID, Rating: e.Rating}
		}
		if o.asJSON {
			return writeJSON(stdout, entries)
		}
		return printRatings(stdout, entries)
	default:
		f, err := store.Load(ctx, o.importance, o.version)
		if err != nil {
			return err
		}
		stats := featurestore.FeatureImportance(f, o.target)
		if o.asJSON {
			return writeJSON(stdout, stats)
		}
		return printImportance(stdout, stats)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printList(w io.Writer, entries []featurestore.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no feature sets")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tSIZE (MB)\tFILE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", e.Name, e.Timestamp, e.SizeMB, e.Filename)
	}
	return tw.Flush()
}

func printMetadata(w io.Writer, m *featurestore.Metadata) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "name\t%s\n", m.Name)
	fmt.Fprintf(tw, "version\t%s\n", m.Timestamp)
	fmt.Fprintf(tw, "created\t%s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(tw, "rows\t%d\n", m.Rows)
	fmt.Fprintf(tw, "columns\t%d\n", m.Columns)
	fmt.Fprintf(tw, "path\t%s\n", m.Path)
	if len(m.Params) > 0 {
		keys := make([]string, 0, len(m.Params))
		for k := range m.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, m.Params[k])
		}
		fmt.Fprintf(tw, "parameters\t%s\n", strings.Join(parts, " "))
	}
	fmt.Fprintln(tw, "\nCOLUMN\tTYPE")
	for _, c := range m.ColumnNames {
		fmt.Fprintf(tw, "%s\t%s\n", c, m.ColumnTypes[c])
	}
	return tw.Flush()
}

func printImportance(w io.Writer, stats []featurestore.Importance) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "FEATURE\tMEAN\tSTD\tMIN\tMAX\tMISSING %\tCOUNT\t")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.1f\t%d\t\n", s.Feature, s.Mean, s.Std, s.Min, s.Max, s.MissingPct, s.Count)
	}
	return tw.Flush()
}

func printRatings(w io.Writer, entries []types.RatingEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tDRIVER\tRATING")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%.1f\n", e.Rank, e.DriverID, e.Rating)
	}
	return tw.Flush()
}
