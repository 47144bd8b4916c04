// Package main provides the vantage CLI entry point.
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orneryd/vantage/pkg/config"
	"github.com/orneryd/vantage/pkg/device"
	"github.com/orneryd/vantage/pkg/simd"
	"github.com/orneryd/vantage/pkg/store"
	"github.com/orneryd/vantage/pkg/vptree"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vantage",
		Short: "Vantage - Exact nearest-neighbor search over device-mirrored VP-trees",
		Long: `Vantage builds exact nearest-neighbor indexes from vantage-point trees
and answers query batches with data-parallel workers over a device-mirrored,
read-only tree.

Features:
  • Exact 1-nearest-neighbor, batch order never changes results
  • Host and Vulkan compute backends with automatic fallback
  • Pluggable metrics (euclidean, sqeuclidean, manhattan)
  • Persistent snapshot store`,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file path (default: auto-detect)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := fmt.Sprintf("v%s", version)
			if commit != "dev" && commit != "" {
				info = fmt.Sprintf("v%s-%s", version, commit)
			}
			if buildTime != "unknown" && buildTime != "" {
				info = fmt.Sprintf("%s (built: %s)", info, buildTime)
			}
			fmt.Printf("Vantage %s\n", info)
			sinfo := simd.Info()
			fmt.Printf("SIMD: %s (accelerated: %v, features: %s)\n",
				sinfo.Implementation, sinfo.Accelerated, strings.Join(sinfo.Features, ", "))
		},
	})

	// Devices command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List usable compute backends",
		Run: func(cmd *cobra.Command, args []string) {
			for _, info := range device.Probe() {
				if info.Backend == device.BackendHost {
					fmt.Printf("%-8s %s\n", info.Backend, info.Name)
					continue
				}
				fmt.Printf("%-8s [%d] %s (%d MB)\n", info.Backend, info.DeviceID, info.Name, info.MemoryMB)
			}
		},
	})

	// Build command
	buildCmd := &cobra.Command{
		Use:   "build [points.csv]",
		Short: "Build an index from a CSV of points and persist it",
		Long: `Build reads one point per CSV row (float32 coordinates, uniform column
count), constructs the index on the configured backend, and saves a named
snapshot into the snapshot store.`,
		Args: cobra.ExactArgs(1),
		RunE: runBuild,
	}
	buildCmd.Flags().String("name", "default", "Snapshot name")
	buildCmd.Flags().String("metric", "", "Distance metric (default from config)")
	buildCmd.Flags().String("backend", "", "Compute backend: auto, host, vulkan")
	buildCmd.Flags().String("data-dir", "", "Snapshot store directory")
	rootCmd.AddCommand(buildCmd)

	// Search command
	searchCmd := &cobra.Command{
		Use:   "search [queries.csv]",
		Short: "Search a persisted index with a CSV of queries",
		Long: `Search restores a named snapshot from the store and resolves every query
row to its exact nearest point. Results are written to stdout as CSV rows of
"index,distance", aligned with the input rows.`,
		Args: cobra.ExactArgs(1),
		RunE: runSearch,
	}
	searchCmd.Flags().String("name", "default", "Snapshot name")
	searchCmd.Flags().String("backend", "", "Compute backend: auto, host, vulkan")
	searchCmd.Flags().String("data-dir", "", "Snapshot store directory")
	rootCmd.AddCommand(searchCmd)

	// Snapshots command
	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Snapshot store operations",
	}
	snapshotsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		RunE:  runSnapshotsList,
	}
	snapshotsListCmd.Flags().String("data-dir", "", "Snapshot store directory")
	snapshotsCmd.AddCommand(snapshotsListCmd)

	snapshotsDeleteCmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotsDelete,
	}
	snapshotsDeleteCmd.Flags().String("data-dir", "", "Snapshot store directory")
	snapshotsCmd.AddCommand(snapshotsDeleteCmd)
	rootCmd.AddCommand(snapshotsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration: defaults, then YAML file,
// then VANTAGE_* environment, then CLI flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if f := cmd.Flags().Lookup("backend"); f != nil && f.Changed {
		cfg.Device.Backend = f.Value.String()
	}
	if f := cmd.Flags().Lookup("metric"); f != nil && f.Changed {
		cfg.Index.Metric = f.Value.String()
	}
	if f := cmd.Flags().Lookup("data-dir"); f != nil && f.Changed {
		cfg.Storage.DataDir = f.Value.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Logging.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func newManager(cfg *config.Config, log zerolog.Logger) (*device.Manager, error) {
	devCfg := device.DefaultConfig()
	devCfg.PreferredBackend = device.Backend(cfg.Device.Backend)
	devCfg.DeviceID = cfg.Device.DeviceID
	devCfg.MaxMemoryMB = cfg.Device.MaxMemoryMB
	devCfg.Logger = log
	return device.NewManager(devCfg)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	name, _ := cmd.Flags().GetString("name")

	points, err := readPointsCSV(args[0])
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("no points in %s", args[0])
	}
	log.Info().Int("points", len(points)).Int("dims", len(points[0])).Str("file", args[0]).Msg("points loaded")

	metric, err := vptree.MetricByName(cfg.Index.Metric)
	if err != nil {
		return err
	}

	manager, err := newManager(cfg, log)
	if err != nil {
		return err
	}
	defer manager.Close()

	tree := vptree.New(manager, metric, &vptree.Options{
		MaxStackDepth: cfg.Index.MaxStackDepth,
		GroupSize:     cfg.Search.GroupSize,
	})
	defer tree.Close()

	start := time.Now()
	if err := tree.Build(points); err != nil {
		return err
	}
	log.Info().
		Dur("elapsed", time.Since(start)).
		Int("depth", tree.Depth()).
		Str("backend", string(manager.Info().Backend)).
		Msg("index built")

	snap, err := tree.Snapshot()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Save(name, snap)
	if err != nil {
		return err
	}
	log.Info().Str("name", rec.Name).Str("id", rec.ID.String()).Msg("snapshot saved")
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	name, _ := cmd.Flags().GetString("name")

	queries, err := readPointsCSV(args[0])
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, rec, err := st.Load(name)
	if err != nil {
		return err
	}
	log.Info().
		Str("name", rec.Name).
		Str("metric", rec.Metric).
		Int("points", rec.Count).
		Msg("snapshot loaded")

	manager, err := newManager(cfg, log)
	if err != nil {
		return err
	}
	defer manager.Close()

	tree, err := vptree.Restore(manager, snap, &vptree.Options{
		MaxStackDepth: cfg.Index.MaxStackDepth,
		GroupSize:     cfg.Search.GroupSize,
	})
	if err != nil {
		return err
	}
	defer tree.Close()

	start := time.Now()
	indices, distances, err := tree.Search(queries)
	if err != nil {
		return err
	}
	log.Info().Int("queries", len(queries)).Dur("elapsed", time.Since(start)).Msg("batch resolved")

	w := csv.NewWriter(os.Stdout)
	for i := range indices {
		rec := []string{
			strconv.FormatInt(int64(indices[i]), 10),
			strconv.FormatFloat(float64(distances[i]), 'g', -1, 32),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no snapshots")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%-20s %8d points %3d dims %-12s %s\n",
			rec.Name, rec.Count, rec.Dims, rec.Metric, rec.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runSnapshotsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	return st.Delete(args[0])
}

// readPointsCSV parses one point per row, requiring a uniform column count.
func readPointsCSV(path string) ([]vptree.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	var points []vptree.Point
	dims := -1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if dims == -1 {
			dims = len(row)
		} else if len(row) != dims {
			return nil, fmt.Errorf("%s: row %d has %d columns, want %d", path, len(points)+1, len(row), dims)
		}

		p := make(vptree.Point, dims)
		for i, field := range row {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d column %d: %w", path, len(points)+1, i+1, err)
			}
			p[i] = float32(v)
		}
		points = append(points, p)
	}
	return points, nil
}
