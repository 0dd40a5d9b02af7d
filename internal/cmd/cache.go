package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/MeKo-Tech/parcelmap/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// maxWarmTiles guards against warming whole countries by accident.
const maxWarmTiles = 50000

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the MBTiles tile caches",
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Prefetch map tiles for an area into the cache",
	Long: `Warm fetches every tile of a bounding box and zoom range from one map
backend and stores it in that backend's MBTiles cache (--cache-dir).

Examples:
  parcelmap cache warm --cache-dir ./tiles --bbox -73.25,41.15,-73.10,41.25 --zoom-max 16
  parcelmap cache warm --cache-dir ./tiles --backend primary --map-token $TOKEN --bbox ...`,
	RunE: runCacheWarm,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show tile counts and metadata of the caches",
	RunE:  runCacheInfo,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheWarmCmd, cacheInfoCmd)

	cacheWarmCmd.Flags().String("bbox", "", "Area minLon,minLat,maxLon,maxLat (required)")
	cacheWarmCmd.Flags().Int("zoom-min", 10, "Lowest zoom level")
	cacheWarmCmd.Flags().Int("zoom-max", 15, "Highest zoom level")
	cacheWarmCmd.Flags().String("backend", string(types.BackendFallback), "Backend to warm: primary or fallback")
	cacheWarmCmd.Flags().Int("workers", runtime.NumCPU(), "Parallel tile fetches")
	cacheWarmCmd.Flags().Bool("quiet", false, "Do not draw the progress bar")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"cache.bbox", "bbox"},
		{"cache.zoom_min", "zoom-min"},
		{"cache.zoom_max", "zoom-max"},
		{"cache.backend", "backend"},
		{"cache.workers", "workers"},
		{"cache.quiet", "quiet"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, cacheWarmCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runCacheWarm(cmd *cobra.Command, args []string) error {
	bboxStr := viper.GetString("cache.bbox")
	if bboxStr == "" {
		return errors.New("--bbox is required")
	}
	bbox, err := types.ParseBoundingBox(bboxStr)
	if err != nil {
		return err
	}
	zoomMin, zoomMax := viper.GetInt("cache.zoom_min"), viper.GetInt("cache.zoom_max")
	if zoomMin < 0 || zoomMax > 22 || zoomMin > zoomMax {
		return fmt.Errorf("invalid zoom range %d-%d", zoomMin, zoomMax)
	}
	coords := tile.TilesInBBox(bbox, zoomMin, zoomMax)
	if len(coords) > maxWarmTiles {
		return fmt.Errorf("%d tiles exceed the limit of %d, narrow --bbox or --zoom-max", len(coords), maxWarmTiles)
	}

	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if svc.cfg.Map.CacheDir == "" {
		return errors.New("cache warm needs --cache-dir")
	}
	kind := types.BackendKind(viper.GetString("cache.backend"))
	backend, err := svc.backend(kind)
	if err != nil {
		return err
	}
	if err := backend.Init(cmd.Context()); err != nil {
		return err
	}

	logger.Info("warming tile cache",
		"backend", kind,
		"bbox", bbox,
		"zoom", fmt.Sprintf("%d-%d", zoomMin, zoomMax),
		"tiles", len(coords),
		"cache", svc.caches[kind].Path())

	progress := worker.NewProgress(os.Stderr, len(coords), viper.GetBool("cache.quiet"))
	pool := worker.New(worker.Config{
		Workers:    viper.GetInt("cache.workers"),
		Fetcher:    backend,
		OnProgress: progress.Callback(),
	})
	results := pool.Run(cmd.Context(), coords)
	progress.Done()

	failed := worker.Failed(results)
	for i, r := range failed {
		if i == 10 {
			logger.Warn("more tiles failed", "count", len(failed)-i)
			break
		}
		logger.Warn("tile failed", "tile", r.Coords, "error", r.Err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), progress.Summary())
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d tiles failed", len(failed), len(coords))
	}
	return nil
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if len(svc.caches) == 0 {
		return errors.New("no tile cache configured, set --cache-dir")
	}
	out := cmd.OutOrStdout()
	for _, kind := range []types.BackendKind{types.BackendPrimary, types.BackendFallback} {
		cache, ok := svc.caches[kind]
		if !ok {
			continue
		}
		n, err := cache.Count(cmd.Context())
		if err != nil {
			return err
		}
		meta, err := cache.Metadata(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-8s %s\n", kind, cache.Path())
		fmt.Fprintf(out, "         tiles: %d\n", n)
		if meta.Name != "" {
			fmt.Fprintf(out, "         name: %s\n", meta.Name)
		}
		if meta.Attribution != "" {
			fmt.Fprintf(out, "         attribution: %s\n", meta.Attribution)
		}
	}
	return nil
}
