package cmd

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/MeKo-Tech/parcelmap/internal/app"
	"github.com/MeKo-Tech/parcelmap/internal/config"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/geojson"
	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Run one property search and print the results",
	Long: `Search runs the same strategy selection as the interactive client:
a town filter wins over free text, free text over a lead type, and a lead
type over the map bounds.

Examples:
  parcelmap search --town Bridgeport --filter zoning=RS-1
  parcelmap search --mode owner "Smith"
  parcelmap search --bbox -73.25,41.15,-73.10,41.25 --format geojson`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("mode", string(types.SearchAddressTown), "Search bar of the text: address_town, owner, mailing_address")
	searchCmd.Flags().StringSlice("town", nil, "Restrict to towns (repeatable)")
	searchCmd.Flags().StringArray("filter", nil, "Filter as key=value (repeatable)")
	searchCmd.Flags().String("bbox", "", "Search area minLon,minLat,maxLon,maxLat (default: configured viewport)")
	searchCmd.Flags().String("format", "table", "Output format: table or geojson")
	searchCmd.Flags().Int("page-size", 0, "Results per page (default from query.page_size)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"search.mode", "mode"},
		{"search.town", "town"},
		{"search.filter", "filter"},
		{"search.bbox", "bbox"},
		{"search.format", "format"},
		{"query.page_size", "page-size"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, searchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	format := viper.GetString("search.format")
	if format != "table" && format != "geojson" {
		return fmt.Errorf("invalid format %q: must be 'table' or 'geojson'", format)
	}
	mode, err := types.ParseSearchMode(viper.GetString("search.mode"))
	if err != nil {
		return err
	}
	events, err := filterEvents(viper.GetStringSlice("search.town"), viper.GetStringSlice("search.filter"))
	if err != nil {
		return err
	}

	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	sess := svc.newSession(nil)
	defer func() { _ = sess.Close() }()

	if bbox := viper.GetString("search.bbox"); bbox != "" {
		b, err := types.ParseBoundingBox(bbox)
		if err != nil {
			return err
		}
		center, zoom := fitBounds(b, svc.cfg.Map.Width, svc.cfg.Map.Height)
		events = append(events, app.RecenterRequested{Center: center, Zoom: zoom})
	}
	if len(args) == 1 {
		events = append(events,
			app.SearchInput{Mode: mode, Text: args[0]},
			app.SearchSubmitted{Mode: mode},
		)
	}

	snap, err := runEvents(sess, svc.cfg, events)
	if err != nil {
		return err
	}
	if snap.Query.Error != "" {
		return errors.New(snap.Query.Error)
	}

	results := snap.Query.Results
	logger.Info("search finished",
		"strategy", snap.Query.Strategy,
		"results", len(results),
		"total", snap.Query.Total)

	out := cmd.OutOrStdout()
	if format == "geojson" {
		data, err := geojson.ToGeoJSONBytes(results)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	writeTable(out, results)
	fmt.Fprintf(out, "%s | strategy %s | %d of %d\n", geojson.Summary(results), snap.Query.Strategy, len(results), snap.Query.Total)
	return nil
}

// runEvents starts a session, replays events and runs every effect to completion.
func runEvents(sess *app.Session, cfg *config.Config, events []app.Event) (app.Snapshot, error) {
	effects := sess.Start()
	for _, ev := range events {
		effects = append(effects, sess.Handle(ev)...)
	}
	if err := drain(sess, effects, drainTimeout(cfg)); err != nil {
		return app.Snapshot{}, err
	}
	snap := sess.Snapshot()
	if snap.Notice != "" {
		return snap, errors.New(snap.Notice)
	}
	return snap, nil
}

// filterEvents turns --town and key=value flags into filter events.
func filterEvents(towns, pairs []string) ([]app.Event, error) {
	var events []app.Event
	if len(towns) > 0 {
		events = append(events, app.FilterSet{Key: filters.Town, Values: towns})
	}
	grouped := make(map[filters.Key][]string)
	var order []filters.Key
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("invalid filter %q: want key=value", pair)
		}
		key, err := filters.ParseKey(strings.TrimSpace(k))
		if err != nil {
			return nil, err
		}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], strings.TrimSpace(v))
	}
	for _, k := range order {
		events = append(events, app.FilterSet{Key: k, Values: grouped[k]})
	}
	return events, nil
}

// fitBounds returns the center and the largest zoom at which b fits a
// width x height frame.
func fitBounds(b types.BoundingBox, width, height int) (types.LatLng, float64) {
	x0, y0 := tile.ToPixel(types.LatLng{Lat: b.MaxLat, Lng: b.MinLon}, 0)
	x1, y1 := tile.ToPixel(types.LatLng{Lat: b.MinLat, Lng: b.MaxLon}, 0)
	dx, dy := math.Abs(x1-x0), math.Abs(y1-y0)
	zoom := 22.0
	if dx > 0 {
		zoom = math.Min(zoom, math.Log2(float64(width)/dx))
	}
	if dy > 0 {
		zoom = math.Min(zoom, math.Log2(float64(height)/dy))
	}
	return b.Center(), math.Max(0, math.Floor(zoom*100)/100)
}

func writeTable(w io.Writer, props []types.Property) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "ADDRESS", "TOWN", "OWNER", "ZONING", "ASSESSED")
	for _, p := range props {
		assessed := ""
		if p.Attributes.AssessedValue > 0 {
			assessed = fmt.Sprintf("%.0f", p.Attributes.AssessedValue)
		}
		t.Row(p.ID, p.Address, p.Municipality, p.Attributes.OwnerName, p.Attributes.Zoning, assessed)
	}
	fmt.Fprintln(w, t.Render())
}
