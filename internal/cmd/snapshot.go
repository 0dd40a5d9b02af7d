package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/parcelmap/internal/app"
	"github.com/MeKo-Tech/parcelmap/internal/render"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [text]",
	Short: "Render the map of a viewport to a PNG",
	Long: `Snapshot renders one map frame with the parcels of the viewport query, or
of a text search when text is given, and writes it as PNG.

The frame goes through the same backend adapter as the interactive client:
when the primary map backend cannot be used the fallback draws it and the
reason is printed.

Examples:
  parcelmap snapshot --lat 41.1792 --lng -73.1894 --zoom 16 --out bridgeport.png
  parcelmap snapshot --town Fairfield --out - > fairfield.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringP("out", "o", "parcelmap.png", "Output PNG file (- for stdout)")
	snapshotCmd.Flags().Float64("lat", 0, "Center latitude (default from map.center_lat)")
	snapshotCmd.Flags().Float64("lng", 0, "Center longitude (default from map.center_lng)")
	snapshotCmd.Flags().Float64("zoom", 0, "Zoom level (default from map.zoom)")
	snapshotCmd.Flags().Int("width", 0, "Frame width in pixels (default from map.width)")
	snapshotCmd.Flags().Int("height", 0, "Frame height in pixels (default from map.height)")
	snapshotCmd.Flags().String("mode", string(types.SearchAddressTown), "Search bar of the text")
	snapshotCmd.Flags().StringSlice("town", nil, "Restrict to towns (repeatable)")
	snapshotCmd.Flags().StringArray("filter", nil, "Filter as key=value (repeatable)")
	snapshotCmd.Flags().Bool("no-labels", false, "Do not draw parcel labels")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, snapshotCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
	mustBind("snapshot.out", "out")
	mustBind("snapshot.lat", "lat")
	mustBind("snapshot.lng", "lng")
	mustBind("snapshot.zoom", "zoom")
	mustBind("snapshot.width", "width")
	mustBind("snapshot.height", "height")
	mustBind("snapshot.mode", "mode")
	mustBind("snapshot.town", "town")
	mustBind("snapshot.filter", "filter")
	mustBind("labels.disabled", "no-labels")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	mode, err := types.ParseSearchMode(viper.GetString("snapshot.mode"))
	if err != nil {
		return err
	}
	events, err := filterEvents(viper.GetStringSlice("snapshot.town"), viper.GetStringSlice("snapshot.filter"))
	if err != nil {
		return err
	}

	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	width, height := svc.cfg.Map.Width, svc.cfg.Map.Height
	if w := viper.GetInt("snapshot.width"); w > 0 {
		width = w
	}
	if h := viper.GetInt("snapshot.height"); h > 0 {
		height = h
	}
	if width > render.MaxFrameSize || height > render.MaxFrameSize {
		return fmt.Errorf("frame size %dx%d exceeds %d", width, height, render.MaxFrameSize)
	}

	center := svc.cfg.Map.Center()
	if cmd.Flags().Changed("lat") {
		center.Lat = viper.GetFloat64("snapshot.lat")
	}
	if cmd.Flags().Changed("lng") {
		center.Lng = viper.GetFloat64("snapshot.lng")
	}
	zoom := svc.cfg.Map.Zoom
	if cmd.Flags().Changed("zoom") {
		zoom = viper.GetFloat64("snapshot.zoom")
	}
	if center.Lat < -85.0511 || center.Lat > 85.0511 || center.Lng < -180 || center.Lng > 180 {
		return fmt.Errorf("center %s out of range", center)
	}
	if zoom < 0 || zoom > 22 {
		return fmt.Errorf("zoom %.2f out of range 0-22", zoom)
	}

	sess := svc.newSession(svc.adapter)
	defer func() { _ = sess.Close() }()

	events = append([]app.Event{
		app.Resized{Width: width, Height: height},
		app.RecenterRequested{Center: center, Zoom: zoom},
	}, events...)
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
		logger.Warn("query failed, rendering the map without parcels", "error", snap.Query.Error)
	}
	if snap.Frame == nil {
		if snap.RenderError != "" {
			return errors.New(snap.RenderError)
		}
		return errors.New("no frame rendered")
	}

	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, snap.Frame.Image); err != nil {
		return err
	}
	out := viper.GetString("snapshot.out")
	if out == "-" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d) backend=%s parcels=%d\n",
		out, width, height, snap.Backend.Active, len(snap.Sidebar.Items))
	if snap.Backend.FallbackReason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "fallback: %s\n", snap.Backend.FallbackReason)
	}
	if snap.Frame.Attribution != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", snap.Frame.Attribution)
	}
	return nil
}
