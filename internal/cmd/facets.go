package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/app"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var facetsCmd = &cobra.Command{
	Use:   "facets <facet>",
	Short: "List the options of a filter facet",
	Long: `Facets lists the values the backend offers for one filter, narrowed by the
other filters given with --filter. The facet's own filter is never sent.

Facets: towns, zoning, unit-types, owner-cities, owner-states

Examples:
  parcelmap facets towns
  parcelmap facets zoning --filter town=Bridgeport`,
	Args: cobra.ExactArgs(1),
	RunE: runFacets,
}

func init() {
	rootCmd.AddCommand(facetsCmd)

	facetsCmd.Flags().StringArray("filter", nil, "Filter as key=value (repeatable)")

	if err := viper.BindPFlag("facets.filter", facetsCmd.Flags().Lookup("filter")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func runFacets(cmd *cobra.Command, args []string) error {
	facet, err := api.ParseFacet(args[0])
	if err != nil {
		return err
	}
	events, err := filterEvents(nil, viper.GetStringSlice("facets.filter"))
	if err != nil {
		return err
	}

	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	store := filters.NewStore(logger)
	for _, ev := range events {
		set := ev.(app.FilterSet)
		if _, err := store.Set(set.Key, set.Values...); err != nil {
			return err
		}
	}
	q := url.Values{}
	store.State().Encode(q, app.FacetKey(facet))

	ctx, cancel := context.WithTimeout(cmd.Context(), svc.cfg.Query.Timeout)
	defer cancel()
	opts, err := svc.client.FacetOptions(ctx, facet, q)
	if err != nil {
		return fmt.Errorf("%s: %s", facet, api.UserMessage(err))
	}

	out := cmd.OutOrStdout()
	for _, o := range opts {
		if o.Count != nil {
			fmt.Fprintf(out, "%s\t%d\n", o.Value, *o.Count)
		} else {
			fmt.Fprintln(out, o.Value)
		}
	}
	logger.Debug("facet options", "facet", facet, "options", len(opts), "filters", q.Encode())
	return nil
}
