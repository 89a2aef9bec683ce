package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/nbi/types"
	"github.com/signalsfoundry/avue/internal/render"
	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/model"
	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one search and print the visible supports",
		Example: `  avue search --lat 45.1885 --lon 5.7245 --radius 5
  avue search --lat 45.1885 --lon 5.7245 --supports-file supports.yaml --geojson out.geojson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			geoPath, _ := cmd.Flags().GetString("geojson")
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := newLogger(cfg.Log)
			a, err := newApp(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer a.orch.Close()

			point := model.InstallationPoint{
				Location: model.Coordinate{Lat: lat, Lon: lon},
				HeightM:  cfg.Search.InstallationHeightM,
			}
			snap, err := runSearch(ctx, a, point, cfg.Search.DefaultRadiusKm, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if geoPath != "" {
				if err := writeGeoJSON(geoPath, snap); err != nil {
					return err
				}
				log.Info(ctx, "wrote GeoJSON", logging.String("path", geoPath))
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(types.SnapshotFromModel(snap, false))
			}
			return printSummary(cmd.OutOrStdout(), snap)
		},
	}
	f := cmd.Flags()
	f.Float64("lat", 0, "Installation point latitude")
	f.Float64("lon", 0, "Installation point longitude")
	f.Float64("height", 0, "Installation height above ground in metres")
	f.Float64("radius", 0, "Search radius in kilometres")
	f.String("geojson", "", "Write the result map as GeoJSON to this file")
	f.Bool("json", false, "Print the snapshot as JSON")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

// runSearch starts a search, reports progress to progress and returns the
// final board once the search is done.
func runSearch(ctx context.Context, a *app, point model.InstallationPoint, radiusKm float64, progress io.Writer) (kb.Snapshot, error) {
	// Subscribers run under the board lock; the loop below does the printing.
	changed := make(chan struct{}, 1)
	unsubscribe := a.board.Subscribe(func(kb.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	sess, err := a.orch.Start(ctx, point, radiusKm)
	if err != nil {
		return kb.Snapshot{}, err
	}

	var last kb.Progress
	for {
		select {
		case <-ctx.Done():
			sess.Cancel()
			<-sess.Done()
			return kb.Snapshot{}, ctx.Err()
		case <-sess.Done():
		case <-changed:
			if p := sess.Progress(); p != last && p.Total > 0 {
				fmt.Fprintf(progress, "processed %d/%d\n", p.Processed, p.Total)
				last = p
			}
			continue
		}
		break
	}

	status, err := sess.Result()
	if status != kb.StatusDone {
		if err == nil {
			err = fmt.Errorf("search ended with status %s", status)
		}
		return kb.Snapshot{}, err
	}
	return a.board.Snapshot(), nil
}

func printSummary(w io.Writer, snap kb.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SUPPORT\tDISTANCE\tVISIBLE\tMASKED\tICON\n")
	for _, res := range snap.Results {
		fmt.Fprintf(tw, "%s\t%.2f km\t%s\t%s\t%s\n",
			res.Support.ID,
			res.DistanceKm,
			joinOperators(res.Visible),
			joinOperators(res.Masked),
			render.MarkerFor(res).Icon,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, f := range snap.Failures {
		fmt.Fprintf(w, "failed %s (%s): %s\n", f.SupportID, f.Kind, f.Reason)
	}
	if snap.Message != "" {
		fmt.Fprintln(w, snap.Message)
	}
	return nil
}

func joinOperators(ops []model.Operator) string {
	if len(ops) == 0 {
		return "-"
	}
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = string(op)
	}
	return strings.Join(names, ",")
}

func writeGeoJSON(path string, snap kb.Snapshot) error {
	data, err := render.FeatureCollection(snap).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
