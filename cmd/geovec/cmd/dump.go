package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tuannm99/geovec/internal/engine"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/record"
	"github.com/tuannm99/geovec/server/httpapi"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <dataset>",
	Short: "Print features as GeoJSON, one per line",
	Long: `Print the live features of a dataset as newline-delimited GeoJSON.

Example:
  geovec dump roads --bbox 0,0,10,10 --limit 5 --properties name,kind`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var q engine.Query
		if raw, _ := cmd.Flags().GetString("bbox"); raw != "" {
			env, err := parseBBox(raw)
			if err != nil {
				return err
			}
			q.BBox = &env
		}
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.Properties, _ = cmd.Flags().GetStringSlice("properties")
		return dump(cmd.Context(), cmd.OutOrStdout(), args[0], q)
	},
}

func dump(ctx context.Context, w io.Writer, name string, q engine.Query) error {
	st, err := app.db.Open(ctx, name)
	if err != nil {
		return err
	}
	r, err := st.NewReader(ctx, q)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	enc := json.NewEncoder(w)
	return r.Scan(func(f *record.Feature) error {
		return enc.Encode(httpapi.NewFeatureDoc(f))
	})
}

func parseBBox(raw string) (geom.Envelope, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geom.Envelope{}, fmt.Errorf("bbox wants minx,miny,maxx,maxy, got %q", raw)
	}
	var n [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.Envelope{}, fmt.Errorf("bbox: %w", err)
		}
		n[i] = v
	}
	return geom.EnvelopeXY(n[0], n[1], n[2], n[3]), nil
}

func init() {
	dumpCmd.Flags().String("bbox", "", "only features intersecting minx,miny,maxx,maxy")
	dumpCmd.Flags().Int("limit", 0, "stop after this many features")
	dumpCmd.Flags().StringSlice("properties", nil, "attribute columns to print")
	rootCmd.AddCommand(dumpCmd)
}
