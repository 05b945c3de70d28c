package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [dataset]",
	Short: "List datasets, or describe one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return listDatasets(cmd.OutOrStdout())
		}
		return describe(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func listDatasets(w io.Writer) error {
	names, err := app.db.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return nil
}

func describe(ctx context.Context, w io.Writer, name string) error {
	st, err := app.db.Open(ctx, name)
	if err != nil {
		return err
	}
	sc, err := st.Schema(ctx)
	if err != nil {
		return err
	}
	env, err := st.Envelope(ctx)
	if err != nil {
		return err
	}
	n, err := st.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "dataset:  %s\n", name)
	fmt.Fprintf(w, "geometry: %s %s\n", sc.Geometry.Kind, sc.Geometry.Layout)
	if sc.CRS != nil {
		fmt.Fprintf(w, "crs:      %s\n", sc.CRS)
	}
	fmt.Fprintf(w, "charset:  %s\n", sc.Charset)
	fmt.Fprintf(w, "features: %d\n", n)
	if !env.IsEmpty() {
		fmt.Fprintf(w, "extent:   %g %g, %g %g\n", env.MinX, env.MinY, env.MaxX, env.MaxY)
	}
	fmt.Fprintln(w, "fields:")
	for _, fd := range sc.Fields {
		fmt.Fprintf(w, "  %-10s %s(%d", fd.Name, fd.Type, fd.Length)
		if fd.Decimals > 0 {
			fmt.Fprintf(w, ",%d", fd.Decimals)
		}
		fmt.Fprintf(w, ")  %s\n", fd.Class)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
