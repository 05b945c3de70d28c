package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/record"
)

var createCmd = &cobra.Command{
	Use:   "create <dataset>",
	Short: "Create an empty dataset",
	Long: `Create an empty dataset, replacing one of the same name.

Fields are name:type:length[:decimals] with type one of C, N, F, L, D.

Example:
  geovec create cities --kind Point --field name:C:40 --field pop:N:10 --srid 4326`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kindName, _ := cmd.Flags().GetString("kind")
		layoutName, _ := cmd.Flags().GetString("layout")
		specs, _ := cmd.Flags().GetStringArray("field")
		srid, _ := cmd.Flags().GetInt32("srid")
		charset, _ := cmd.Flags().GetString("charset")

		kind, ok := geom.ParseKind(kindName)
		if !ok {
			return fmt.Errorf("unknown geometry kind %q", kindName)
		}
		layout, err := parseLayout(layoutName)
		if err != nil {
			return err
		}
		sc := &record.Schema{
			Geometry: record.GeometryBinding{Kind: kind, Layout: layout},
			Charset:  charset,
		}
		for _, s := range specs {
			fd, err := parseField(s)
			if err != nil {
				return err
			}
			sc.Fields = append(sc.Fields, fd)
		}
		if srid != 0 {
			if sc.CRS, err = app.db.Resolver().Resolve(srid); err != nil {
				return err
			}
		}
		if _, err := app.db.Create(cmd.Context(), args[0], sc); err != nil {
			return err
		}
		return describe(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func parseLayout(s string) (geom.Layout, error) {
	for _, l := range []geom.Layout{geom.XY, geom.XYZ, geom.XYM, geom.XYZM} {
		if strings.EqualFold(l.String(), s) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown layout %q", s)
}

// parseField reads name:type:length[:decimals].
func parseField(s string) (dbf.FieldDescriptor, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 4 || len(parts[1]) != 1 {
		return dbf.FieldDescriptor{}, fmt.Errorf("field %q: want name:type:length[:decimals]", s)
	}
	t := dbf.FieldType(strings.ToUpper(parts[1])[0])
	length, decimals := 0, 0
	switch t {
	case dbf.Logical:
		length = dbf.LogicalLen
	case dbf.Date:
		length = dbf.DateLen
	}
	var err error
	if len(parts) > 2 {
		if length, err = strconv.Atoi(parts[2]); err != nil {
			return dbf.FieldDescriptor{}, fmt.Errorf("field %q: length: %w", s, err)
		}
	}
	if len(parts) > 3 {
		if decimals, err = strconv.Atoi(parts[3]); err != nil {
			return dbf.FieldDescriptor{}, fmt.Errorf("field %q: decimals: %w", s, err)
		}
	}
	return dbf.NewField(parts[0], t, length, decimals)
}

func init() {
	createCmd.Flags().String("kind", "Point", "geometry kind, e.g. Point, LineString, Polygon, MultiPoint")
	createCmd.Flags().String("layout", "XY", "XY, XYZ, XYM or XYZM")
	createCmd.Flags().StringArray("field", nil, "attribute column, repeatable")
	createCmd.Flags().Int32("srid", 0, "reference system id written to the .prj")
	createCmd.Flags().String("charset", "", "table charset (defaults to the configured one)")
	rootCmd.AddCommand(createCmd)
}
