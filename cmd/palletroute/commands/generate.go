package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"palletroute/internal/instance"
)

func (a *app) generateCmd() *cobra.Command {
	opts := instance.DefaultGenerateOptions()
	var format, output, geometry string
	cmd := &cobra.Command{
		Use:   "generate --customers N --seed S",
		Short: "Generate a random instance",
		Example: `  palletroute generate --customers 20 --seed 7 --output inst_20.yaml
  palletroute generate --customers 50 --geometry clustered --split-fraction 0.2 --format dzn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Geometry = instance.Geometry(geometry)
			inst, err := instance.Generate(opts)
			if err != nil {
				return err
			}
			f := instance.Format(format)
			if f == "" && output != "" {
				f = instance.FormatFor(output)
			}
			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return instance.Encode(w, inst, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.Name, "name", "", "instance name (default derived from geometry, size and seed)")
	fs.IntVarP(&opts.Customers, "customers", "n", 10, "number of customers")
	fs.Int64Var(&opts.Seed, "seed", 1, "random seed")
	fs.StringVar(&geometry, "geometry", string(opts.Geometry), "customer placement: uniform, clustered or mixed")
	fs.Float64Var(&opts.AreaSize, "area", opts.AreaSize, "side of the square area")
	fs.IntVar(&opts.Capacity, "capacity", 0, "vehicle capacity in pallets (0: derive from target vehicles)")
	fs.IntVar(&opts.TargetVehicles, "target-vehicles", 0, "vehicles the derived capacity aims for")
	fs.IntVar(&opts.NbVehicles, "vehicles", 0, "fleet size written to the instance")
	fs.IntVar(&opts.BinCapacity, "bin-capacity", opts.BinCapacity, "pallet capacity")
	fs.IntVar(&opts.MinItems, "min-items", opts.MinItems, "minimum items per customer")
	fs.IntVar(&opts.MaxItems, "max-items", opts.MaxItems, "maximum items per customer")
	fs.Float64Var(&opts.SplitFraction, "split-fraction", 0, "share of customers forced above one truckload")
	fs.StringVarP(&format, "format", "f", "", "output format: json, yaml or dzn (default from --output, else json)")
	fs.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
