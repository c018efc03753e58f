package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"palletroute/internal/buildinfo"
	"palletroute/internal/engines"
	"palletroute/internal/heuristic"
	"palletroute/internal/instance"
	"palletroute/internal/model"
	"palletroute/internal/telemetry"
)

type solveOptions struct {
	instances []string
	output    string
}

// batchEntry is one element of the output when several instances are solved.
type batchEntry struct {
	Instance string                 `json:"instance"`
	Result   *model.HeuristicResult `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func (a *app) solveCmd() *cobra.Command {
	var o solveOptions
	cmd := &cobra.Command{
		Use:   "solve --instance FILE [--instance FILE...]",
		Short: "Run the heuristic on instance files and print the results as JSON",
		Example: `  palletroute solve --instance data/inst_10.yaml
  palletroute solve --instance a.json --instance b.json --fallback volume_lb --output results.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.solve(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	fs := cmd.Flags()
	fs.StringSliceVarP(&o.instances, "instance", "i", nil, "instance file (json, yaml); repeatable")
	fs.StringVarP(&o.output, "output", "o", "", "write results to this file instead of stdout")
	fs.String("fallback", "", "pallet count when packing has no answer: items_ub or volume_lb")
	fs.Bool("equal-as-fixed", false, "send customers needing exactly one truckload as full trips")
	fs.Duration("packing-time", 0, "time limit per customer packing solve")
	fs.Duration("routing-time", 0, "time limit for the reduced routing solve")
	fs.Int("workers", 0, "concurrent packing solves")
	fs.Int("vehicles", 0, "routing fleet size (0: one per residual customer)")
	_ = cmd.MarkFlagRequired("instance")
	a.bind(fs, "heuristic.fallback", "fallback")
	a.bind(fs, "heuristic.treat_equal_capacity_as_fixed", "equal-as-fixed")
	a.bind(fs, "heuristic.packing_time_limit", "packing-time")
	a.bind(fs, "heuristic.routing_time_limit", "routing-time")
	a.bind(fs, "heuristic.workers", "workers")
	a.bind(fs, "heuristic.nb_vehicles", "vehicles")
	return cmd
}

func (a *app) solve(ctx context.Context, stdout io.Writer, o solveOptions) error {
	cfg, logger, err := a.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, buildinfo.Version, cfg.Telemetry.Endpoint)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	insts := make([]model.Instance, 0, len(o.instances))
	for _, path := range o.instances {
		inst, err := instance.Load(path)
		if err != nil {
			return err
		}
		insts = append(insts, inst)
	}

	set, err := engines.Build(cfg.Solvers, logger)
	if err != nil {
		return err
	}
	hcfg, err := cfg.Heuristic.Heuristic()
	if err != nil {
		return err
	}
	h, err := heuristic.New(hcfg, set.Packing, set.Routing, heuristic.WithLogger(logger))
	if err != nil {
		return err
	}

	outcomes := h.RunAll(ctx, insts)
	var failed []error
	var doc any
	if len(outcomes) == 1 {
		if outcomes[0].Err != nil {
			return outcomes[0].Err
		}
		doc = outcomes[0].Result
	} else {
		entries := make([]batchEntry, len(outcomes))
		for i, oc := range outcomes {
			entries[i] = batchEntry{Instance: oc.Instance, Result: oc.Result}
			if oc.Err != nil {
				entries[i].Error = oc.Err.Error()
				failed = append(failed, fmt.Errorf("%s: %w", oc.Instance, oc.Err))
				logger.Error("instance failed", zap.String("instance", oc.Instance), zap.Error(oc.Err))
			}
		}
		doc = entries
	}

	if err := writeJSONTo(stdout, o.output, doc); err != nil {
		return err
	}
	return errors.Join(failed...)
}

func writeJSONTo(stdout io.Writer, path string, doc any) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
