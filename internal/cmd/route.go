package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"galos/internal/galaxy"
	"galos/internal/graph"
)

var errNoRoute = errors.New("no route")

type routeOptions struct {
	fsd         string
	optimalMass float64
	mass        float64
	maxFuel     float64
	greedy      float64
}

func newRouteCmd(a *app) *cobra.Command {
	var opts routeOptions
	cmd := &cobra.Command{
		Use:   "route RANGE START END",
		Short: "Plot a jump route between two systems",
		Long: `Plot the route with the fewest jumps of at most RANGE light-years from START
to END. Systems are given by name or as #<address>.

With --fsd, --optimal-mass and --mass the route minimizes fuel instead.
With --greedy above 1 the search expands fewer systems but the route may
take more jumps than necessary.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			jumpRange, err := strconv.ParseFloat(args[0], 64)
			if err != nil || jumpRange <= 0 || math.IsInf(jumpRange, 0) {
				return fmt.Errorf("invalid range %q", args[0])
			}
			return a.runRoute(cmd.Context(), cmd.OutOrStdout(), jumpRange, args[1], args[2], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.fsd, "fsd", "", "frame shift drive, e.g. 5A; minimizes fuel instead of jumps")
	f.Float64Var(&opts.optimalMass, "optimal-mass", 0, "drive optimal mass in tons")
	f.Float64Var(&opts.mass, "mass", 0, "ship mass in tons, fuel included")
	f.Float64Var(&opts.maxFuel, "max-fuel", 0, "drive maximum fuel per jump in tons (0 = uncapped)")
	f.Float64Var(&opts.greedy, "greedy", 0, "inflate the jump heuristic by this weight (> 1) to trade route length for speed")
	return cmd
}

// expanderOptions prices hops by fuel when a drive is given; otherwise the
// expander keeps unit cost and its jump-count heuristic.
func (o routeOptions) expanderOptions() ([]graph.ExpanderOption, error) {
	if o.fsd == "" {
		return nil, nil
	}
	fsd, err := galaxy.ParseFSD(o.fsd)
	if err != nil {
		return nil, err
	}
	if o.optimalMass <= 0 || o.mass <= 0 {
		return nil, errors.New("--fsd needs positive --optimal-mass and --mass")
	}
	fsd.OptimalMass = o.optimalMass
	fsd.MaxFuelPerJump = o.maxFuel
	return []graph.ExpanderOption{graph.WithCost(graph.FuelCost(fsd, o.mass))}, nil
}

func (o routeOptions) plannerOptions(jumpRange float64, maxExpanded int) ([]graph.PlannerOption, error) {
	opts := []graph.PlannerOption{graph.WithMaxExpanded(maxExpanded)}
	switch {
	case o.greedy == 0:
		return opts, nil
	case o.greedy < 1 || math.IsInf(o.greedy, 0) || math.IsNaN(o.greedy):
		return nil, fmt.Errorf("invalid --greedy %g: want a weight of at least 1", o.greedy)
	case o.fsd != "":
		return nil, errors.New("--greedy counts jumps and cannot be combined with --fsd")
	}
	return append(opts, graph.WithHeuristic(graph.InflatedHeuristic(jumpRange, o.greedy))), nil
}

func (a *app) runRoute(ctx context.Context, w io.Writer, jumpRange float64, from, to string, opts routeOptions) error {
	expOpts, err := opts.expanderOptions()
	if err != nil {
		return err
	}
	planOpts, err := opts.plannerOptions(jumpRange, a.cfg.MaxExpanded)
	if err != nil {
		return err
	}

	store, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var start, end galaxy.System
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		start, err = store.Lookup(gctx, from)
		return err
	})
	g.Go(func() (err error) {
		end, err = store.Lookup(gctx, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	planner := graph.NewPlanner(graph.NewRangeExpander(store, jumpRange, expOpts...), planOpts...)
	route, err := planner.Route(ctx, start, end)
	if err != nil {
		return err
	}
	if route == nil {
		return fmt.Errorf("%w from %s to %s within %g Ly jumps", errNoRoute, start.Name, end.Name, jumpRange)
	}
	printRoute(w, route)
	return nil
}

func printRoute(w io.Writer, route *graph.Route) {
	fmt.Fprintln(w, "-----")
	fmt.Fprintf(w, "total jumps (%d)\n", route.Jumps())
	for _, hop := range route.Hops() {
		fmt.Fprintf(w, "%s -- %.2f Ly -> %s\n", hop.From.Name, hop.Distance, hop.To.Name)
	}
	fmt.Fprintf(w, "cost %.6g\n", route.Cost)
}
