package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"galos/internal/galaxy"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		count bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search NAME",
		Short: "Find systems whose name starts with NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			if count {
				n, err := store.CountSystemsByPrefix(ctx, args[0])
				if err != nil {
					return err
				}
				printCount(w, n)
				return nil
			}
			found, err := store.SearchSystems(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, s := range found {
				printSystem(w, s)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&count, "count", "c", false, "print only the number of matches")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of systems to print")
	return cmd
}

func newNearCmd(a *app) *cobra.Command {
	var radius float64
	cmd := &cobra.Command{
		Use:   "near NAME",
		Short: "List systems within a radius of a system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if radius <= 0 {
				return fmt.Errorf("invalid radius %g", radius)
			}
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			center, err := store.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			found, err := store.SystemsWithin(ctx, center.Position, radius)
			if err != nil {
				return err
			}
			printNear(cmd.OutOrStdout(), center, found)
			return nil
		},
	}
	cmd.Flags().Float64VarP(&radius, "radius", "r", 20, "radius in light-years")
	return cmd
}

func printCount(w io.Writer, n int64) {
	if n == 1 {
		fmt.Fprintln(w, "1 system")
		return
	}
	fmt.Fprintf(w, "%d systems\n", n)
}

func printSystem(w io.Writer, s galaxy.System) {
	fmt.Fprintf(w, "%s (%d)\n", s.Name, s.Address)
	fmt.Fprintf(w, "  position    %.5f, %.5f, %.5f\n", s.Position.X, s.Position.Y, s.Position.Z)
	fmt.Fprintf(w, "  population  %d\n", s.Population)
	for _, f := range []struct{ label, value string }{
		{"security", string(s.Security)},
		{"government", string(s.Government)},
		{"allegiance", string(s.Allegiance)},
		{"economy", string(s.PrimaryEconomy)},
		{"2nd economy", string(s.SecondaryEconomy)},
	} {
		if f.value != "" {
			fmt.Fprintf(w, "  %-11s %s\n", f.label, f.value)
		}
	}
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "  updated     %s\n", s.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
}

// printNear lists the systems around center, nearest first, leaving center out.
func printNear(w io.Writer, center galaxy.System, found []galaxy.System) {
	others := make([]galaxy.System, 0, len(found))
	for _, s := range found {
		if s.Address != center.Address {
			others = append(others, s)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		di, dj := center.Distance(others[i]), center.Distance(others[j])
		if di != dj {
			return di < dj
		}
		return others[i].Address < others[j].Address
	})
	for _, s := range others {
		fmt.Fprintf(w, "%8.2f Ly  %s\n", center.Distance(s), s.Name)
	}
	printCount(w, int64(len(others)))
}
