package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/buildpop/internal/acs"
	"github.com/sells-group/buildpop/internal/building"
	"github.com/sells-group/buildpop/internal/config"
	"github.com/sells-group/buildpop/internal/export"
	"github.com/sells-group/buildpop/internal/model"
	"github.com/sells-group/buildpop/internal/population"
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Estimate residential population per building",
	Long: `Reads a building footprint shapefile and an ACS tract table, joins each
residential building's centroid to the tract containing it and estimates
population as the class unit multiplier times tract household size.

Non-residential buildings are left out unless --all is set, in which case
every input building is written with population 0 where none applies.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if v, _ := cmd.Flags().GetString("unmatched"); v != "" {
			cfg.Population.UnmatchedPolicy = v
		}
		if err := cfg.Validate("allocate"); err != nil {
			return err
		}

		buildingsPath, _ := cmd.Flags().GetString("buildings")
		acsPath, _ := cmd.Flags().GetString("acs")
		all, _ := cmd.Flags().GetBool("all")
		columns, _ := cmd.Flags().GetString("columns")
		out, schema := outputConfig(cmd, cfg.Output)

		table, stats, err := allocate(ctx, cfg, allocateParams{
			BuildingsPath: buildingsPath,
			ACSPath:       acsPath,
			All:           all,
			Columns:       splitAndTrim(columns),
			Table:         out.Table,
		})
		if err != nil {
			return err
		}
		if err := writeTables(ctx, out, schema, table); err != nil {
			return eris.Wrap(err, "allocate")
		}

		printStats(stats)
		return nil
	},
}

func init() {
	allocateCmd.Flags().String("buildings", "", "building footprint shapefile (.shp or .zip)")
	allocateCmd.Flags().String("acs", "", "ACS tract table (CSV with WKT geometry)")
	allocateCmd.Flags().Bool("all", false, "write every input building, not only residential matches")
	allocateCmd.Flags().String("columns", "", "comma-separated building attributes to carry into the output")
	allocateCmd.Flags().String("unmatched", "", "policy for buildings outside every tract: drop, zero or error (default: from config)")
	_ = allocateCmd.MarkFlagRequired("buildings")
	_ = allocateCmd.MarkFlagRequired("acs")
	addOutputFlags(allocateCmd, "")
	rootCmd.AddCommand(allocateCmd)
}

type allocateParams struct {
	BuildingsPath string
	ACSPath       string
	All           bool
	Columns       []string
	Table         string
}

// allocate loads both inputs concurrently, runs the allocator and shapes the
// result as an output table.
func allocate(ctx context.Context, c *config.Config, p allocateParams) (*export.Table, population.Stats, error) {
	log := zap.L().With(zap.String("command", "allocate"))

	classes, err := building.LoadAliases(c.Input.ClassAliasesPath)
	if err != nil {
		return nil, population.Stats{}, err
	}

	var (
		buildings []model.Building
		tracts    []model.Tract
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		buildings, err = building.Read(p.BuildingsPath, buildingOptions(c, classes))
		return err
	})
	g.Go(func() error {
		var err error
		tracts, err = acs.ReadFile(gctx, p.ACSPath, acsOptions(c))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, population.Stats{}, eris.Wrap(err, "allocate: load inputs")
	}

	alloc, err := population.New(population.Options{
		ImputedHouseholdSize: c.Population.ImputedHouseholdSize,
		Unmatched:            population.UnmatchedPolicy(c.Population.UnmatchedPolicy),
		EqualAreaEPSG:        c.Projection.EqualAreaEPSG,
		DefaultEPSG:          c.Input.DefaultEPSG,
	})
	if err != nil {
		return nil, population.Stats{}, err
	}

	res, err := alloc.Allocate(buildings, tracts)
	if err != nil {
		return nil, population.Stats{}, eris.Wrap(err, "allocate")
	}

	allocs := res.Allocations
	if p.All {
		allocs = population.MergeAll(buildings, res)
	}

	name := p.Table
	if name == "" {
		name = c.Output.Table
	}
	log.Info("allocation complete",
		zap.Int("rows", len(allocs)),
		zap.Float64("total_population", res.Stats.TotalPopulation),
	)
	return export.FromAllocations(name, allocs, p.Columns...), res.Stats, nil
}

func buildingOptions(c *config.Config, classes *model.ClassTable) building.Options {
	return building.Options{
		ClassField:  c.Input.ClassField,
		IDField:     c.Input.IDField,
		TractField:  c.Input.TractField,
		DefaultEPSG: c.Input.DefaultEPSG,
		Classes:     classes,
	}
}

func acsOptions(c *config.Config) acs.Options {
	return acs.Options{
		GEOIDColumn:      c.ACS.GEOIDColumn,
		NameColumn:       c.ACS.NameColumn,
		GeometryColumn:   c.ACS.GeometryColumn,
		HouseholdSizeVar: c.ACS.HouseholdSizeVariable,
		PopulationVar:    c.ACS.PopulationVariable,
		CRS:              c.ACS.CRS,
	}
}

func printStats(s population.Stats) {
	fmt.Printf("%-16s %10d\n", "input", s.Input)
	fmt.Printf("%-16s %10d\n", "residential", s.Residential)
	fmt.Printf("%-16s %10d\n", "non-residential", s.NonResidential)
	fmt.Printf("%-16s %10d\n", "matched", s.Matched)
	fmt.Printf("%-16s %10d\n", "unmatched", s.Unmatched)
	fmt.Printf("%-16s %10d\n", "dropped", s.Dropped)
	fmt.Printf("%-16s %10d\n", "imputed", s.Imputed)
	fmt.Printf("%-16s %10d\n", "ambiguous", s.Ambiguous)
	fmt.Printf("%-16s %10.1f\n", "population", s.TotalPopulation)
}
