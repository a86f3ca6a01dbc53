package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/access"
	"github.com/sells-group/buildpop/internal/building"
	"github.com/sells-group/buildpop/internal/config"
	"github.com/sells-group/buildpop/internal/export"
	"github.com/sells-group/buildpop/internal/model"
)

// Access output modes.
const (
	modePairs   = "pairs"
	modeMatrix  = "matrix"
	modeIndexed = "indexed"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Measure great-circle access between two building types",
	Long: `Selects buildings of two types by substring match on a field, computes
centroid-to-centroid haversine distance and flags pairs within the threshold.

Modes:
  pairs    every A×B pair as one row (bounded by access.max_pairs)
  matrix   distance and access matrices, one row per A building
  indexed  only pairs with access, plus a per-A reachable count`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("threshold") {
			cfg.Access.ThresholdMiles, _ = cmd.Flags().GetFloat64("threshold")
		}
		if err := cfg.Validate("access"); err != nil {
			return err
		}

		buildingsPath, _ := cmd.Flags().GetString("buildings")
		typeA, _ := cmd.Flags().GetString("type-a")
		typeB, _ := cmd.Flags().GetString("type-b")
		field, _ := cmd.Flags().GetString("match-field")
		mode, _ := cmd.Flags().GetString("mode")
		out, schema := outputConfig(cmd, cfg.Output)

		classes, err := building.LoadAliases(cfg.Input.ClassAliasesPath)
		if err != nil {
			return err
		}
		buildings, err := building.Read(buildingsPath, buildingOptions(cfg, classes))
		if err != nil {
			return eris.Wrap(err, "access: load buildings")
		}

		tables, err := accessTables(cfg, buildings, accessParams{
			TypeA: typeA,
			TypeB: typeB,
			Field: field,
			Mode:  mode,
			Table: out.Table,
		})
		if err != nil {
			return err
		}
		if err := writeTables(ctx, out, schema, tables...); err != nil {
			return eris.Wrap(err, "access")
		}

		for _, t := range tables {
			fmt.Printf("%-24s %10d rows\n", t.Name, len(t.Rows))
		}
		return nil
	},
}

func init() {
	accessCmd.Flags().String("buildings", "", "building footprint shapefile (.shp or .zip)")
	accessCmd.Flags().String("type-a", "Residential", "substring selecting set A")
	accessCmd.Flags().String("type-b", "", "substring selecting set B")
	accessCmd.Flags().String("match-field", "class", "field the type substrings are matched against")
	accessCmd.Flags().Float64("threshold", 0, "access threshold in miles (default: from config)")
	accessCmd.Flags().String("mode", modePairs, "output mode: pairs, matrix or indexed")
	_ = accessCmd.MarkFlagRequired("buildings")
	_ = accessCmd.MarkFlagRequired("type-b")
	addOutputFlags(accessCmd, "access")
	rootCmd.AddCommand(accessCmd)
}

type accessParams struct {
	TypeA string
	TypeB string
	Field string
	Mode  string
	Table string
}

// accessTables runs the calculator in the requested mode and shapes the
// result as output tables.
func accessTables(c *config.Config, buildings []model.Building, p accessParams) ([]*export.Table, error) {
	calc, err := access.New(access.Options{
		ThresholdMiles: c.Access.ThresholdMiles,
		RadiusMiles:    c.Access.EarthRadiusMiles,
		WarnPairs:      c.Access.WarnPairs,
		MaxPairs:       c.Access.MaxPairs,
		EqualAreaEPSG:  c.Projection.EqualAreaEPSG,
	})
	if err != nil {
		return nil, err
	}

	to := access.TableOptions{
		TypeA:      p.TypeA,
		TypeB:      p.TypeB,
		MatchField: p.Field,
		Threshold:  c.Access.ThresholdMiles,
	}
	name := p.Table
	if name == "" {
		name = "access"
	}

	log := zap.L().With(zap.String("command", "access"), zap.String("mode", p.Mode))

	switch strings.ToLower(p.Mode) {
	case "", modePairs:
		pairs, err := calc.Table(buildings, to)
		if err != nil {
			return nil, eris.Wrap(err, "access: table")
		}
		log.Info("pairs computed", zap.Int("pairs", len(pairs)))
		return []*export.Table{export.FromPairs(name, pairs, p.TypeA, p.TypeB)}, nil

	case modeMatrix:
		m, err := calc.TableMatrix(buildings, to)
		if err != nil {
			return nil, eris.Wrap(err, "access: matrix")
		}
		dist, flags := export.FromMatrices(name, m)
		log.Info("matrices computed", zap.Int("rows", m.Rows), zap.Int("cols", m.Cols))
		return []*export.Table{dist, flags}, nil

	case modeIndexed:
		reach, err := calc.Within(buildings, to)
		if err != nil {
			return nil, eris.Wrap(err, "access: indexed")
		}
		log.Info("reachable pairs computed", zap.Int("pairs", len(reach.Pairs)))
		return []*export.Table{
			export.FromPairs(name+"_pairs", reach.Pairs, p.TypeA, p.TypeB),
			export.FromReach(name+"_counts", reach, p.TypeA, p.TypeB),
		}, nil
	}

	return nil, &model.ConfigurationError{
		Setting: "mode",
		Reason:  fmt.Sprintf("unknown access mode %q (want pairs, matrix or indexed)", p.Mode),
	}
}
