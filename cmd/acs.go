package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/sells-group/buildpop/internal/acs"
	"github.com/sells-group/buildpop/internal/config"
	"github.com/sells-group/buildpop/internal/export"
	"github.com/sells-group/buildpop/internal/fetcher"
	"github.com/sells-group/buildpop/internal/model"
	"github.com/sells-group/buildpop/internal/resilience"
	"github.com/sells-group/buildpop/internal/tiger"
	"github.com/sells-group/buildpop/pkg/census"
)

var acsCmd = &cobra.Command{
	Use:   "acs",
	Short: "Build the ACS tract table from the Census API and TIGER/Line",
}

var acsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch ACS 5-year tract estimates with boundaries into a CSV",
	Long: `Queries the Census Data API for tract-level ACS 5-year estimates in one
county, pivots them to one row per tract, attaches TIGER/Line tract
boundaries as WKT and writes the table read by "buildpop allocate".

The API key comes from census.api_key (BUILDPOP_CENSUS_API_KEY). When it is
unset and stdin is a terminal, the key is prompted for once.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyCensusFlags(cmd, cfg)
		if err := cfg.Validate("acs"); err != nil {
			return err
		}

		vars, _ := cmd.Flags().GetString("variables")
		outPath, _ := cmd.Flags().GetString("output")
		stateFIPS, err := tiger.StateFIPS(cfg.Census.State)
		if err != nil {
			return err
		}
		if outPath == "" {
			outPath = fmt.Sprintf("acs_%s%s_%d.csv", stateFIPS, cfg.Census.County, cfg.Census.Year)
		}

		key, err := censusAPIKey(cfg.Census.APIKey)
		if err != nil {
			return err
		}

		tracts, variables, err := fetchACS(ctx, cfg, newCensusClient(cfg, key), newTigerFetcher(cfg), splitAndTrim(vars))
		if err != nil {
			return err
		}
		if err := acs.WriteFile(outPath, tracts, variables, acsOptions(cfg)); err != nil {
			return eris.Wrap(err, "acs fetch")
		}

		fmt.Printf("wrote %d tracts to %s\n", len(tracts), outPath)
		return nil
	},
}

var acsTractsCmd = &cobra.Command{
	Use:   "tracts",
	Short: "Download TIGER/Line tract boundaries for one county",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyCensusFlags(cmd, cfg)
		if err := cfg.Validate("acs"); err != nil {
			return err
		}
		out, schema := outputConfig(cmd, cfg.Output)

		tracts, err := loadTracts(ctx, cfg, newTigerFetcher(cfg))
		if err != nil {
			return err
		}
		if err := writeTables(ctx, out, schema, export.FromTracts(out.Table, tracts)); err != nil {
			return eris.Wrap(err, "acs tracts")
		}

		fmt.Printf("wrote %d tracts\n", len(tracts))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{acsFetchCmd, acsTractsCmd} {
		c.Flags().Int("year", 0, "ACS 5-year vintage (default: from config)")
		c.Flags().String("state", "", "state abbreviation or FIPS code (default: from config)")
		c.Flags().String("county", "", "three-digit county FIPS code (default: from config)")
	}
	acsFetchCmd.Flags().String("variables",
		model.VarHouseholdSize+","+model.VarTotalPopulation,
		"comma-separated ACS variables")
	acsFetchCmd.Flags().StringP("output", "o", "", "output CSV path (default: acs_<state><county>_<year>.csv)")
	addOutputFlags(acsTractsCmd, "tracts")

	acsCmd.AddCommand(acsFetchCmd, acsTractsCmd)
	rootCmd.AddCommand(acsCmd)
}

func applyCensusFlags(cmd *cobra.Command, c *config.Config) {
	if v, _ := cmd.Flags().GetInt("year"); v != 0 {
		c.Census.Year = v
	}
	if v, _ := cmd.Flags().GetString("state"); v != "" {
		c.Census.State = v
	}
	if v, _ := cmd.Flags().GetString("county"); v != "" {
		c.Census.County = v
	}
}

// censusAPIKey returns the configured key, or asks for it once when stdin
// is a terminal. A blank answer means keyless requests.
func censusAPIKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		zap.L().Warn("no census API key configured, using keyless requests")
		return "", nil
	}

	fmt.Fprint(os.Stderr, "Census API key (blank for keyless): ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", eris.Wrap(err, "read census API key")
	}
	return strings.TrimSpace(string(b)), nil
}

func newCensusClient(c *config.Config, key string) census.Client {
	retry := resilience.FromMillis(c.Census.MaxAttempts, c.Census.InitialBackoffMs, c.Census.MaxBackoffMs)
	zap.L().Debug("census client configured",
		zap.String("base_url", c.Census.BaseURL),
		zap.Bool("keyless", key == ""),
		zap.Int("max_attempts", retry.MaxAttempts),
		zap.Duration("retry_budget", retry.Budget()),
	)
	return census.NewClient(key,
		census.WithBaseURL(c.Census.BaseURL),
		census.WithRateLimit(c.Census.RequestsPerSecond),
		census.WithRetry(retry),
	)
}

func newTigerFetcher(c *config.Config) fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RequestsPerSecond: c.Census.RequestsPerSecond,
		Retry:             resilience.FromMillis(c.Census.MaxAttempts, c.Census.InitialBackoffMs, c.Census.MaxBackoffMs),
	})
}

// fetchACS queries estimates and tract boundaries concurrently and joins
// them into wide tract records. It returns the tracts and the variables
// that became columns.
func fetchACS(ctx context.Context, c *config.Config, client census.Client, f fetcher.Fetcher, vars []string) ([]model.Tract, []string, error) {
	stateFIPS, err := tiger.StateFIPS(c.Census.State)
	if err != nil {
		return nil, nil, err
	}

	var (
		estimates  []census.Estimate
		boundaries []model.Tract
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		estimates, err = client.TractEstimates(gctx, census.Query{
			Year:      c.Census.Year,
			State:     stateFIPS,
			County:    c.Census.County,
			Variables: vars,
		})
		return err
	})
	g.Go(func() error {
		var err error
		boundaries, err = loadTracts(gctx, c, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "acs fetch")
	}

	long := make([]acs.Estimate, len(estimates))
	for i, e := range estimates {
		long[i] = acs.Estimate{GEOID: e.GEOID, Name: e.Name, Variable: e.Variable, Value: e.Value}
	}

	crs := model.EPSGNAD83
	if len(boundaries) > 0 {
		crs = boundaries[0].CRS
	}
	tracts := acs.Pivot(long, tiger.Boundaries(boundaries), crs, acsOptions(c))

	var missing int
	for _, t := range tracts {
		if t.Boundary == nil {
			missing++
		}
	}
	zap.L().Info("acs table assembled",
		zap.String("command", "acs fetch"),
		zap.Int("tracts", len(tracts)),
		zap.Int("estimates", len(estimates)),
		zap.Int("missing_boundary", missing),
	)
	return tracts, vars, nil
}

// loadTracts downloads the state's TIGER/Line tract file and parses the
// configured county.
func loadTracts(ctx context.Context, c *config.Config, f fetcher.Fetcher) ([]model.Tract, error) {
	stateFIPS, err := tiger.StateFIPS(c.Census.State)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(c.Census.TempDir, "tiger")
	shpPath, err := tiger.Download(ctx, f, tiger.TractURL(c.Census.TigerBaseURL, c.Census.Year, stateFIPS), dir)
	if err != nil {
		return nil, err
	}
	return tiger.ParseTracts(shpPath, c.Census.County)
}
