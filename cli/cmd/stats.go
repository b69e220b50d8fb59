package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dife-bioinformatics/mekewe/cli/render"
	"github.com/dife-bioinformatics/mekewe/config"
	"github.com/dife-bioinformatics/mekewe/log"
	"github.com/dife-bioinformatics/mekewe/state"
	"github.com/dife-bioinformatics/mekewe/store/redisstore"
)

// StatsCommand returns the stats command: aggregate usage statistics
// read straight from the state store.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated pipeline-run statistics",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "days-limit",
				Usage: "Only include runs finished within this many days (0 = all)",
			},
			&cli.IntFlag{
				Name:  "days-offset",
				Usage: "Shift the window this many days into the past",
			},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("config: %v", err), 1)
	}
	if cfg.RedisURL == "" {
		return cli.Exit("stats requires a configured redis_url: the in-process store holds no shared state", 1)
	}
	st, err := redisstore.New(cfg.RedisURL)
	if err != nil {
		return cli.Exit(fmt.Sprintf("state store: %v", err), 1)
	}
	defer func() { _ = st.Close() }()

	mgr := state.NewManager(st, cfg, log.NewLogger("stats"))
	stats, err := mgr.CalculateStatistics(c.Context, c.Int("days-limit"), c.Int("days-offset"))
	if err != nil {
		return fmt.Errorf("failed to calculate statistics: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(stats)
}
