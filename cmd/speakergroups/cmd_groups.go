/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/speakergroups/internal/activeplayer"
	"github.com/friendsincode/speakergroups/internal/control"
	"github.com/friendsincode/speakergroups/internal/db"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/groupconfig"
	"github.com/friendsincode/speakergroups/internal/grouping"
	"github.com/friendsincode/speakergroups/internal/models"
	"github.com/friendsincode/speakergroups/internal/server"
)

var (
	groupsDryRun    bool
	groupsNoHistory bool
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Inspect and apply predefined speaker groups",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List predefined groups from the configured source",
	Args:  cobra.NoArgs,
	RunE:  runGroupsList,
}

var groupsApplyCmd = &cobra.Command{
	Use:   "apply <name>",
	Short: "Regroup speakers to match a predefined group",
	Long: `Regroup speakers to match a predefined group.

The current hub state is read, a plan is built and its steps run in order.
The first failing step ends the run and the remaining steps are skipped.

Examples:
  speakergroups groups apply Everywhere
  speakergroups groups apply Downstairs --dry-run
`,
	Args: cobra.ExactArgs(1),
	RunE: runGroupsApply,
}

func init() {
	groupsApplyCmd.Flags().BoolVar(&groupsDryRun, "dry-run", false, "Print the plan without calling the hub")
	groupsApplyCmd.Flags().BoolVar(&groupsNoHistory, "no-history", false, "Do not record the run in the database")

	groupsCmd.AddCommand(groupsListCmd, groupsApplyCmd)
	rootCmd.AddCommand(groupsCmd)
}

func loadRegistry(cmd *cobra.Command) (*groupconfig.Registry, error) {
	source, err := server.OpenGroupSource(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	registry := groupconfig.NewRegistry(source, nil, logger)
	if err := registry.Reload(cmd.Context()); err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}
	return registry, nil
}

func runGroupsList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	return printGroups(cmd.OutOrStdout(), registry.List())
}

func printGroups(out io.Writer, groups []models.PredefinedGroup) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMAIN\tPLAYERS\tVOLUME\tUNMUTE\tMEDIA")
	for _, g := range groups {
		volume := "-"
		if g.Volume != nil {
			volume = fmt.Sprint(*g.Volume)
		}
		media := g.Media
		if media == "" {
			media = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			g.Name, g.Main(), strings.Join(g.IDs(), ","), volume, g.UnmuteWhenGrouped, media)
	}
	return tw.Flush()
}

func runGroupsApply(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx := cmd.Context()

	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	group, err := registry.Get(args[0])
	if err != nil {
		return fmt.Errorf("%q: %w", args[0], err)
	}

	client, err := server.NewHubClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	snap, err := client.States(ctx)
	if err != nil {
		return fmt.Errorf("load players: %w", err)
	}

	plan, err := grouping.BuildPlan(group, snap)
	if err != nil {
		return err
	}
	if groupsDryRun {
		printPlan(cmd.OutOrStdout(), plan)
		return nil
	}

	// Running dashboards on a shared event bus learn the new active player.
	broker, closeBroker := server.NewBroker(cfg, events.NewBus(), logger)
	if closeBroker != nil {
		defer func() { _ = closeBroker() }()
	}
	coordinator := activeplayer.NewCoordinator(broker, logger)
	defer coordinator.Close()

	var history grouping.HistoryRecorder
	if !groupsNoHistory {
		database, err := db.Connect(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close(database) }()
		if err := db.Migrate(database); err != nil {
			return err
		}
		history = grouping.NewHistoryStore(database)
	}

	reconciler := grouping.NewReconciler(control.NewService(client, logger), coordinator, history, broker, logger)
	res, runErr := reconciler.Run(ctx, plan)
	if res != nil {
		if err := printResult(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("apply %q: %w", group.Name, runErr)
	}
	return nil
}

func printPlan(out io.Writer, plan grouping.Plan) {
	anchor := "-"
	if plan.Anchor != nil {
		anchor = plan.Anchor.ID
	}
	fmt.Fprintf(out, "group %s: main %s, anchor %s\n", plan.Group.Name, plan.Main, anchor)
	for i, step := range plan.Steps {
		fmt.Fprintf(out, "%2d. %s\n", i+1, step)
	}
}

func printResult(out io.Writer, res *grouping.Result) error {
	fmt.Fprintf(out, "run %s: %s\n", res.RunID, res.Status)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tOUTCOME\tTOOK\tERROR")
	for i, sr := range res.Steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, sr.Step, sr.Outcome, sr.Duration.Round(time.Millisecond), sr.Error)
	}
	return tw.Flush()
}
