/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/friendsincode/speakergroups/internal/control"
	"github.com/friendsincode/speakergroups/internal/models"
	"github.com/friendsincode/speakergroups/internal/server"
)

var (
	playersJSON         bool
	playerUpdateMembers bool
	playerMembers       []string
	playerContentType   string
)

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "List media players known to the hub",
	Args:  cobra.NoArgs,
	RunE:  runPlayers,
}

var playerCmd = &cobra.Command{
	Use:   "player <command> <entity_id> [value]",
	Short: "Send a dashboard command to one player",
	Long: `Send a dashboard command to one player.

Commands: ` + strings.Join(control.Commands(), ", ") + `

The optional value is the volume level for volume_set, on/off for mute,
the source name for select_source and the content id for play_media.

Examples:
  speakergroups player pause media_player.kitchen
  speakergroups player volume_set media_player.living_room 35
  speakergroups player mute media_player.kitchen on --update-members=false
  speakergroups player join media_player.living_room --members media_player.kitchen,media_player.den
`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runPlayer,
}

func init() {
	playersCmd.Flags().BoolVar(&playersJSON, "json", false, "Print players as JSON")

	playerCmd.Flags().BoolVar(&playerUpdateMembers, "update-members", true, "Apply volume and mute commands to the whole group")
	playerCmd.Flags().StringSliceVar(&playerMembers, "members", nil, "Players to join to the target (join only)")
	playerCmd.Flags().StringVar(&playerContentType, "content-type", control.DefaultContentType, "Media content type (play_media only)")

	rootCmd.AddCommand(playersCmd, playerCmd)
}

func runPlayers(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	client, err := server.NewHubClient(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	snap, err := client.States(cmd.Context())
	if err != nil {
		return fmt.Errorf("load players: %w", err)
	}

	if playersJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap.Players)
	}
	return printPlayers(cmd.OutOrStdout(), snap)
}

func printPlayers(out io.Writer, snap models.Snapshot) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tROOM\tSTATE\tVOLUME\tMUTED\tGROUP\tTRACK")
	for _, p := range snap.Players {
		group := "-"
		if g, ok := snap.GroupOf(p.ID); ok {
			group = g.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
			p.ID, p.RoomName, p.State, p.Attributes.Volume, p.IsMuted(), group, p.CurrentTrack())
	}
	return tw.Flush()
}

func runPlayer(cmd *cobra.Command, args []string) error {
	command, entityID := args[0], args[1]
	value := ""
	if len(args) == 3 {
		value = args[2]
	}

	cmdArgs, err := parseCommandArgs(command, value)
	if err != nil {
		return err
	}
	cmdArgs.UpdateMembers = &playerUpdateMembers
	cmdArgs.Members = playerMembers
	if command == control.CommandPlayMedia {
		cmdArgs.ContentType = playerContentType
	}

	if err := loadConfig(); err != nil {
		return err
	}
	client, err := server.NewHubClient(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	snap, err := client.States(cmd.Context())
	if err != nil {
		return fmt.Errorf("load players: %w", err)
	}
	player, ok := snap.Player(entityID)
	if !ok {
		return fmt.Errorf("unknown player %q", entityID)
	}

	svc := control.NewService(client, logger)
	if err := svc.Run(cmd.Context(), command, player, cmdArgs); err != nil {
		return fmt.Errorf("%s %s: %w", command, entityID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s sent to %s\n", command, entityID)
	return nil
}

// parseCommandArgs turns the positional value into command arguments.
func parseCommandArgs(command, value string) (control.Args, error) {
	var a control.Args
	if !slices.Contains(control.Commands(), command) {
		return a, fmt.Errorf("%q: %w", command, control.ErrUnknownCommand)
	}
	switch command {
	case control.CommandVolumeSet:
		if value == "" {
			return a, fmt.Errorf("volume_set needs a level: %w", control.ErrMissingArgument)
		}
		level, err := strconv.Atoi(value)
		if err != nil {
			return a, fmt.Errorf("invalid level %q: %w", value, control.ErrInvalidVolume)
		}
		a.Level = &level
	case control.CommandMute:
		if value == "" {
			return a, nil
		}
		muted, err := parseOnOff(value)
		if err != nil {
			return a, err
		}
		a.Muted = &muted
	case control.CommandSelectSource:
		a.Source = value
	case control.CommandPlayMedia:
		a.ContentID = value
	default:
		if value != "" {
			return a, fmt.Errorf("%s takes no value", command)
		}
	}
	return a, nil
}

func parseOnOff(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid mute value %q, want on or off", value)
	}
	return b, nil
}
