package commands

import (
	"context"
	"errors"
	"os"

	"github.com/fourmitrack/fourmitrack/internal/database/models"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// TargetCommands returns all target-related commands.
func TargetCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "target",
			Usage: "Manage tracked players",
			Commands: []*cli.Command{
				{
					Name:      "add",
					Usage:     "Track a player",
					ArgsUsage: "SERVER NAME",
					Description: `Track a player of a server. The player is linked to its alliance
when that alliance is tracked. Use --alliance to skip the profile lookup.`,
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:    "alliance",
							Aliases: []string{"a"},
							Usage:   "Tracked alliance to link the player to",
						},
					},
					Action: handleTargetAdd(deps),
				},
				{
					Name:      "remove",
					Usage:     "Stop tracking a player and delete its snapshots",
					ArgsUsage: "SERVER NAME",
					Action:    handleTargetRemove(deps),
				},
				{
					Name:  "list",
					Usage: "List tracked players",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:    "server",
							Aliases: []string{"s"},
							Usage:   "Only list players of this server",
						},
					},
					Action: handleTargetList(deps),
				},
			},
		},
	}
}

// handleTargetAdd handles the 'target add' command.
func handleTargetAdd(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 2 {
			return ErrServerAndNameRequired
		}

		server, err := deps.DB.Model().Server().GetByName(ctx, c.Args().Get(0))
		if err != nil {
			return err
		}

		target := &types.Target{
			ServerID: server.ID,
			Name:     c.Args().Get(1),
		}

		allianceName := c.String("alliance")
		if allianceName == "" {
			allianceName, err = deps.Fourmizzz.PlayerAlliance(ctx, server, target.Name)
			if err != nil {
				return err
			}
		}

		if allianceName != "" {
			alliance, err := deps.DB.Model().Alliance().GetByName(ctx, server.ID, allianceName)
			switch {
			case errors.Is(err, models.ErrAllianceNotFound):
				deps.Logger.Info("Alliance is not tracked, adding player without it",
					zap.String("alliance", allianceName))
			case err != nil:
				return err
			default:
				target.AllianceID = &alliance.ID
			}
		}

		if err := deps.DB.Model().Target().Create(ctx, target); err != nil {
			return err
		}

		deps.Logger.Info("Target saved",
			zap.Int64("id", target.ID),
			zap.String("server", server.Name),
			zap.String("name", target.Name))

		return nil
	}
}

// handleTargetRemove handles the 'target remove' command.
func handleTargetRemove(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 2 {
			return ErrServerAndNameRequired
		}

		server, err := deps.DB.Model().Server().GetByName(ctx, c.Args().Get(0))
		if err != nil {
			return err
		}

		target, err := deps.DB.Model().Target().GetByName(ctx, server.ID, c.Args().Get(1))
		if err != nil {
			return err
		}

		return deps.DB.Model().Target().Delete(ctx, target.ID)
	}
}

// handleTargetList handles the 'target list' command.
func handleTargetList(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		var (
			targets []*types.Target
			err     error
		)

		if name := c.String("server"); name != "" {
			server, err := deps.DB.Model().Server().GetByName(ctx, name)
			if err != nil {
				return err
			}

			targets, err = deps.DB.Model().Target().ListByServer(ctx, server.ID)
			if err != nil {
				return err
			}
		} else {
			targets, err = deps.DB.Model().Target().List(ctx)
			if err != nil {
				return err
			}
		}

		t := utils.NewTable(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Server", "Name", "Alliance", "Vacation"})

		for _, target := range targets {
			var serverName string
			if target.Server != nil {
				serverName = target.Server.Name
			}

			t.AppendRow(table.Row{target.ID, serverName, target.Name, target.AllianceName(), target.OnVacation})
		}

		t.Render()

		return nil
	}
}
