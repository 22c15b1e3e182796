package commands

import (
	"context"
	"os"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/worker/alliance"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// AllianceCommands returns all alliance-related commands.
func AllianceCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "alliance",
			Usage: "Manage tracked alliances",
			Commands: []*cli.Command{
				{
					Name:      "add",
					Usage:     "Track an alliance and add its members as targets",
					ArgsUsage: "SERVER NAME",
					Action:    handleAllianceAdd(deps),
				},
				{
					Name:      "remove",
					Usage:     "Stop tracking an alliance",
					ArgsUsage: "SERVER NAME",
					Description: `Stop tracking an alliance. Its members stay tracked without an
alliance unless --delete-targets is given.`,
					Flags: []cli.Flag{
						&cli.BoolFlag{
							Name:  "delete-targets",
							Usage: "Also delete the members and their snapshots",
						},
					},
					Action: handleAllianceRemove(deps),
				},
				{
					Name:   "list",
					Usage:  "List tracked alliances",
					Action: handleAllianceList(deps),
				},
				{
					Name:   "sync",
					Usage:  "Sync the members of every tracked alliance once",
					Action: handleAllianceSync(deps),
				},
			},
		},
	}
}

func newSyncer(deps *CLIDependencies) *alliance.Syncer {
	return alliance.NewSyncer(alliance.NewStore(deps.DB), deps.Fourmizzz, deps.Logger)
}

// handleAllianceAdd handles the 'alliance add' command.
func handleAllianceAdd(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 2 {
			return ErrServerAndNameRequired
		}

		server, err := deps.DB.Model().Server().GetByName(ctx, c.Args().Get(0))
		if err != nil {
			return err
		}

		a := &types.Alliance{
			ServerID: server.ID,
			Name:     c.Args().Get(1),
		}

		if err := deps.DB.Model().Alliance().Create(ctx, a); err != nil {
			return err
		}

		a.Server = server

		result, err := newSyncer(deps).Sync(ctx, a)
		if err != nil {
			return err
		}

		deps.Logger.Info("Alliance saved",
			zap.Int64("id", a.ID),
			zap.String("server", server.Name),
			zap.String("name", a.Name),
			zap.Strings("added", result.Added))

		return nil
	}
}

// handleAllianceRemove handles the 'alliance remove' command.
func handleAllianceRemove(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 2 {
			return ErrServerAndNameRequired
		}

		server, err := deps.DB.Model().Server().GetByName(ctx, c.Args().Get(0))
		if err != nil {
			return err
		}

		a, err := deps.DB.Model().Alliance().GetByName(ctx, server.ID, c.Args().Get(1))
		if err != nil {
			return err
		}

		return deps.DB.Model().Alliance().Delete(ctx, a.ID, c.Bool("delete-targets"))
	}
}

// handleAllianceList handles the 'alliance list' command.
func handleAllianceList(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		alliances, err := deps.DB.Model().Alliance().List(ctx)
		if err != nil {
			return err
		}

		t := utils.NewTable(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Server", "Name", "Members"})

		for _, a := range alliances {
			members, err := deps.DB.Model().Target().ListByAlliance(ctx, a.ID)
			if err != nil {
				return err
			}

			var serverName string
			if a.Server != nil {
				serverName = a.Server.Name
			}

			t.AppendRow(table.Row{a.ID, serverName, a.Name, len(members)})
		}

		t.Render()

		return nil
	}
}

// handleAllianceSync handles the 'alliance sync' command.
func handleAllianceSync(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		return newSyncer(deps).SyncAll(ctx)
	}
}
