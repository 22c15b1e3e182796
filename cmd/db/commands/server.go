package commands

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// ServerCommands returns all server-related commands.
func ServerCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Manage tracked game servers",
			Commands: []*cli.Command{
				{
					Name:      "add",
					Usage:     "Add a server or replace its session cookie",
					ArgsUsage: "NAME",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:    "session",
							Aliases: []string{"s"},
							Usage:   "PHPSESSID cookie of a logged in account",
						},
					},
					Action: handleServerAdd(deps),
				},
				{
					Name:   "list",
					Usage:  "List tracked servers",
					Action: handleServerList(deps),
				},
				{
					Name:      "check",
					Usage:     "Check that the session cookie of each server is still valid",
					ArgsUsage: "[NAME]",
					Action:    handleServerCheck(deps),
				},
			},
		},
	}
}

// handleServerAdd handles the 'server add' command.
func handleServerAdd(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrNameRequired
		}

		session := c.String("session")
		if session == "" {
			return ErrSessionRequired
		}

		server := &types.Server{
			Name:          c.Args().First(),
			CookieSession: session,
			UpdatedAt:     time.Now(),
		}

		if err := deps.DB.Model().Server().Create(ctx, server); err != nil {
			return err
		}

		deps.Logger.Info("Server saved",
			zap.Int64("id", server.ID),
			zap.String("name", server.Name))

		return nil
	}
}

// handleServerList handles the 'server list' command.
func handleServerList(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		servers, err := deps.DB.Model().Server().List(ctx)
		if err != nil {
			return err
		}

		t := utils.NewTable(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Scanned Pages", "Scan Version", "Updated At"})

		for _, server := range servers {
			t.AppendRow(table.Row{
				server.ID,
				server.Name,
				server.NScannedPages,
				server.ScanVersion,
				server.UpdatedAt.Format(time.DateTime),
			})
		}

		t.Render()

		return nil
	}
}

// handleServerCheck handles the 'server check' command.
func handleServerCheck(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		var servers []*types.Server

		if c.Args().Len() > 0 {
			server, err := deps.DB.Model().Server().GetByName(ctx, c.Args().First())
			if err != nil {
				return err
			}

			servers = []*types.Server{server}
		} else {
			all, err := deps.DB.Model().Server().List(ctx)
			if err != nil {
				return err
			}

			servers = all
		}

		t := utils.NewTable(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Session"})

		var errs []error

		for _, server := range servers {
			status := "valid"
			if err := deps.Fourmizzz.ValidateSession(ctx, server); err != nil {
				status = err.Error()
				errs = append(errs, err)
			}

			t.AppendRow(table.Row{server.Name, status})
		}

		t.Render()

		return errors.Join(errs...)
	}
}
