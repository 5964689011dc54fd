package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/CrowderSoup/taskboard/gateway"
	"github.com/CrowderSoup/taskboard/transfer"
)

func (c *cli) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every board and note to a JSON or YAML document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			formatFlag, _ := cmd.Flags().GetString("format")

			format := transfer.FormatFromPath(output)
			if formatFlag != "" {
				f, err := transfer.ParseFormat(formatFlag)
				if err != nil {
					return err
				}
				format = f
			}

			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			doc := transfer.Export(s, time.Now())

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return transfer.Encode(w, doc, format)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	cmd.Flags().String("format", "", "json or yaml (default from the file extension, else json)")
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Recreate boards and notes from an exported document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replace, _ := cmd.Flags().GetBool("replace")

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			doc, err := transfer.Decode(f, transfer.FormatFromPath(args[0]))
			if err != nil {
				return err
			}

			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := transfer.Import(cmd.Context(), s, doc, transfer.Options{Replace: replace, Logger: c.log})
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d boards, %d lists, %d cards, %d checklist items, %d notes\n",
				stats.Boards, stats.Lists, stats.Cards, stats.Items, stats.Notes)
			return err
		},
	}
	cmd.Flags().Bool("replace", false, "delete all existing boards and notes first")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print changes made from other sessions as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.v.GetString("db") != "" {
				return errors.New("watch needs a server, not --db")
			}
			if _, err := c.gateway(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return c.remote.Watch(ctx, func(ch gateway.Change) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n", time.Now().Format(time.TimeOnly), ch.Op, ch.Table, ch.ID)
			})
		},
	}
}
