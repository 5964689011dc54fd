package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/dnd"
	"github.com/CrowderSoup/taskboard/gateway"
	"github.com/CrowderSoup/taskboard/store"
)

// findBoard matches a board by id, then by name.
func findBoard(s *store.Store, ref string) (*database.Board, error) {
	if b, ok := s.Board(ref); ok {
		return b, nil
	}
	for _, b := range s.Boards() {
		if strings.EqualFold(b.Name, ref) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no board %q", ref)
}

func printBoard(w io.Writer, b *database.Board, active bool) {
	marker := " "
	if active {
		marker = "*"
	}
	fmt.Fprintf(w, "%s %s  %s\n", marker, b.ID, b.Name)
	for _, l := range b.Lists {
		fmt.Fprintf(w, "    %s  %s (%d)\n", l.ID, l.Name, len(l.Cards))
		for _, card := range l.Cards {
			done, total := store.Progress(card)
			due := ""
			if card.DueDate != nil {
				due = " due " + card.DueDate.Format(gateway.DateLayout)
			}
			fmt.Fprintf(w, "        %s  %s [%d/%d]%s\n", card.ID, card.Title, done, total, due)
			store.Walk(card.Checklist, func(it *database.ChecklistItem, depth int) bool {
				check := " "
				if it.Completed {
					check = "x"
				}
				fmt.Fprintf(w, "            %s[%s] %s  %s\n", strings.Repeat("  ", depth), check, it.Text, it.ID)
				return true
			})
		}
	}
}

func (c *cli) boardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "Show every board with its lists, cards and checklists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			active := s.ActiveBoard()
			for _, b := range s.Boards() {
				printBoard(cmd.OutOrStdout(), b, b.ID == active)
			}
			return nil
		},
	}
}

func (c *cli) boardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "board", Short: "Create, rename or delete boards"}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "create NAME",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				b, err := s.CreateBoard(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), b.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:  "rename BOARD NAME",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				b, err := findBoard(s, args[0])
				if err != nil {
					return err
				}
				return s.RenameBoard(cmd.Context(), b.ID, args[1])
			},
		},
		&cobra.Command{
			Use:  "delete BOARD",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				b, err := findBoard(s, args[0])
				if err != nil {
					return err
				}
				return s.DeleteBoard(cmd.Context(), b.ID)
			},
		},
	)
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "list", Short: "Create, rename or delete lists"}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "create BOARD NAME",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				b, err := findBoard(s, args[0])
				if err != nil {
					return err
				}
				l, err := s.CreateList(cmd.Context(), b.ID, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), l.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:  "rename LIST NAME",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				return s.RenameList(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:  "delete LIST",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				return s.DeleteList(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := gateway.ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *cli) cardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "card", Short: "Create, edit or delete cards"}

	create := &cobra.Command{
		Use:  "create LIST TITLE",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			dueFlag, _ := cmd.Flags().GetString("due")
			due, err := parseDue(dueFlag)
			if err != nil {
				return err
			}
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			card, err := s.CreateCard(cmd.Context(), args[0], args[1], description, due)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), card.ID)
			return nil
		},
	}
	create.Flags().String("description", "", "card description")
	create.Flags().String("due", "", "due date (YYYY-MM-DD)")

	edit := &cobra.Command{
		Use:  "edit CARD",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch store.CardPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				v, _ := flags.GetString("title")
				patch.Title = &v
			}
			if flags.Changed("description") {
				v, _ := flags.GetString("description")
				patch.Description = &v
			}
			if flags.Changed("due") {
				v, _ := flags.GetString("due")
				due, err := parseDue(v)
				if err != nil {
					return err
				}
				patch.DueDate = due
				patch.ClearDueDate = due == nil
			}
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			return s.UpdateCard(cmd.Context(), args[0], patch)
		},
	}
	edit.Flags().String("title", "", "new title")
	edit.Flags().String("description", "", "new description")
	edit.Flags().String("due", "", "new due date (YYYY-MM-DD), empty to clear")

	remove := &cobra.Command{
		Use:  "delete CARD",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			return s.DeleteCard(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(create, edit, remove)
	return cmd
}

func (c *cli) itemCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Add, toggle or delete checklist items"}

	add := &cobra.Command{
		Use:  "add CARD TEXT",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, _ := cmd.Flags().GetString("parent")
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			item, err := s.AddChecklistItem(cmd.Context(), args[0], args[1], parent)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), item.ID)
			return nil
		},
	}
	add.Flags().String("parent", "", "parent item id for a subtask")

	cmd.AddCommand(
		add,
		&cobra.Command{
			Use:  "toggle CARD ITEM",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				return s.ToggleChecklistItem(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "delete CARD ITEM",
			Short: "Delete an item and all of its subtasks",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				return s.DeleteChecklistItem(cmd.Context(), args[0], args[1])
			},
		},
	)
	return cmd
}

func (c *cli) noteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Show notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range s.Notes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", n.ID, n.CreatedAt.Local().Format(time.DateTime), n.Title)
				if n.Content != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", strings.ReplaceAll(n.Content, "\n", "\n    "))
				}
			}
			return nil
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "add TITLE [CONTENT]",
			Args: cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				content := ""
				if len(args) == 2 {
					content = args[1]
				}
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				n, err := s.CreateNote(cmd.Context(), args[0], content)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:  "delete NOTE",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				return s.DeleteNote(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func (c *cli) moveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move ITEM TARGET",
		Short: "Drop a card or list onto a card or list, as a drag would",
		Long: `move drops ITEM onto TARGET the way dragging it in the web app does.
A card dropped on a card lands at that card's index; dropped on a list it goes
to the end. A list dropped on a list takes that list's place.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			boardRef, _ := cmd.Flags().GetString("board")
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			boardID := s.ActiveBoard()
			if boardRef != "" {
				b, err := findBoard(s, boardRef)
				if err != nil {
					return err
				}
				boardID = b.ID
			}
			engine := dnd.New(s, boardID, c.log)
			if !engine.Start(args[0]) {
				return fmt.Errorf("%q is not a card or list on this board", args[0])
			}
			return engine.Drop(cmd.Context(), args[1])
		},
	}
	cmd.Flags().String("board", "", "board id or name (default: the active board)")
	return cmd
}

func (c *cli) dueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List cards due in a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			from := time.Now().Truncate(24 * time.Hour)
			to := from.AddDate(0, 0, days)
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range s.CardsDueBetween(from, to) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", d.Card.DueDate.Format(gateway.DateLayout), d.Card.ID, d.Card.Title)
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 7, "how many days ahead to look")
	return cmd
}
