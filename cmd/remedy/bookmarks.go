package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/remedy/pkg/render"
)

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "List saved solutions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		bms := rt.Session.Bookmarks.List()
		if len(bms) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No bookmarks.")
			return nil
		}
		render.Bookmarks(cmd.OutOrStdout(), bms)
		return nil
	},
}

var bookmarksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Save a solution by title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		bm, err := rt.Session.Bookmarks.Add(args[0], map[string]any{"title": args[0]})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bookmarked as %s\n", bm.ID)
		return nil
	},
}

var bookmarksRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a saved solution",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := rt.Session.Bookmarks.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Bookmark removed.")
		return nil
	},
}

func init() {
	bookmarksCmd.AddCommand(bookmarksAddCmd)
	bookmarksCmd.AddCommand(bookmarksRmCmd)
	rootCmd.AddCommand(bookmarksCmd)
}
