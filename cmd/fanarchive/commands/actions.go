package commands

import (
	"fmt"
	"strconv"

	"fanarchive/archive"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(kudosCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(bookmarksCmd)
	rootCmd.AddCommand(fandomsCmd)
}

var kudosCmd = &cobra.Command{
	Use:   "kudos <work-id>",
	Short: "Leaves kudos on a work. Requires credentials in the config.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatal("work id must be numeric", err)
		}

		s, cleanup := newSession(cmd.Context())
		defer cleanup()

		if err := archive.LeaveKudos(cmd.Context(), s, workID); err != nil {
			fatal("failed to leave kudos", err)
		}
		fmt.Println("kudos left")
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <work-id>",
	Short: "Subscribes to a work. Requires credentials in the config.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatal("work id must be numeric", err)
		}

		s, cleanup := newSession(cmd.Context())
		defer cleanup()

		if err := archive.Subscribe(cmd.Context(), s, workID); err != nil {
			fatal("failed to subscribe", err)
		}
		fmt.Println("subscribed")
	},
}

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "Prints the logged-in user's bookmark count.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s, cleanup := newSession(cmd.Context())
		defer cleanup()

		count, err := archive.Bookmarks(cmd.Context(), s)
		if err != nil {
			fatal("failed to fetch bookmarks", err)
		}
		fmt.Println(count)
	},
}

var fandomsCmd = &cobra.Command{
	Use:   "fandoms",
	Short: "Lists the archive's fandom categories.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s, cleanup := newSession(cmd.Context())
		defer cleanup()

		categories, err := archive.FandomCategories(cmd.Context(), s)
		if err != nil {
			fatal("failed to fetch fandom categories", err)
		}
		for _, category := range categories {
			fmt.Printf("%s\t%s\n", category.Name, category.URL)
		}
	},
}
