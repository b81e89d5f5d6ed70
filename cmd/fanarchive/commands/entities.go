package commands

import (
	"strconv"

	"fanarchive/archive"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(seriesCmd)
}

var workCmd = &cobra.Command{
	Use:   "work <id | url>",
	Short: "Fetches a work and prints its metadata.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, cleanup := newSession(cmd.Context())
		defer cleanup()

		work, err := resolveWork(args[0])
		if err != nil {
			fatal("failed to resolve work", err)
		}
		if err := archive.Reload(cmd.Context(), s, work); err != nil {
			fatal("failed to fetch work", err)
		}
		printJSON(work.Fields())
	},
}

var userCmd = &cobra.Command{
	Use:   "user <name | url>",
	Short: "Fetches a user profile and prints its metadata.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, cleanup := newSession(cmd.Context())
		defer cleanup()

		user, err := archive.UserFromURL(args[0])
		if err != nil {
			user = archive.NewUser(args[0])
		}
		if err := archive.Reload(cmd.Context(), s, user); err != nil {
			fatal("failed to fetch user", err)
		}
		printJSON(user.Fields())
	},
}

var seriesCmd = &cobra.Command{
	Use:   "series <id | url>",
	Short: "Fetches a series and prints its metadata.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, cleanup := newSession(cmd.Context())
		defer cleanup()

		series, err := resolveSeries(args[0])
		if err != nil {
			fatal("failed to resolve series", err)
		}
		if err := archive.Reload(cmd.Context(), s, series); err != nil {
			fatal("failed to fetch series", err)
		}
		printJSON(series.Fields())
	},
}

func resolveWork(arg string) (*archive.Work, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return archive.NewWork(id), nil
	}
	return archive.WorkFromURL(arg)
}

func resolveSeries(arg string) (*archive.Series, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return archive.NewSeries(id), nil
	}
	return archive.SeriesFromURL(arg)
}
