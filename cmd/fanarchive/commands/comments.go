package commands

import (
	"fmt"
	"strconv"
	"strings"

	"fanarchive/archive"

	"github.com/spf13/cobra"
)

var commentsChapter *int64
var commentsThreads *int
var commentsDepth *int

func init() {
	commentsChapter = commentsCmd.Flags().Int64("chapter", 0, "Restrict to a single chapter's threads.")
	commentsThreads = commentsCmd.Flags().Int("threads", 10, "Maximum number of top-level threads to fetch.")
	commentsDepth = commentsCmd.Flags().Int("depth", 2, "How many reply levels to expand (1 = top level only).")
	rootCmd.AddCommand(commentsCmd)
}

var commentsCmd = &cobra.Command{
	Use:   "comments <work-id> [--chapter <id>] [--threads <n>] [--depth <n>]",
	Short: "Fetches comment threads for a work and prints the reply trees.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatal("work id must be numeric", err)
		}

		s, cleanup := newSession(cmd.Context())
		defer cleanup()

		ref := archive.ThreadRef{WorkID: workID, ChapterID: *commentsChapter}
		threads, err := archive.FetchThreads(cmd.Context(), s, ref, *commentsThreads, *commentsDepth)
		if err != nil {
			fatal("failed to fetch comment threads", err)
		}

		for _, node := range threads {
			printThread(node, 0)
		}
	},
}

func printThread(node *archive.Comment, depth int) {
	pad := strings.Repeat("  ", depth)
	fmt.Printf("%s#%d %s (%s)\n", pad, node.ID, node.Author, node.Posted)
	fmt.Printf("%s  %s\n", pad, node.Text)

	if node.FetchErr != nil {
		fmt.Printf("%s  !! failed to load %d replies: %v\n", pad, node.ReplyCount, node.FetchErr)
		return
	}
	if !node.RepliesLoaded && node.ReplyCount > 0 {
		fmt.Printf("%s  (%d replies not loaded)\n", pad, node.ReplyCount)
		return
	}
	for _, reply := range node.Replies {
		printThread(reply, depth+1)
	}
}
