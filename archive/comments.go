package archive

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"fanarchive/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Comment is one node of a reply tree. Parent is a lookup-only back
// pointer. A node whose subtree was not traversed (depth bound hit, or
// the expansion failed) keeps RepliesLoaded == false rather than
// guessing; a failed expansion additionally records FetchErr.
type Comment struct {
	ID     int64
	Author string
	Posted string
	Text   string

	// ReplyCount is the count the page reported, which may exceed
	// len(Replies) when the subtree was not (fully) expanded.
	ReplyCount    int
	Parent        *Comment
	Replies       []*Comment
	RepliesLoaded bool
	FetchErr      error
}

// ThreadRef scopes a comment fetch to a work or, when ChapterID is set,
// to a single chapter.
type ThreadRef struct {
	WorkID    int64
	ChapterID int64
}

func (r ThreadRef) path() string {
	if r.ChapterID > 0 {
		return fmt.Sprintf("/chapters/%d/comments", r.ChapterID)
	}
	return fmt.Sprintf("/works/%d/comments", r.WorkID)
}

// subtree pages for one comment live under its own endpoint
func commentPath(id int64) string {
	return fmt.Sprintf("/comments/%d", id)
}

// how many subtree expansions may run at once; every request still
// passes through the session's shared rate limiter
const maxParallelSubtrees = 4

// FetchThreads retrieves up to maxThreads top-level comment threads in
// the remote's chronological order, expanding reply subtrees down to
// maxPageDepth page levels (1 means top-level only). Expansion failures
// mark the affected node and leave the rest of the tree intact; a
// failure while paginating top-level comments aborts the fetch.
func FetchThreads(ctx context.Context, s *Session, ref ThreadRef, maxThreads, maxPageDepth int) ([]*Comment, error) {
	ctx, span := tracer.Start(ctx, "comments:FetchThreads")
	defer span.End()

	if maxThreads <= 0 {
		return nil, nil
	}
	if maxPageDepth < 1 {
		maxPageDepth = 1
	}

	top, err := fetchCommentLevel(ctx, s, ref.path(), maxThreads)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "top-level pagination failed")
		return nil, err
	}

	// Frontier of nodes whose subtrees may still be expanded, processed
	// level by level so ordering within each node stays exactly as
	// returned. No recursion: depth is carried explicitly.
	type frontierItem struct {
		node      *Comment
		remaining int
	}

	frontier := make([]frontierItem, 0, len(top))
	for _, node := range top {
		frontier = append(frontier, frontierItem{node: node, remaining: maxPageDepth - 1})
	}

	for len(frontier) > 0 {
		expand := make([]frontierItem, 0, len(frontier))
		for _, item := range frontier {
			if item.node.ReplyCount == 0 {
				// nothing to fetch, the subtree is trivially complete
				item.node.RepliesLoaded = true
				continue
			}
			if item.remaining > 0 {
				expand = append(expand, item)
			}
		}

		next := make([][]frontierItem, len(expand))
		var g errgroup.Group
		g.SetLimit(maxParallelSubtrees)
		for i, item := range expand {
			i, item := i, item
			g.Go(func() error {
				replies, err := fetchCommentLevel(ctx, s, commentPath(item.node.ID), item.node.ReplyCount)
				if err != nil {
					// partial tree with a per-node marker, never a
					// silently dropped branch
					item.node.FetchErr = err
					return nil
				}
				for _, reply := range replies {
					reply.Parent = item.node
				}
				item.node.Replies = replies
				item.node.RepliesLoaded = true

				children := make([]frontierItem, 0, len(replies))
				for _, reply := range replies {
					children = append(children, frontierItem{node: reply, remaining: item.remaining - 1})
				}
				next[i] = children
				return nil
			})
		}
		g.Wait()

		frontier = frontier[:0]
		for _, children := range next {
			frontier = append(frontier, children...)
		}
	}

	return top, nil
}

// fetchCommentLevel paginates one level of comments (top-level for a
// work/chapter, or the direct replies of one comment) until max nodes
// are collected or a page comes back empty.
func fetchCommentLevel(ctx context.Context, s *Session, path string, max int) ([]*Comment, error) {
	var collected []*Comment
	for page := 1; len(collected) < max; page++ {
		doc, err := s.Get(ctx, path, url.Values{"page": {strconv.Itoa(page)}})
		if err != nil {
			return nil, err
		}
		nodes, err := parseCommentPage(doc)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			break
		}
		for _, node := range nodes {
			collected = append(collected, node)
			if len(collected) == max {
				break
			}
		}
	}
	return collected, nil
}

var replyCountPattern = regexp.MustCompile(`(\d+)\s+repl`)

// parseCommentPage extracts the comments listed on one page, in page
// order. An empty thread list is a valid page (end of pagination), but
// a comment without an id is a ParseError.
func parseCommentPage(doc *goquery.Document) ([]*Comment, error) {
	var nodes []*Comment
	var parseErr error

	doc.Find("ol.thread > li.comment").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		domID, _ := li.Attr("id")
		raw, ok := strings.CutPrefix(domID, "comment_")
		if !ok {
			parseErr = &ParseError{Missing: "comment_<id> anchor on comment node"}
			return false
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			parseErr = &ParseError{Missing: "numeric comment id"}
			return false
		}

		node := &Comment{
			ID:     id,
			Author: htmlutil.Text(li.Find("h4.heading.byline a").First()),
			Posted: htmlutil.Text(li.Find("span.posted.datetime").First()),
			Text:   htmlutil.Text(li.Find("blockquote.userstuff").First()),
		}
		if groups := replyCountPattern.FindStringSubmatch(li.Find("a.reply-count").First().Text()); len(groups) == 2 {
			node.ReplyCount, _ = strconv.Atoi(groups[1])
		}
		nodes = append(nodes, node)
		return true
	})

	if parseErr != nil {
		return nil, parseErr
	}
	return nodes, nil
}
