// Package restyutil dumps full request/response transcripts of resty
// traffic for offline inspection of scraped pages.
package restyutil

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// TranscriptOutput receives one rendered transcript per completed
// request, keyed by a monotonically increasing id.
type TranscriptOutput interface {
	Write(id string, contents string)
}

// FilesystemOutput writes transcripts as individual files under a
// directory, which is wiped on construction.
type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	if err := os.RemoveAll(dir); err != nil {
		return FilesystemOutput{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	path := filepath.Join(o.directory, id+".http")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		slog.Warn("failed to write transcript", "id", id, "err", err)
	}
}

// DumpTranscripts registers resty hooks that hand every completed
// request to output. Transcripts are only produced while the default
// slog logger has debug enabled, so the hooks are cheap in production.
func DumpTranscripts(client *resty.Client, output TranscriptOutput) {
	if output == nil {
		return
	}
	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		ctx := res.Request.Context()
		if !slog.Default().Enabled(ctx, slog.LevelDebug) {
			return nil
		}
		id := strconv.FormatUint(atomic.AddUint64(&idcounter, 1), 10)
		output.Write(id, formatTranscript(res))
		slog.DebugContext(ctx, "request transcript written",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"transcript_id", id,
		)
		return nil
	})
}

func formatTranscript(res *resty.Response) string {
	var b strings.Builder

	fmt.Fprintf(&b, "---- REQUEST ----\n\n%s %s\n\n", res.Request.Method, res.Request.URL)
	if raw := res.Request.RawRequest; raw != nil {
		writeHeaders(&b, raw.Header)
		b.WriteString("\n")
		b.WriteString(requestBody(raw))
		b.WriteString("\n\n")
	}

	responseUrl := res.Request.URL
	if redirected, err := res.RawResponse.Location(); err == nil {
		responseUrl = redirected.String()
	}
	fmt.Fprintf(&b, "---- RESPONSE ----\n\n%d %s\n\n", res.StatusCode(), responseUrl)
	writeHeaders(&b, res.Header())
	b.WriteString("\n")
	b.WriteString(res.String())

	return b.String()
}

func writeHeaders(b *strings.Builder, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range headers[k] {
			fmt.Fprintf(b, "%s: %s\n", k, v)
		}
	}
}

func requestBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err)
	}
	contents, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err)
	}
	return string(contents)
}
