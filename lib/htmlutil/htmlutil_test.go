package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return d
}

func TestCleanText(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{"  hello   world ", "hello world"},
		{"\n\tkudos:\n 12\n", "kudos: 12"},
		{"", ""},
		{"one\u00a0two", "onetwo"},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, CleanText(test.in))
	}
}

func TestNumber(t *testing.T) {
	testCases := []struct {
		in       string
		expected int
		wantErr  bool
	}{
		{"1,234,567", 1234567, false},
		{" 42 ", 42, false},
		{"", 0, false},
		{"?", 0, false},
		{"twelve", 0, true},
	}
	for _, test := range testCases {
		n, err := Number(test.in)
		if test.wantErr {
			require.Error(t, err, test.in)
			continue
		}
		require.NoError(t, err, test.in)
		require.Equal(t, test.expected, n)
	}
}

func TestGetAnchors(t *testing.T) {
	d := doc(t, `<ul>
		<li><a href="/works/123">Some   Work</a></li>
		<li><a href="/users/alice/pseuds/alice">alice</a></li>
		<li><a>no href</a></li>
	</ul>`)

	anchors := GetAnchors(d.Find("li a"))
	expected := []Anchor{
		{Name: "Some Work", Href: "/works/123"},
		{Name: "alice", Href: "/users/alice/pseuds/alice"},
		{Name: "no href", Href: ""},
	}
	if diff := cmp.Diff(expected, anchors); diff != "" {
		t.Fatal(diff)
	}
}

func TestTexts(t *testing.T) {
	d := doc(t, `<dd class="fandom"><a>Fandom One</a><a>  </a><a>Fandom Two</a></dd>`)
	got := Texts(d.Find("dd.fandom a"))
	require.Equal(t, []string{"Fandom One", "Fandom Two"}, got)
}
