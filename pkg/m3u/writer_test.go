package m3u

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriter_WriteEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	err := w.WriteEntry(&Entry{
		TvgID:      "news.uk",
		TvgName:    `The "News"`,
		TvgLogo:    "http://img/n.png",
		GroupTitle: "News",
		Title:      "News One",
		URL:        "http://h/live/a/b/1.ts",
		Extra:      map[string]string{"z-attr": "2", "a-attr": "1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteEntry(&Entry{Title: "Bare", URL: "http://h/2.ts"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `#EXTM3U
#EXTINF:-1 tvg-id="news.uk" tvg-name="The 'News'" tvg-logo="http://img/n.png" group-title="News" a-attr="1" z-attr="2",News One
http://h/live/a/b/1.ts
#EXTINF:-1,Bare
http://h/2.ts
`
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	in := &Entry{TvgID: "x", GroupTitle: "Movies, New", Title: "Film", URL: "http://h/movie/a/b/3.mkv", ChannelNumber: 3}
	if err := w.WriteEntry(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := ReadAll(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	out := entries[0]
	if out.GroupTitle != in.GroupTitle || out.Title != in.Title || out.URL != in.URL || out.ChannelNumber != 3 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
