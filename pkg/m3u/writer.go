package m3u

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Writer writes an extended M3U playlist entry by entry.
type Writer struct {
	out     io.Writer
	started bool
	line    strings.Builder
}

// NewWriter returns a Writer emitting to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteHeader writes the #EXTM3U line once. WriteEntry calls it as needed.
func (w *Writer) WriteHeader() error {
	if w.started {
		return nil
	}
	if _, err := io.WriteString(w.out, "#EXTM3U\n"); err != nil {
		return fmt.Errorf("writing M3U header: %w", err)
	}
	w.started = true
	return nil
}

// WriteEntry writes the #EXTINF line and URL of entry. Known attributes come
// first in a fixed order, then Extra in key order.
func (w *Writer) WriteEntry(entry *Entry) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	duration := entry.Duration
	if duration == 0 {
		duration = -1
	}

	w.line.Reset()
	w.line.WriteString("#EXTINF:")
	w.line.WriteString(strconv.Itoa(duration))
	w.attr("tvg-id", entry.TvgID)
	w.attr("tvg-name", entry.TvgName)
	w.attr("tvg-logo", entry.TvgLogo)
	w.attr("group-title", entry.GroupTitle)
	if entry.ChannelNumber > 0 {
		w.attr("tvg-chno", strconv.Itoa(entry.ChannelNumber))
	}
	for _, key := range slices.Sorted(maps.Keys(entry.Extra)) {
		w.attr(key, entry.Extra[key])
	}
	w.line.WriteByte(',')
	w.line.WriteString(entry.Title)
	w.line.WriteByte('\n')
	w.line.WriteString(entry.URL)
	w.line.WriteByte('\n')

	if _, err := io.WriteString(w.out, w.line.String()); err != nil {
		return fmt.Errorf("writing entry %q: %w", entry.Title, err)
	}
	return nil
}

// attr appends key="value". The attribute syntax has no escape for double
// quotes, so they become single quotes.
func (w *Writer) attr(key, value string) {
	if value == "" {
		return
	}
	w.line.WriteByte(' ')
	w.line.WriteString(key)
	w.line.WriteString(`="`)
	w.line.WriteString(strings.ReplaceAll(value, `"`, `'`))
	w.line.WriteByte('"')
}
