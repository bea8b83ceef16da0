package m3u

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

const maxLineSize = 1024 * 1024

var (
	extinfPattern = regexp.MustCompile(`^#EXTINF:\s*(-?\d+)\s*(.*)$`)
	attrPattern   = regexp.MustCompile(`([a-zA-Z0-9_-]+)=(?:"([^"]*)"|([^\s,]+))`)

	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicXZ    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// LineError describes a malformed line that was skipped.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Reader pulls entries from a playlist one at a time.
type Reader struct {
	scanner  *bufio.Scanner
	closer   io.Closer
	line     int
	extended bool
	pending  *Entry
	group    string
	skipped  []LineError
}

// NewReader returns a Reader over r, decompressing gzip, bzip2 or xz input
// detected by its magic bytes.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(len(magicXZ))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("peeking header: %w", err)
	}

	var (
		src    io.Reader = br
		closer io.Closer
	)
	switch {
	case bytes.HasPrefix(header, magicGzip):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		src, closer = gz, gz
	case bytes.HasPrefix(header, magicBzip2):
		bz, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, fmt.Errorf("creating bzip2 reader: %w", err)
		}
		src, closer = bz, bz
	case bytes.HasPrefix(header, magicXZ):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		src = xr
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{scanner: scanner, closer: closer}, nil
}

// Next returns the next entry, or io.EOF when the playlist is exhausted.
// Malformed #EXTINF lines are skipped and reported by Skipped.
func (r *Reader) Next() (*Entry, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXTM3U"):
			r.extended = true
		case strings.HasPrefix(line, "#EXTINF:"):
			entry, err := parseExtinf(line)
			if err != nil {
				r.skipped = append(r.skipped, LineError{Line: r.line, Err: err})
				r.pending = nil
				continue
			}
			r.pending = entry
		case strings.HasPrefix(line, "#EXTGRP:"):
			r.group = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
		case strings.HasPrefix(line, "#"):
			continue
		default:
			entry := r.pending
			r.pending = nil
			if entry == nil {
				if !r.extended {
					continue
				}
				entry = &Entry{Duration: -1, Title: titleFromURL(line)}
			}
			if entry.GroupTitle == "" {
				entry.GroupTitle = r.group
			}
			r.group = ""
			entry.URL = line
			return entry, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning playlist: %w", err)
	}
	return nil, io.EOF
}

// Skipped returns the malformed lines encountered so far.
func (r *Reader) Skipped() []LineError {
	return r.skipped
}

// Close releases the decompressor, if any. It does not close the source.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// ReadAll collects every entry of a playlist.
func ReadAll(src io.Reader) ([]*Entry, error) {
	r, err := NewReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []*Entry
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
}

func parseExtinf(line string) (*Entry, error) {
	m := extinfPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, errors.New("invalid EXTINF format")
	}

	duration, _ := strconv.Atoi(m[1])
	entry := &Entry{Duration: duration, Extra: map[string]string{}}

	attrs := m[2]
	if idx := titleSeparator(attrs); idx >= 0 {
		entry.Title = strings.TrimSpace(attrs[idx+1:])
		attrs = attrs[:idx]
	}

	for _, a := range attrPattern.FindAllStringSubmatch(attrs, -1) {
		value := a[2]
		if value == "" {
			value = a[3]
		}
		switch key := strings.ToLower(a[1]); key {
		case "tvg-id":
			entry.TvgID = value
		case "tvg-name":
			entry.TvgName = value
		case "tvg-logo":
			entry.TvgLogo = value
		case "group-title":
			entry.GroupTitle = value
		case "tvg-chno":
			entry.ChannelNumber, _ = strconv.Atoi(value)
		default:
			entry.Extra[key] = value
		}
	}
	return entry, nil
}

// titleSeparator returns the index of the last comma outside quotes.
func titleSeparator(s string) int {
	quoted := false
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func titleFromURL(u string) string {
	name := u[strings.LastIndex(u, "/")+1:]
	if idx := strings.Index(name, "?"); idx > 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	if name == "" {
		return "Unknown"
	}
	return name
}
