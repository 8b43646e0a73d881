// Package output renders scan results as human-readable lines or as a
// single JSON document.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/tag"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Chainer resolves the link chain of a record for text output.
type Chainer interface {
	Chain(key tag.Key) []models.Record
}

// Printer writes results in one format. Text results are written as they
// arrive; JSON results are buffered until Flush so the document is always
// complete.
type Printer struct {
	w       io.Writer
	format  string
	chainer Chainer
	buf     []models.ScanResult
}

// NewPrinter creates a printer. chainer may be nil.
func NewPrinter(w io.Writer, format string, chainer Chainer) *Printer {
	return &Printer{w: w, format: format, chainer: chainer}
}

// Add records one result.
func (p *Printer) Add(r models.ScanResult) error {
	if p.format == FormatJSON {
		p.buf = append(p.buf, r)
		return nil
	}
	_, err := io.WriteString(p.w, TextLine(r, p.links(r))+"\n")
	return err
}

// Flush emits buffered JSON. With single set, exactly one buffered result
// is written as an object; otherwise an array sorted by file path.
func (p *Printer) Flush(single bool) error {
	if p.format != FormatJSON {
		return nil
	}
	if single {
		if len(p.buf) != 1 {
			return fmt.Errorf("output: single-file mode with %d results", len(p.buf))
		}
		return WriteJSON(p.w, p.buf[0])
	}
	out := make([]models.ScanResult, len(p.buf))
	copy(out, p.buf)
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return WriteJSON(p.w, out)
}

// Stream writes r immediately in either format. JSON results are written
// as one compact object per line.
func (p *Printer) Stream(r models.ScanResult) error {
	if p.format != FormatJSON {
		return p.Add(r)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("output: encode: %w", err)
	}
	_, err = p.w.Write(append(data, '\n'))
	return err
}

func (p *Printer) links(r models.ScanResult) []models.Record {
	if p.chainer == nil {
		return nil
	}
	key, err := tag.ParseKey(r.PK)
	if err != nil {
		return nil
	}
	chain := p.chainer.Chain(key)
	if len(chain) < 2 {
		return nil
	}
	return chain[1:]
}

// WriteJSON writes v indented by two spaces with a trailing newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("output: encode: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// TextLine formats r on one line; links, when present, are appended as
// the records the creator was itself derived from.
func TextLine(r models.ScanResult, links []models.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s [pk %s]", r.FilePath, r.Creator, r.PK)
	if r.BundleID != "" {
		fmt.Fprintf(&b, " bundle=%s", r.BundleID)
	}
	if r.TeamIdentifier != "" {
		fmt.Fprintf(&b, " team=%s", r.TeamIdentifier)
	}
	if r.SigningIdentifier != "" {
		fmt.Fprintf(&b, " signing=%s", r.SigningIdentifier)
	}
	if r.Timestamp != nil {
		fmt.Fprintf(&b, " time=%s", time.Unix(*r.Timestamp, 0).UTC().Format(time.RFC3339))
	}
	for _, l := range links {
		fmt.Fprintf(&b, " <- %s [pk %s]", l.URL, l.PK)
	}
	return b.String()
}
