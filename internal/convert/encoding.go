// Package convert turns spreadsheet sheets and geojson feature collections
// into normalized CSV files. Both conversions are structurally parallel
// (read source, write CSV at the destination path); they differ only in the
// reader side.
package convert

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// nopFlush is the flush function for pass-through writers.
func nopFlush() error { return nil }

// encodedWriter wraps w so that written UTF-8 text is transcoded into the
// named IANA encoding. UTF-8 (or empty) returns w unchanged. The returned
// flush function must be called before closing the underlying writer to
// drain any buffered transcoder state.
func encodedWriter(w io.Writer, name string) (io.Writer, func() error, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || n == "utf-8" || n == "utf8" {
		return w, nopFlush, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, nil, fmt.Errorf("convert: unknown encoding %q: %w", name, err)
	}
	if enc == nil || enc == encoding.Nop {
		return w, nopFlush, nil
	}
	tw := transform.NewWriter(w, enc.NewEncoder())
	return tw, tw.Close, nil
}
