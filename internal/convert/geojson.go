package convert

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

// GeoJSONToCSV flattens the feature collection at src into a CSV file at
// dst: one row per feature, one column per property. Column order follows
// first appearance across features so the output is deterministic for a
// given input; features missing a property get an empty cell.
func GeoJSONToCSV(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("convert: read %s: %w", src, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return fmt.Errorf("convert: parse geojson %s: %w", src, err)
	}

	header, index := stableHeader(fc)

	return writeCSV(dst, "", func(w *csv.Writer) error {
		if err := w.Write(header); err != nil {
			return err
		}
		row := make([]string, len(header))
		for _, feat := range fc.Features {
			for i := range row {
				row[i] = ""
			}
			for key, val := range feat.Properties {
				row[index[key]] = propString(val)
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// stableHeader builds the property column list ordered by first appearance,
// breaking the map-iteration tie within a single feature lexicographically.
func stableHeader(fc *geojson.FeatureCollection) ([]string, map[string]int) {
	var header []string
	index := map[string]int{}
	for _, feat := range fc.Features {
		fresh := make([]string, 0, len(feat.Properties))
		for key := range feat.Properties {
			if _, ok := index[key]; !ok {
				fresh = append(fresh, key)
			}
		}
		sort.Strings(fresh)
		for _, key := range fresh {
			index[key] = len(header)
			header = append(header, key)
		}
	}
	return header, index
}

// propString renders a geojson property value as CSV text.
func propString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
