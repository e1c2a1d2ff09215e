package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Text codec for the classic RPC00B sidecar format, one "KEY: value" line per
// parameter with LINE_* / SAMP_* naming and 1-based coefficient indices.

// WriteText writes m in RPC00B text format.
func WriteText(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)

	scalars := []struct {
		key  string
		val  float64
		unit string
	}{
		{"LINE_OFF", m.RowOffset, "pixels"},
		{"SAMP_OFF", m.ColOffset, "pixels"},
		{"LAT_OFF", m.LatOffset, "degrees"},
		{"LONG_OFF", m.LonOffset, "degrees"},
		{"HEIGHT_OFF", m.AltOffset, "meters"},
		{"LINE_SCALE", m.RowScale, "pixels"},
		{"SAMP_SCALE", m.ColScale, "pixels"},
		{"LAT_SCALE", m.LatScale, "degrees"},
		{"LONG_SCALE", m.LonScale, "degrees"},
		{"HEIGHT_SCALE", m.AltScale, "meters"},
	}
	for _, s := range scalars {
		fmt.Fprintf(bw, "%s: %.12f %s\n", s.key, s.val, s.unit)
	}

	coeffs := []struct {
		key string
		val *[20]float64
	}{
		{"LINE_NUM_COEFF", &m.RowNum},
		{"LINE_DEN_COEFF", &m.RowDen},
		{"SAMP_NUM_COEFF", &m.ColNum},
		{"SAMP_DEN_COEFF", &m.ColDen},
	}
	for _, c := range coeffs {
		for i, v := range c.val {
			fmt.Fprintf(bw, "%s_%d: %.12e\n", c.key, i+1, v)
		}
	}

	return eris.Wrap(bw.Flush(), "rpc: write text model")
}

// ReadText parses an RPC00B text model. Unknown keys are ignored so that
// vendor sidecar files carrying extra metadata lines still load.
func ReadText(r io.Reader) (*Model, error) {
	m := &Model{}
	found := map[string]bool{}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		// drop trailing unit words like "pixels" or "degrees"
		fields := strings.Fields(strings.TrimSpace(rest))
		if len(fields) == 0 {
			continue
		}
		val, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "rpc: parse value for %s", key)
		}

		if dst := scalarField(m, key); dst != nil {
			*dst = val
			found[key] = true
			continue
		}
		if dst, idx, ok := coeffField(m, key); ok {
			dst[idx] = val
			found[key] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "rpc: read text model")
	}

	if missing := missingKeys(found); len(missing) > 0 {
		return nil, eris.Errorf("rpc: text model incomplete, missing %s", strings.Join(missing, ", "))
	}
	return m, nil
}

func scalarField(m *Model, key string) *float64 {
	switch key {
	case "LINE_OFF":
		return &m.RowOffset
	case "SAMP_OFF":
		return &m.ColOffset
	case "LAT_OFF":
		return &m.LatOffset
	case "LONG_OFF":
		return &m.LonOffset
	case "HEIGHT_OFF":
		return &m.AltOffset
	case "LINE_SCALE":
		return &m.RowScale
	case "SAMP_SCALE":
		return &m.ColScale
	case "LAT_SCALE":
		return &m.LatScale
	case "LONG_SCALE":
		return &m.LonScale
	case "HEIGHT_SCALE":
		return &m.AltScale
	}
	return nil
}

func coeffField(m *Model, key string) (*[20]float64, int, bool) {
	for _, c := range []struct {
		prefix string
		dst    *[20]float64
	}{
		{"LINE_NUM_COEFF_", &m.RowNum},
		{"LINE_DEN_COEFF_", &m.RowDen},
		{"SAMP_NUM_COEFF_", &m.ColNum},
		{"SAMP_DEN_COEFF_", &m.ColDen},
	} {
		if !strings.HasPrefix(key, c.prefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(key, c.prefix))
		if err != nil || idx < 1 || idx > 20 {
			return nil, 0, false
		}
		return c.dst, idx - 1, true
	}
	return nil, 0, false
}

func missingKeys(found map[string]bool) []string {
	required := []string{
		"LINE_OFF", "SAMP_OFF", "LAT_OFF", "LONG_OFF", "HEIGHT_OFF",
		"LINE_SCALE", "SAMP_SCALE", "LAT_SCALE", "LONG_SCALE", "HEIGHT_SCALE",
	}
	for _, p := range []string{"LINE_NUM_COEFF_", "LINE_DEN_COEFF_", "SAMP_NUM_COEFF_", "SAMP_DEN_COEFF_"} {
		for i := 1; i <= 20; i++ {
			required = append(required, fmt.Sprintf("%s%d", p, i))
		}
	}
	var missing []string
	for _, k := range required {
		if !found[k] {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// FromTagValues builds a model from the 92-entry RPC00B geotiff tag block:
// err_bias and err_rand (discarded), five offsets, five scales, then the
// line-numerator, line-denominator, sample-numerator and sample-denominator
// coefficient blocks.
func FromTagValues(vals []float64) (*Model, error) {
	if len(vals) != 92 {
		return nil, eris.Errorf("rpc: tag block has %d values, want 92", len(vals))
	}
	m := &Model{
		RowOffset: vals[2],
		ColOffset: vals[3],
		LatOffset: vals[4],
		LonOffset: vals[5],
		AltOffset: vals[6],
		RowScale:  vals[7],
		ColScale:  vals[8],
		LatScale:  vals[9],
		LonScale:  vals[10],
		AltScale:  vals[11],
	}
	copy(m.RowNum[:], vals[12:32])
	copy(m.RowDen[:], vals[32:52])
	copy(m.ColNum[:], vals[52:72])
	copy(m.ColDen[:], vals[72:92])
	return m, nil
}

// WriteJSON writes m as a JSON document with snake_case keys matching the
// struct tags above.
func WriteJSON(w io.Writer, m *Model) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(m), "rpc: write json model")
}

// ReadJSON parses a JSON model document.
func ReadJSON(r io.Reader) (*Model, error) {
	m := &Model{}
	if err := json.NewDecoder(r).Decode(m); err != nil {
		return nil, eris.Wrap(err, "rpc: read json model")
	}
	return m, nil
}
