package topology

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joshuamhtsang/sine/internal/cerrors"
	"github.com/joshuamhtsang/sine/internal/modulation"
)

// LoadMCSTable parses the text MCS table format of spec.md §6.5: one
// entry per row, whitespace- or comma-separated fields
// "mcs_index modulation code_rate min_snr_db fec_type [bandwidth_mhz]".
// Blank lines and lines starting with '#' are skipped. The result is
// sorted ascending by min_snr_db and verified non-empty before
// modulation.NewTable is constructed, so an empty file surfaces as a
// KindConfig error rather than a panic.
func LoadMCSTable(r io.Reader, hysteresisDB float64) (*modulation.Table, error) {
	const op = "topology.LoadMCSTable"

	scanner := bufio.NewScanner(r)
	var entries []modulation.MCSEntry
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) < 5 {
			return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("line %d: expected at least 5 fields, got %d: %q", lineNo, len(fields), line))
		}

		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("line %d: invalid mcs_index %q: %w", lineNo, fields[0], err))
		}
		codeRate, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("line %d: invalid code_rate %q: %w", lineNo, fields[2], err))
		}
		minSNR, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("line %d: invalid min_snr_db %q: %w", lineNo, fields[3], err))
		}

		entries = append(entries, modulation.MCSEntry{
			Index:      idx,
			Modulation: modulation.Scheme(fields[1]),
			CodeRate:   codeRate,
			MinSNRDB:   minSNR,
			FEC:        modulation.FEC(fields[4]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("reading mcs table: %w", err))
	}
	if len(entries) == 0 {
		return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("mcs table is empty"))
	}

	return modulation.NewTable(entries, hysteresisDB), nil
}
