package artifacts

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
)

// Sheet names read from a reference workbook.
const (
	ReferenceSheet = "reference"
	OODSheet       = "ood_stats"
)

// applyWorkbook replaces the reference table, and the OOD statistics when
// present, with the contents of an xlsx workbook. Header names are matched
// case-insensitively.
func applyWorkbook(b *Bundle, path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return apperrors.NewConfigurationError("cannot open reference workbook "+path, err)
	}
	defer apperrors.SafeClose(f, "reference workbook")

	sheets := make(map[string]bool)
	for _, s := range f.GetSheetList() {
		sheets[s] = true
	}
	if !sheets[ReferenceSheet] {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("reference workbook has no %q sheet", ReferenceSheet), nil)
	}

	rows, err := f.GetRows(ReferenceSheet)
	if err != nil {
		return apperrors.NewConfigurationError("cannot read reference sheet", err)
	}
	targets, err := parseReferenceRows(rows)
	if err != nil {
		return err
	}
	b.Reference.Targets = targets

	if sheets[OODSheet] {
		rows, err := f.GetRows(OODSheet)
		if err != nil {
			return apperrors.NewConfigurationError("cannot read ood sheet", err)
		}
		stats, err := parseOODRows(rows)
		if err != nil {
			return err
		}
		b.OOD.Features = stats
	}

	if raw, err := os.ReadFile(path); err == nil {
		b.Fingerprint = fmt.Sprintf("%016x", xxhash.Sum64String(b.Fingerprint+"|"+string(raw)))
	}
	return nil
}

func parseReferenceRows(rows [][]string) ([]Target, error) {
	cols, body, err := header(rows, ReferenceSheet, "target", "reference", "domain")
	if err != nil {
		return nil, err
	}

	targets := make([]Target, 0, len(body))
	for i, row := range body {
		name := cell(row, cols["target"])
		if name == "" {
			continue
		}
		ref, err := number(row, cols["reference"], ReferenceSheet, i+2)
		if err != nil {
			return nil, err
		}
		weight := 1.0
		if c, ok := cols["weight"]; ok && cell(row, c) != "" {
			if weight, err = number(row, c, ReferenceSheet, i+2); err != nil {
				return nil, err
			}
		}
		targets = append(targets, Target{
			Name:      name,
			Reference: ref,
			Weight:    weight,
			Domain:    cell(row, cols["domain"]),
		})
	}
	return targets, nil
}

func parseOODRows(rows [][]string) ([]FeatureStat, error) {
	cols, body, err := header(rows, OODSheet, "feature", "mean", "std")
	if err != nil {
		return nil, err
	}

	stats := make([]FeatureStat, 0, len(body))
	for i, row := range body {
		name := cell(row, cols["feature"])
		if name == "" {
			continue
		}
		mean, err := number(row, cols["mean"], OODSheet, i+2)
		if err != nil {
			return nil, err
		}
		std, err := number(row, cols["std"], OODSheet, i+2)
		if err != nil {
			return nil, err
		}
		stats = append(stats, FeatureStat{Feature: name, Mean: mean, Std: std})
	}
	return stats, nil
}

func header(rows [][]string, sheet string, required ...string) (map[string]int, [][]string, error) {
	if len(rows) == 0 {
		return nil, nil, apperrors.NewConfigurationError(fmt.Sprintf("sheet %q is empty", sheet), nil)
	}
	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, r := range required {
		if _, ok := cols[r]; !ok {
			return nil, nil, apperrors.NewConfigurationError(
				fmt.Sprintf("sheet %q has no %q column", sheet, r), nil)
		}
	}
	return cols, rows[1:], nil
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func number(row []string, col int, sheet string, line int) (float64, error) {
	v, err := strconv.ParseFloat(cell(row, col), 64)
	if err != nil {
		return 0, apperrors.NewConfigurationError(
			fmt.Sprintf("sheet %q row %d: %q is not a number", sheet, line, cell(row, col)), err)
	}
	return v, nil
}
