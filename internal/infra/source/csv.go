// Package source implements port.CustomerSource for CSV exports and for
// Postgres/MySQL tables holding the same customer snapshot.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"

	"go.uber.org/zap"
)

// Column names of the customer snapshot, shared by CSV headers and SQL tables.
const (
	colID               = "master_id"
	colOrderChannel     = "order_channel"
	colLastOrderChannel = "last_order_channel"
	colFirstOrderDate   = "first_order_date"
	colLastOrderDate    = "last_order_date"
	colLastOnline       = "last_order_date_online"
	colLastOffline      = "last_order_date_offline"
	colOrdersOnline     = "order_num_total_ever_online"
	colOrdersOffline    = "order_num_total_ever_offline"
	colSpendOffline     = "customer_value_total_ever_offline"
	colSpendOnline      = "customer_value_total_ever_online"
	colInterests        = "interested_in_categories_12"
)

var requiredColumns = []string{
	colID, colFirstOrderDate, colLastOrderDate,
	colOrdersOnline, colOrdersOffline, colSpendOffline, colSpendOnline,
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// CSV reads a customer snapshot from a CSV file or stream with a header row.
type CSV struct {
	name   string
	path   string
	reader io.Reader
	logger *zap.Logger
}

// NewCSVFile creates a source that opens path on every Load.
func NewCSVFile(path string, logger *zap.Logger) *CSV {
	return &CSV{name: "csv", path: path, logger: logger}
}

// NewCSVReader creates a single-use source over r, e.g. an HTTP request body.
func NewCSVReader(name string, r io.Reader, logger *zap.Logger) *CSV {
	return &CSV{name: name, reader: r, logger: logger}
}

// Name identifies the source in logs and metrics.
func (s *CSV) Name() string { return s.name }

// Load parses every row. Rows with a missing required value or a negative
// count or spend reject the whole snapshot with *domain.ErrInvalidRecords.
func (s *CSV) Load(ctx context.Context) ([]domain.CustomerRecord, error) {
	r := s.reader
	if r == nil {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.path, err)
		}
		defer f.Close()
		r = f
	}
	return ParseCSV(ctx, r, s.logger)
}

// ParseCSV decodes a customer snapshot.
func ParseCSV(ctx context.Context, r io.Reader, logger *zap.Logger) ([]domain.CustomerRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.ErrValidation{Field: "csv", Message: "empty input"}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			return nil, &domain.ErrValidation{Field: c, Message: "missing column"}
		}
	}
	get := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		records []domain.CustomerRecord
		bad     []string
		line    = 1
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := parseRow(func(col string) string { return get(row, col) })
		if err != nil {
			id := get(row, colID)
			if id == "" {
				id = fmt.Sprintf("row %d", line)
			}
			logger.Debug("invalid customer row",
				zap.Int("line", line),
				zap.String("master_id", id),
				zap.Error(err),
			)
			bad = append(bad, id)
			continue
		}
		records = append(records, rec)
	}

	if len(bad) > 0 {
		return nil, &domain.ErrInvalidRecords{Stage: "load", Reason: "missing or malformed required field", IDs: bad}
	}
	return records, nil
}

// parseRow builds a record from column lookups; absent optional columns
// read as "".
func parseRow(get func(col string) string) (domain.CustomerRecord, error) {
	rec := domain.CustomerRecord{
		ID:               get(colID),
		OrderChannel:     get(colOrderChannel),
		LastOrderChannel: get(colLastOrderChannel),
		InterestedIn:     ParseTags(get(colInterests)),
	}
	if rec.ID == "" {
		return rec, fmt.Errorf("%s is empty", colID)
	}

	var err error
	if rec.FirstOrderDate, err = parseDate(get(colFirstOrderDate), colFirstOrderDate, true); err != nil {
		return rec, err
	}
	if rec.LastOrderDate, err = parseDate(get(colLastOrderDate), colLastOrderDate, true); err != nil {
		return rec, err
	}
	if rec.LastOrderOnline, err = parseDate(get(colLastOnline), colLastOnline, false); err != nil {
		return rec, err
	}
	if rec.LastOrderOffline, err = parseDate(get(colLastOffline), colLastOffline, false); err != nil {
		return rec, err
	}

	for _, f := range []struct {
		col string
		dst *float64
	}{
		{colOrdersOnline, &rec.OrdersOnline},
		{colOrdersOffline, &rec.OrdersOffline},
		{colSpendOffline, &rec.SpendOffline},
		{colSpendOnline, &rec.SpendOnline},
	} {
		if *f.dst, err = parseAmount(get(f.col), f.col); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func parseDate(v, col string, required bool) (time.Time, error) {
	if v == "" {
		if required {
			return time.Time{}, fmt.Errorf("%s is empty", col)
		}
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unrecognized date %q", col, v)
}

func parseAmount(v, col string) (float64, error) {
	if v == "" {
		return 0, fmt.Errorf("%s is empty", col)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", col, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("%s is negative", col)
	}
	return f, nil
}

// ParseTags splits a category list such as "[KADIN, AKTIFSPOR]".
func ParseTags(v string) []string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "[")
	v = strings.TrimSuffix(v, "]")
	var tags []string
	for _, t := range strings.Split(v, ",") {
		t = strings.Trim(strings.TrimSpace(t), `'"`)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
