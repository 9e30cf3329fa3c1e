// Package export renders slabs as CSV, JSON or printable labels.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
)

const dateLayout = "2006-01-02"

// CSVHeader is the fixed column order of CSV exports.
var CSVHeader = []string{
	"Serial",
	"Material",
	"Color",
	"Length",
	"Width",
	"Thickness",
	"Status",
	"Supplier",
	"Location",
	"Cost",
	"Received Date",
	"Slab Type",
}

// Options toggles optional sections of a JSON export.
type Options struct {
	IncludeImages  bool
	IncludeHistory bool
}

// Document is the JSON export envelope.
type Document struct {
	ExportDate     time.Time `json:"exportDate"`
	TotalUnits     int       `json:"totalUnits"`
	Units          []Unit    `json:"units"`
	IncludeImages  bool      `json:"includeImages"`
	IncludeHistory bool      `json:"includeHistory"`
}

// Unit is the JSON shape of a single slab.
type Unit struct {
	ID           string     `json:"id"`
	Serial       string     `json:"serial"`
	Material     string     `json:"material"`
	Color        string     `json:"color"`
	Length       float64    `json:"length"`
	Width        float64    `json:"width"`
	Thickness    float64    `json:"thickness"`
	Supplier     string     `json:"supplier,omitempty"`
	Location     string     `json:"location,omitempty"`
	Cost         string     `json:"cost"`
	SlabType     string     `json:"slabType"`
	Status       string     `json:"status"`
	JobReference *string    `json:"jobReference,omitempty"`
	ReceivedDate *time.Time `json:"receivedDate,omitempty"`
	ConsumedDate *time.Time `json:"consumedDate,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

func ToUnit(s domain.Slab) Unit {
	return Unit{
		ID:           s.ID,
		Serial:       s.Serial,
		Material:     s.Material,
		Color:        s.Color,
		Length:       s.Length,
		Width:        s.Width,
		Thickness:    s.Thickness,
		Supplier:     s.Supplier,
		Location:     s.Location,
		Cost:         s.Cost.StringFixed(2),
		SlabType:     s.SlabType.String(),
		Status:       s.Status.String(),
		JobReference: s.JobReference,
		ReceivedDate: s.ReceivedDate,
		ConsumedDate: s.ConsumedDate,
		Notes:        s.Notes,
	}
}

// Extension returns the file extension used when storing an artifact of format f.
func Extension(f domain.ExportFormat) string {
	switch f {
	case domain.ExportFormatCSV:
		return "csv"
	case domain.ExportFormatJSON:
		return "json"
	default:
		return "txt"
	}
}

// ContentType returns the MIME type of an artifact of format f.
func ContentType(f domain.ExportFormat) string {
	switch f {
	case domain.ExportFormatCSV:
		return "text/csv"
	case domain.ExportFormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Label renders the printable label line for a slab.
func Label(s domain.Slab) string {
	return fmt.Sprintf("Label for %s - %s %s", s.Serial, s.Material, s.Color)
}

// EncodeUnit serializes a single slab: a CSV row without header, a JSON unit, or a label line.
func EncodeUnit(f domain.ExportFormat, s domain.Slab) (string, error) {
	switch f {
	case domain.ExportFormatCSV:
		row, err := writeCSV(nil, [][]string{csvRow(s)})
		if err != nil {
			return "", err
		}
		return strings.TrimSuffix(row, "\n"), nil
	case domain.ExportFormatJSON:
		payload, err := json.Marshal(ToUnit(s))
		if err != nil {
			return "", fmt.Errorf("failed to marshal unit %s: %w", s.ID, err)
		}
		return string(payload), nil
	case domain.ExportFormatLabels:
		return Label(s), nil
	default:
		return "", fmt.Errorf("%w: invalid export format %q", domain.ErrValidation, f)
	}
}

// Render serializes a full export document.
func Render(f domain.ExportFormat, slabs []domain.Slab, opts Options, exportedAt time.Time) ([]byte, error) {
	switch f {
	case domain.ExportFormatCSV:
		rows := make([][]string, 0, len(slabs))
		for _, s := range slabs {
			rows = append(rows, csvRow(s))
		}
		out, err := writeCSV(CSVHeader, rows)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	case domain.ExportFormatJSON:
		units := make([]Unit, 0, len(slabs))
		for _, s := range slabs {
			units = append(units, ToUnit(s))
		}
		doc := Document{
			ExportDate:     exportedAt.UTC(),
			TotalUnits:     len(units),
			Units:          units,
			IncludeImages:  opts.IncludeImages,
			IncludeHistory: opts.IncludeHistory,
		}
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal export document: %w", err)
		}
		return out, nil
	case domain.ExportFormatLabels:
		labels := make([]string, 0, len(slabs))
		for _, s := range slabs {
			labels = append(labels, Label(s))
		}
		return []byte(strings.Join(labels, "\n")), nil
	default:
		return nil, fmt.Errorf("%w: invalid export format %q", domain.ErrValidation, f)
	}
}

// ParseJSON decodes a document produced by Render with the JSON format.
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid export document: %v", domain.ErrValidation, err)
	}
	return &doc, nil
}

func csvRow(s domain.Slab) []string {
	received := ""
	if s.ReceivedDate != nil {
		received = s.ReceivedDate.UTC().Format(dateLayout)
	}

	return []string{
		s.Serial,
		s.Material,
		s.Color,
		formatFloat(s.Length),
		formatFloat(s.Width),
		formatFloat(s.Thickness),
		s.Status.String(),
		s.Supplier,
		s.Location,
		s.Cost.StringFixed(2),
		received,
		s.SlabType.String(),
	}
}

func writeCSV(header []string, rows [][]string) (string, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if header != nil {
		if err := writer.Write(header); err != nil {
			return "", err
		}
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
