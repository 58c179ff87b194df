package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"hubspot-deals-connector/internal/model"
)

// Format selects the download encoding for a scan's extracted rows.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat maps a query value onto a Format, defaulting to CSV.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", model.ErrValidation, s)
	}
}

var csvHeader = []string{
	"deal_id", "deal_name", "amount", "deal_stage", "close_date",
	"pipeline", "deal_type", "hubspot_owner_id", "deal_stage_probability",
	"description", "hubspot_created_at", "hubspot_updated_at", "archived",
	"page_number", "extracted_at",
}

// WriteCSV streams the rows as CSV with a fixed header. Optional fields
// render as empty cells.
func WriteCSV(w io.Writer, recs []model.DealRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, rec := range recs {
		row := []string{
			rec.DealID,
			rec.DealName,
			floatCell(rec.Amount),
			rec.DealStage,
			timeCell(rec.CloseDate),
			rec.Pipeline,
			rec.DealType,
			rec.HubSpotOwnerID,
			floatCell(rec.DealStageProbability),
			rec.Description,
			timeCell(rec.HubSpotCreatedAt),
			timeCell(rec.HubSpotUpdatedAt),
			strconv.FormatBool(rec.Archived),
			strconv.FormatInt(rec.PageNumber, 10),
			rec.ExtractedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON streams the rows as a JSON document with an export_info
// envelope describing the scan they came from.
func WriteJSON(w io.Writer, job *model.ScanJob, recs []model.DealRecord) error {
	doc := map[string]any{
		"export_info": map[string]any{
			"scan_id":      job.ScanID,
			"status":       job.Status,
			"record_count": len(recs),
			"exported_at":  time.Now().UTC(),
		},
		"data": recs,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export document: %w", err)
	}
	return nil
}

// Filename builds the suggested download name for a scan export.
func Filename(scanID string, format Format) string {
	stamp := time.Now().UTC().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("deals_%s_%s.%s", scanID, stamp, format)
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
