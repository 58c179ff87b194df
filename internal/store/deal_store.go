package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"hubspot-deals-connector/internal/model"
)

// MaxPageSize caps the page size of result reads to bound response size.
const MaxPageSize = 1000

// AppendDeals writes one batch of normalized rows in a single transaction.
// Rows are append-only; duplicates from re-fetched pages after a resume are
// written as-is (at-least-once, not exactly-once).
func (s *Store) AppendDeals(recs []model.DealRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning deal insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO deal_records (
			id, job_id, deal_id, deal_name, amount, deal_stage, close_date,
			pipeline, deal_type, hubspot_owner_id, deal_stage_probability,
			description, analytics_source, num_associated_contacts, priority,
			next_step, forecast_amount, forecast_probability,
			hubspot_created_at, hubspot_updated_at, archived, raw_properties,
			extracted_at, scan_id, tenant_id, page_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing deal insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		rawJSON, err := json.Marshal(rec.RawProperties)
		if err != nil {
			return fmt.Errorf("encoding raw properties for deal %q: %w", rec.DealID, err)
		}
		_, err = stmt.Exec(
			rec.ID, rec.JobID, rec.DealID, rec.DealName, rec.Amount, rec.DealStage, rec.CloseDate,
			rec.Pipeline, rec.DealType, rec.HubSpotOwnerID, rec.DealStageProbability,
			rec.Description, rec.AnalyticsSource, rec.NumAssociatedContacts, rec.Priority,
			rec.NextStep, rec.ForecastAmount, rec.ForecastProbability,
			rec.HubSpotCreatedAt, rec.HubSpotUpdatedAt, rec.Archived, string(rawJSON),
			rec.ExtractedAt, rec.ScanID, rec.TenantID, rec.PageNumber)
		if err != nil {
			return fmt.Errorf("inserting deal %q: %w", rec.DealID, err)
		}
	}
	return tx.Commit()
}

// DealsPage returns one 1-based page of a scan's rows in insertion order,
// plus the total row count. pageSize is clamped to MaxPageSize; a page
// beyond the data yields an empty slice with an accurate total.
func (s *Store) DealsPage(scanID string, page, pageSize int) ([]model.DealRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var total int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM deal_records WHERE scan_id = ?`, scanID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting deals for scan %q: %w", scanID, err)
	}

	offset := (page - 1) * pageSize
	rows, err := s.db.Query(dealSelect+` WHERE scan_id = ? ORDER BY rowid LIMIT ? OFFSET ?`,
		scanID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("reading deals page for scan %q: %w", scanID, err)
	}
	defer rows.Close()

	recs, err := collectDeals(rows)
	return recs, total, err
}

// AllDeals streams every row of a scan in insertion order, for export.
func (s *Store) AllDeals(scanID string) ([]model.DealRecord, error) {
	rows, err := s.db.Query(dealSelect+` WHERE scan_id = ? ORDER BY rowid`, scanID)
	if err != nil {
		return nil, fmt.Errorf("reading deals for scan %q: %w", scanID, err)
	}
	defer rows.Close()
	return collectDeals(rows)
}

// CountDeals returns the persisted row count for a scan, used to reconcile
// progress counters after crash recovery.
func (s *Store) CountDeals(scanID string) (int64, error) {
	var total int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM deal_records WHERE scan_id = ?`, scanID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("counting deals for scan %q: %w", scanID, err)
	}
	return total, nil
}

const dealSelect = `
	SELECT id, job_id, deal_id, deal_name, amount, deal_stage, close_date,
	       pipeline, deal_type, hubspot_owner_id, deal_stage_probability,
	       description, analytics_source, num_associated_contacts, priority,
	       next_step, forecast_amount, forecast_probability,
	       hubspot_created_at, hubspot_updated_at, archived, raw_properties,
	       extracted_at, scan_id, tenant_id, page_number
	FROM deal_records`

func collectDeals(rows *sql.Rows) ([]model.DealRecord, error) {
	var recs []model.DealRecord
	for rows.Next() {
		var rec model.DealRecord
		var dealName, dealStage, pipeline, dealType, ownerID sql.NullString
		var description, analyticsSource, priority, nextStep, tenantID sql.NullString
		var amount, probability, forecastAmount, forecastProbability sql.NullFloat64
		var closeDate, createdAt, updatedAt sql.NullTime
		var rawJSON string

		err := rows.Scan(&rec.ID, &rec.JobID, &rec.DealID, &dealName, &amount, &dealStage, &closeDate,
			&pipeline, &dealType, &ownerID, &probability,
			&description, &analyticsSource, &rec.NumAssociatedContacts, &priority,
			&nextStep, &forecastAmount, &forecastProbability,
			&createdAt, &updatedAt, &rec.Archived, &rawJSON,
			&rec.ExtractedAt, &rec.ScanID, &tenantID, &rec.PageNumber)
		if err != nil {
			return nil, fmt.Errorf("scanning deal row: %w", err)
		}

		rec.DealName = dealName.String
		rec.DealStage = dealStage.String
		rec.Pipeline = pipeline.String
		rec.DealType = dealType.String
		rec.HubSpotOwnerID = ownerID.String
		rec.Description = description.String
		rec.AnalyticsSource = analyticsSource.String
		rec.Priority = priority.String
		rec.NextStep = nextStep.String
		rec.TenantID = tenantID.String
		if amount.Valid {
			rec.Amount = &amount.Float64
		}
		if probability.Valid {
			rec.DealStageProbability = &probability.Float64
		}
		if forecastAmount.Valid {
			rec.ForecastAmount = &forecastAmount.Float64
		}
		if forecastProbability.Valid {
			rec.ForecastProbability = &forecastProbability.Float64
		}
		if closeDate.Valid {
			rec.CloseDate = &closeDate.Time
		}
		if createdAt.Valid {
			rec.HubSpotCreatedAt = &createdAt.Time
		}
		if updatedAt.Valid {
			rec.HubSpotUpdatedAt = &updatedAt.Time
		}
		if err := json.Unmarshal([]byte(rawJSON), &rec.RawProperties); err != nil {
			return nil, fmt.Errorf("decoding raw properties: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
