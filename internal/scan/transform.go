package scan

import (
	"time"

	"github.com/google/uuid"

	"hubspot-deals-connector/internal/hubspot"
	"hubspot-deals-connector/internal/model"
	"hubspot-deals-connector/pkg/utils"
)

// TransformDeal maps one raw HubSpot deal onto the destination schema. A
// missing or null source field leaves the typed field empty and is never a
// failure. A value that is present but cannot be coerced also leaves the
// field empty, but flags the record as malformed so the run loop can count
// it; the rest of the record, including the verbatim property bag, is kept
// either way.
func TransformDeal(deal hubspot.Deal, jobID, scanID, tenantID string, pageNumber int64) (model.DealRecord, bool) {
	props := deal.Properties
	malformed := false

	// absent, null and empty-string values are simply empty fields;
	// present-but-uncoercible values are the only malformation case
	present := func(key string) (any, bool) {
		v, ok := props[key]
		if !ok || v == nil {
			return nil, false
		}
		if s, isStr := v.(string); isStr && s == "" {
			return nil, false
		}
		return v, true
	}
	coerceFloat := func(key string) *float64 {
		v, ok := present(key)
		if !ok {
			return nil
		}
		f, ok := utils.Float(v)
		if !ok {
			malformed = true
			return nil
		}
		return &f
	}
	coerceTime := func(key string) *time.Time {
		v, ok := present(key)
		if !ok {
			return nil
		}
		t, ok := utils.Time(v)
		if !ok {
			malformed = true
			return nil
		}
		return &t
	}

	rec := model.DealRecord{
		ID:               uuid.New().String(),
		JobID:            jobID,
		DealID:           deal.ID,
		DealName:         utils.String(props["dealname"]),
		Amount:           coerceFloat("amount"),
		DealStage:        utils.String(props["dealstage"]),
		CloseDate:        coerceTime("closedate"),
		Pipeline:         utils.String(props["pipeline"]),
		DealType:         utils.String(props["dealtype"]),
		HubSpotOwnerID:   utils.String(props["hubspot_owner_id"]),
		Description:      utils.String(props["description"]),
		AnalyticsSource:  utils.String(props["hs_analytics_source"]),
		Priority:         utils.String(props["hs_priority"]),
		NextStep:         utils.String(props["hs_next_step"]),
		ForecastAmount:   coerceFloat("hs_forecast_amount"),
		HubSpotCreatedAt: coerceTime("createdate"),
		HubSpotUpdatedAt: coerceTime("hs_lastmodifieddate"),
		Archived:         deal.Archived,
		RawProperties:    props,
		ExtractedAt:      time.Now().UTC(),
		ScanID:           scanID,
		TenantID:         tenantID,
		PageNumber:       pageNumber,
	}

	// hs_deal_stage_probability arrives as a percentage
	if p := coerceFloat("hs_deal_stage_probability"); p != nil {
		frac := *p / 100.0
		rec.DealStageProbability = &frac
	}
	if p := coerceFloat("hs_forecast_probability"); p != nil {
		rec.ForecastProbability = p
	}
	if v, ok := present("num_associated_contacts"); ok {
		if n, ok := utils.Int(v); ok {
			rec.NumAssociatedContacts = n
		} else {
			malformed = true
		}
	}

	return rec, malformed
}

// MatchesFilters reports whether a normalized record passes the job's
// dealStages/pipelines allow-lists and the optional creation date range.
// Records filtered out are skipped, not failed.
func MatchesFilters(rec model.DealRecord, filters model.ScanFilters) bool {
	if len(filters.DealStages) > 0 && !containsString(filters.DealStages, rec.DealStage) {
		return false
	}
	if len(filters.Pipelines) > 0 && !containsString(filters.Pipelines, rec.Pipeline) {
		return false
	}
	if dr := filters.DateRange; dr != nil {
		if rec.HubSpotCreatedAt == nil {
			return false
		}
		if !dr.From.IsZero() && rec.HubSpotCreatedAt.Before(dr.From) {
			return false
		}
		if !dr.To.IsZero() && rec.HubSpotCreatedAt.After(dr.To) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
