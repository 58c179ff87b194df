package model

import "time"

// DealRecord is one normalized HubSpot deal. Typed fields cover the common
// deal properties; the complete source property bag is kept verbatim in
// RawProperties so nothing is lost for fields the normalizer does not model.
// Rows are immutable after creation and removed only by cascade when the
// owning scan job is deleted.
type DealRecord struct {
	ID     string `json:"id"`      // internal row id
	JobID  string `json:"job_id"`  // owning ScanJob.ID
	DealID string `json:"deal_id"` // HubSpot deal id

	DealName             string     `json:"deal_name,omitempty"`
	Amount               *float64   `json:"amount,omitempty"`
	DealStage            string     `json:"deal_stage,omitempty"`
	CloseDate            *time.Time `json:"close_date,omitempty"`
	Pipeline             string     `json:"pipeline,omitempty"`
	DealType             string     `json:"deal_type,omitempty"`
	HubSpotOwnerID       string     `json:"hubspot_owner_id,omitempty"`
	DealStageProbability *float64   `json:"deal_stage_probability,omitempty"`
	Description          string     `json:"description,omitempty"`
	AnalyticsSource      string     `json:"analytics_source,omitempty"`
	NumAssociatedContacts int64     `json:"num_associated_contacts"`
	Priority             string     `json:"priority,omitempty"`
	NextStep             string     `json:"next_step,omitempty"`
	ForecastAmount       *float64   `json:"forecast_amount,omitempty"`
	ForecastProbability  *float64   `json:"forecast_probability,omitempty"`
	HubSpotCreatedAt     *time.Time `json:"hubspot_created_at,omitempty"`
	HubSpotUpdatedAt     *time.Time `json:"hubspot_updated_at,omitempty"`
	Archived             bool       `json:"archived"`

	RawProperties map[string]any `json:"raw_properties"`

	ExtractedAt time.Time `json:"extracted_at"`
	ScanID      string    `json:"scan_id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	PageNumber  int64     `json:"page_number"`
}
