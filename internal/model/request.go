package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

var scanIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// DateRange filters deals by their HubSpot creation time. Either bound may
// be zero, meaning unbounded on that side.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// ScanFilters are the recognized extraction filters. Keys the connector does
// not model are captured verbatim in Extra so a newer caller payload survives
// a round trip through the config snapshot.
type ScanFilters struct {
	Archived   bool       `json:"archived,omitempty"`
	DealStages []string   `json:"dealStages,omitempty"`
	Pipelines  []string   `json:"pipelines,omitempty"`
	DateRange  *DateRange `json:"dateRange,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known filter keys and keeps everything else in
// Extra untouched.
func (f *ScanFilters) UnmarshalJSON(data []byte) error {
	type known ScanFilters
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	delete(all, "archived")
	delete(all, "dealStages")
	delete(all, "pipelines")
	delete(all, "dateRange")
	*f = ScanFilters(k)
	if len(all) > 0 {
		f.Extra = all
	}
	return nil
}

// MarshalJSON re-emits known keys plus the retained unknown keys.
func (f ScanFilters) MarshalJSON() ([]byte, error) {
	type known ScanFilters
	raw, err := json.Marshal(known(f))
	if err != nil {
		return nil, err
	}
	if len(f.Extra) == 0 {
		return raw, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range f.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// ScanRequest is the payload that starts an extraction. It is snapshotted
// into the job record at start time, so later mutation by the caller cannot
// affect a running scan.
type ScanRequest struct {
	ScanID      string      `json:"scan_id"`
	AccessToken string      `json:"access_token"`
	TenantID    string      `json:"tenant_id,omitempty"`
	Filters     ScanFilters `json:"filters"`
	Properties  []string    `json:"properties,omitempty"`
}

// Validate checks the request fields that must be rejected synchronously.
func (r *ScanRequest) Validate() error {
	if r.ScanID == "" {
		return fmt.Errorf("%w: scan_id is required", ErrValidation)
	}
	if !scanIDPattern.MatchString(r.ScanID) {
		return fmt.Errorf("%w: scan_id %q is not a valid identifier", ErrValidation, r.ScanID)
	}
	if r.AccessToken == "" {
		return fmt.Errorf("%w: access_token is required", ErrValidation)
	}
	return nil
}
