package contracts

import "time"

type SourceType string

const (
	SourceSEOVisit     SourceType = "SEO_VISIT"
	SourceRFQInterest  SourceType = "RFQ_INTEREST"
	SourceRFQSubmitted SourceType = "RFQ_SUBMITTED"
)

type PageType string

const (
	PageBuy         PageType = "BUY"
	PageSupplier    PageType = "SUPPLIER"
	PageCategory    PageType = "CATEGORY"
	PageProcurement PageType = "PROCUREMENT"
)

// GlobalCountry is the sentinel country code used when geolocation
// could not place the visitor.
const GlobalCountry = "GLOBAL"

// UncategorizedSlug tags signals whose page carried no usable taxonomy.
const UncategorizedSlug = "uncategorized"

// GeoContext is resolved at most once per browsing session and embedded
// into every signal at capture time.
type GeoContext struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Region      string `json:"region"`
	IsDetected  bool   `json:"is_detected"`
}

// GlobalGeo is the fallback context used when detection fails or times out.
func GlobalGeo() GeoContext {
	return GeoContext{CountryCode: GlobalCountry, CountryName: "Global", Region: "", IsDetected: false}
}

// Signal is one immutable recorded interaction. Corrections are made by
// appending a new signal, never by mutating an existing one.
type Signal struct {
	ID           string     `json:"id"`
	SourceType   SourceType `json:"source_type"`
	PageType     PageType   `json:"page_type"`
	Category     string     `json:"category"`
	Subcategory  string     `json:"subcategory,omitempty"`
	Product      string     `json:"product,omitempty"`
	CountryCode  string     `json:"country_code"`
	CountryName  string     `json:"country_name"`
	Region       string     `json:"region"`
	GeoDetected  bool       `json:"geo_detected"`
	ScrollDepth  *int       `json:"scroll_depth_percent,omitempty"`
	IntentWeight int        `json:"intent_weight"`
	SessionID    string     `json:"session_id"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

func (s Signal) Corridor() CorridorKey {
	return CorridorKey{Category: s.Category, Subcategory: s.Subcategory, CountryCode: s.CountryCode}
}

// CorridorKey identifies the unit of demand aggregation.
type CorridorKey struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	CountryCode string `json:"country_code"`
}

func (k CorridorKey) String() string {
	return k.Category + "|" + k.Subcategory + "|" + k.CountryCode
}

// CorridorAggregate is the mutable rollup for one corridor. It is written
// exclusively through the atomic-delta path in storage; readers derive
// state and trend from it, they never write it back.
type CorridorAggregate struct {
	Category      string     `json:"category"`
	Subcategory   string     `json:"subcategory,omitempty"`
	CountryCode   string     `json:"country_code"`
	SignalCount   int64      `json:"signal_count"`
	IntentScore   int64      `json:"intent_score"`
	PageViews     int64      `json:"page_views"`
	InterestCount int64      `json:"interest_count"`
	RFQCount      int64      `json:"rfq_count"`
	LastSignalAt  *time.Time `json:"last_signal_at,omitempty"`
	LaneActive    bool       `json:"lane_active"`
}

func (a CorridorAggregate) Key() CorridorKey {
	return CorridorKey{Category: a.Category, Subcategory: a.Subcategory, CountryCode: a.CountryCode}
}

// Deltas is one atomic adjustment to a corridor aggregate.
type Deltas struct {
	SignalCount   int64
	IntentScore   int64
	PageViews     int64
	InterestCount int64
	RFQCount      int64
}

type AlertType string

const (
	AlertIntentThreshold   AlertType = "intent_threshold"
	AlertRFQSpike          AlertType = "rfq_spike"
	AlertCrossCountrySpike AlertType = "cross_country_spike"
)

// DemandAlert records a threshold breach for one corridor. At most one
// unexpired alert exists per (type, category, country) key.
type DemandAlert struct {
	ID              string    `json:"id"`
	Type            AlertType `json:"alert_type"`
	Category        string    `json:"category"`
	CountryCode     string    `json:"country_code"`
	IntentScore     int64     `json:"intent_score"`
	RFQCount        int64     `json:"rfq_count"`
	SuggestedAction string    `json:"suggested_action"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsRead          bool      `json:"is_read"`
	IsActioned      bool      `json:"is_actioned"`
	ActionedBy      string    `json:"actioned_by,omitempty"`
}

func (a DemandAlert) DedupKey() string {
	return string(a.Type) + "|" + a.Category + "|" + a.CountryCode
}
