package contracts

import "time"

// InteractionEvent is the closed set of raw browser interactions the
// classifier accepts. The marker method seals the union so the classifier
// can switch exhaustively instead of probing optional fields.
type InteractionEvent interface {
	interaction()
	Page() PageContext
}

// PageContext is the declared context of the emitting page. PageType may be
// left empty, in which case it is derived from the path by the fixed prefix
// conventions (/buy-*, *-suppliers, /categories/*, /procurement/*).
type PageContext struct {
	PageType    PageType  `json:"page_type,omitempty"`
	Path        string    `json:"path"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory,omitempty"`
	Product     string    `json:"product,omitempty"`
	SessionID   string    `json:"session_id"`
	OccurredAt  time.Time `json:"occurred_at,omitempty"`
}

// PageViewEvent is a plain landing-page visit. ScrollDepth is nil on the
// initial visit and set on the one dwell-timer re-emit per visit.
type PageViewEvent struct {
	PageContext
	ScrollDepth *int `json:"scroll_depth_percent,omitempty"`
}

// CTAClickEvent is a "get quotes" style interest interaction.
type CTAClickEvent struct {
	PageContext
}

// RFQSubmittedEvent is a successful RFQ form submission.
type RFQSubmittedEvent struct {
	PageContext
	RFQID string `json:"rfq_id,omitempty"`
}

func (PageViewEvent) interaction()     {}
func (CTAClickEvent) interaction()     {}
func (RFQSubmittedEvent) interaction() {}

func (e PageViewEvent) Page() PageContext     { return e.PageContext }
func (e CTAClickEvent) Page() PageContext     { return e.PageContext }
func (e RFQSubmittedEvent) Page() PageContext { return e.PageContext }
