// Package classify turns raw page interactions into typed demand signals.
// Classification is pure: same event and geo context always produce the
// same signal, with OccurredAt taken from the event or the supplied clock.
package classify

import (
	"strings"
	"time"

	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
)

// Intent weights per interaction kind.
const (
	WeightSEOVisit     = 1
	WeightRFQInterest  = 2
	WeightRFQSubmitted = 5
)

// EngagedScrollDepth is the depth above which a dwell re-emit counts as an
// engagement signal rather than noise.
const EngagedScrollDepth = 50

// Classify maps an interaction event onto a Signal. It never rejects an
// event: missing taxonomy degrades to the uncategorized slug so intent is
// not silently lost.
func Classify(event contracts.InteractionEvent, geo contracts.GeoContext, now time.Time) contracts.Signal {
	page := event.Page()

	occurredAt := page.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	signal := contracts.Signal{
		PageType:    pageType(page),
		Category:    slug(page.Category),
		Subcategory: slug(page.Subcategory),
		Product:     slug(page.Product),
		CountryCode: geo.CountryCode,
		CountryName: geo.CountryName,
		Region:      geo.Region,
		GeoDetected: geo.IsDetected,
		SessionID:   page.SessionID,
		OccurredAt:  occurredAt.UTC(),
	}
	if signal.Category == "" {
		signal.Category = contracts.UncategorizedSlug
	}
	if signal.CountryCode == "" {
		signal.CountryCode = contracts.GlobalCountry
	}

	switch e := event.(type) {
	case contracts.PageViewEvent:
		signal.SourceType = contracts.SourceSEOVisit
		signal.IntentWeight = WeightSEOVisit
		if e.ScrollDepth != nil && *e.ScrollDepth > EngagedScrollDepth {
			depth := clampDepth(*e.ScrollDepth)
			signal.ScrollDepth = &depth
		}
	case contracts.CTAClickEvent:
		signal.SourceType = contracts.SourceRFQInterest
		signal.IntentWeight = WeightRFQInterest
	case contracts.RFQSubmittedEvent:
		signal.SourceType = contracts.SourceRFQSubmitted
		signal.IntentWeight = WeightRFQSubmitted
	}

	return signal
}

// IsEngagedScroll reports whether a dwell re-emit should be classified at
// all. Depths at or below the engagement cutoff are discarded upstream.
func IsEngagedScroll(depth *int) bool {
	return depth != nil && *depth > EngagedScrollDepth
}

// pageType honors the page's declared context and otherwise falls back to
// the fixed path prefix conventions. No free-text URL parsing beyond these.
func pageType(page contracts.PageContext) contracts.PageType {
	switch page.PageType {
	case contracts.PageBuy, contracts.PageSupplier, contracts.PageCategory, contracts.PageProcurement:
		return page.PageType
	}

	path := strings.ToLower(strings.TrimSpace(page.Path))
	switch {
	case strings.HasPrefix(path, "/buy-"):
		return contracts.PageBuy
	case strings.HasSuffix(strings.TrimSuffix(path, "/"), "-suppliers"):
		return contracts.PageSupplier
	case strings.HasPrefix(path, "/procurement/"):
		return contracts.PageProcurement
	default:
		return contracts.PageCategory
	}
}

func slug(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func clampDepth(depth int) int {
	if depth < 0 {
		return 0
	}
	if depth > 100 {
		return 100
	}
	return depth
}
