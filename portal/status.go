// Package portal probes agent-portal listing pages for their live status.
// The verification sweep can use it as a second confirmation source on top
// of the stored listing status, catching portals that updated after the
// webhook fired.
package portal

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"listing_poster/models"
)

// Prober fetches a listing's portal page and extracts its current status.
type Prober struct {
	client *http.Client
}

func NewProber(client *http.Client) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{client: client}
}

// ProbeResult is the outcome of one portal probe.
type ProbeResult struct {
	Status     models.ListingStatus
	Found      bool // false when the page carries no recognizable status
	StatusCode int
}

// Probe fetches the portal page and parses the status out of it. A 404/410
// is reported as archived: the portal removed the listing.
func (p *Prober) Probe(ctx context.Context, portalURL string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", portalURL, nil)
	if err != nil {
		return ProbeResult{}, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{}, err
	}
	defer resp.Body.Close()

	result := ProbeResult{StatusCode: resp.StatusCode}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to parse
	case http.StatusNotFound, http.StatusGone:
		result.Status = models.ListingStatusArchived
		result.Found = true
		return result, nil
	default:
		return result, fmt.Errorf("portal probe: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return result, fmt.Errorf("parse portal page: %w", err)
	}

	status, found := ParseStatus(doc)
	result.Status = status
	result.Found = found
	return result, nil
}

// ParseStatus extracts the listing status from a portal page document. It
// checks the structured status badge first, then falls back to banner text.
func ParseStatus(doc *goquery.Document) (models.ListingStatus, bool) {
	// Structured badge: <span class="listing-status" data-status="sale_agreed">
	if v, ok := doc.Find("[data-status]").First().Attr("data-status"); ok {
		if s, known := statusFromToken(v); known {
			return s, true
		}
	}

	// Badge text
	badge := strings.TrimSpace(doc.Find(".listing-status, .status-badge").First().Text())
	if s, known := statusFromToken(badge); known {
		return s, true
	}

	// Banner text fallback, e.g. "SALE AGREED" ribbons on the hero image
	banner := strings.ToLower(doc.Find(".listing-banner, .ribbon").Text())
	switch {
	case strings.Contains(banner, "sale agreed"):
		return models.ListingStatusSaleAgreed, true
	case strings.Contains(banner, "sold"):
		return models.ListingStatusSold, true
	case strings.Contains(banner, "for sale"):
		return models.ListingStatusPublished, true
	}

	return "", false
}

func statusFromToken(token string) (models.ListingStatus, bool) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch models.ListingStatus(normalized) {
	case models.ListingStatusDraft, models.ListingStatusPublished,
		models.ListingStatusSaleAgreed, models.ListingStatusSold,
		models.ListingStatusArchived:
		return models.ListingStatus(normalized), true
	}
	return "", false
}
