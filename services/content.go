package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"

	"github.com/google/uuid"
	"listing_poster/models"
	"listing_poster/storage"
)

// BannerContentType is the creative posted for listings whose template is in
// the banner-only overlay (sale agreed or sold).
const BannerContentType = "sale_agreed_banner"

// ContentService selects the content type for a post and assembles the
// rendered payload handed to the publisher. Content-type rotation uses the
// configured frequency weights and never repeats the listing's last type
// twice in a row.
type ContentService struct {
	store    contentStore
	uploader AssetUploader
	rng      *rand.Rand
}

// contentStore is the slice of the store content selection reads from.
type contentStore interface {
	GetActiveContentTypes(ctx context.Context) ([]models.ContentTypeDefinition, error)
	GetPostCounter(ctx context.Context, listingID uuid.UUID) (*models.PostCounter, error)
	GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	GetActiveTemplateForListing(ctx context.Context, listingID uuid.UUID) (*models.ScheduleTemplate, error)
}

// AssetUploader stages rendered media and returns a public URL for it.
// Nil disables staging (captions reference the listing's existing media).
type AssetUploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	PublicURL(key string) string
}

func NewContentService(store *storage.PostgresStore, uploader AssetUploader, rng *rand.Rand) *ContentService {
	return &ContentService{store: store, uploader: uploader, rng: rng}
}

// NextContentType picks the next content type for a listing. Banner-only
// templates always post the banner creative; everything else is a weighted
// random choice over active definitions, excluding the type posted last.
func (s *ContentService) NextContentType(ctx context.Context, listingID uuid.UUID) (string, error) {
	t, err := s.store.GetActiveTemplateForListing(ctx, listingID)
	if err != nil {
		return "", fmt.Errorf("get template: %w", err)
	}
	if t != nil && t.BannerOnly {
		return BannerContentType, nil
	}

	defs, err := s.store.GetActiveContentTypes(ctx)
	if err != nil {
		return "", fmt.Errorf("get content types: %w", err)
	}
	if len(defs) == 0 {
		return "", fmt.Errorf("no active content types configured")
	}

	var last string
	counter, err := s.store.GetPostCounter(ctx, listingID)
	if err != nil {
		return "", fmt.Errorf("get post counter: %w", err)
	}
	if counter != nil {
		last = counter.LastContentType
	}

	return PickContentType(defs, last, s.rng), nil
}

// PickContentType makes the weighted choice. With only one definition the
// last-type exclusion is waived rather than deadlocking rotation.
func PickContentType(defs []models.ContentTypeDefinition, last string, rng *rand.Rand) string {
	candidates := make([]models.ContentTypeDefinition, 0, len(defs))
	total := 0
	for _, d := range defs {
		if d.Name == last && len(defs) > 1 {
			continue
		}
		w := d.FrequencyWeight
		if w <= 0 {
			w = 1
		}
		d.FrequencyWeight = w
		candidates = append(candidates, d)
		total += w
	}
	if len(candidates) == 0 {
		return defs[0].Name
	}
	if rng == nil {
		return candidates[0].Name
	}

	pick := rng.Intn(total)
	for _, d := range candidates {
		pick -= d.FrequencyWeight
		if pick < 0 {
			return d.Name
		}
	}
	return candidates[len(candidates)-1].Name
}

// RenderedPost is the material handed to the publisher for one entry.
type RenderedPost struct {
	Caption   string
	MediaURLs []string
}

// Render assembles the post payload for an entry: caption from the listing's
// details and the content type, media staged through the uploader when one
// is configured.
func (s *ContentService) Render(ctx context.Context, e *models.PostEntry) (*RenderedPost, error) {
	listing, err := s.store.GetListingByID(ctx, e.ListingID)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing == nil {
		return nil, fmt.Errorf("listing %s not found", e.ListingID)
	}

	caption := buildCaption(listing, e.ContentType)
	post := &RenderedPost{Caption: caption}

	if s.uploader != nil {
		url, err := s.stageManifest(ctx, listing, e, caption)
		if err != nil {
			// Staging failure falls back to text-only; the publish itself
			// decides whether that is acceptable for the platform.
			log.Printf("Content: stage asset for %s: %v", e.ListingID, err)
		} else {
			post.MediaURLs = append(post.MediaURLs, url)
		}
	}

	return post, nil
}

func buildCaption(l *models.Listing, contentType string) string {
	switch contentType {
	case "price_highlight":
		return fmt.Sprintf("Now available: %s. Enquire today!", l.Address)
	case BannerContentType:
		return fmt.Sprintf("Sale agreed on %s. Looking to sell? Talk to us.", l.Address)
	default:
		return fmt.Sprintf("Take a look at %s — now on the market.", l.Address)
	}
}

// stageManifest uploads the render manifest for a post under a content-hash
// key, so identical renders dedupe to one object. The upload-post service
// fetches the manifest to compose the final creative.
func (s *ContentService) stageManifest(ctx context.Context, l *models.Listing, e *models.PostEntry, caption string) (string, error) {
	manifest, err := json.Marshal(map[string]string{
		"listing_id":   l.ID.String(),
		"address":      l.Address,
		"content_type": e.ContentType,
		"caption":      caption,
	})
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	sum := sha256.Sum256(manifest)
	hash := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("posts/%s/%s.json", hash[:2], hash)

	if err := s.uploader.Upload(ctx, key, bytes.NewReader(manifest), "application/json"); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return s.uploader.PublicURL(key), nil
}
