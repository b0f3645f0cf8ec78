package services

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"listing_poster/models"
)

func contentDefs() []models.ContentTypeDefinition {
	return []models.ContentTypeDefinition{
		{Name: "photo_feature", FrequencyWeight: 3, IsActive: true},
		{Name: "price_highlight", FrequencyWeight: 2, IsActive: true},
		{Name: "area_spotlight", FrequencyWeight: 1, IsActive: true},
	}
}

type fakeContentStore struct {
	defs     []models.ContentTypeDefinition
	counter  *models.PostCounter
	listing  *models.Listing
	template *models.ScheduleTemplate
}

func (f *fakeContentStore) GetActiveContentTypes(ctx context.Context) ([]models.ContentTypeDefinition, error) {
	return f.defs, nil
}

func (f *fakeContentStore) GetPostCounter(ctx context.Context, listingID uuid.UUID) (*models.PostCounter, error) {
	return f.counter, nil
}

func (f *fakeContentStore) GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return f.listing, nil
}

func (f *fakeContentStore) GetActiveTemplateForListing(ctx context.Context, listingID uuid.UUID) (*models.ScheduleTemplate, error) {
	return f.template, nil
}

func TestNextContentType_BannerOnlyPinsBannerCreative(t *testing.T) {
	svc := &ContentService{
		store: &fakeContentStore{
			defs:     contentDefs(),
			counter:  &models.PostCounter{LastContentType: "photo_feature"},
			template: &models.ScheduleTemplate{BannerOnly: true, BannerWeeks: 2},
		},
		rng: rand.New(rand.NewSource(5)),
	}

	for i := 0; i < 20; i++ {
		got, err := svc.NextContentType(context.Background(), uuid.New())
		if err != nil {
			t.Fatalf("next content type: %v", err)
		}
		if got != BannerContentType {
			t.Fatalf("banner-only listing should post %s, got %s", BannerContentType, got)
		}
	}
}

func TestNextContentType_NormalTemplateRotates(t *testing.T) {
	svc := &ContentService{
		store: &fakeContentStore{
			defs:     contentDefs(),
			counter:  &models.PostCounter{LastContentType: "photo_feature"},
			template: &models.ScheduleTemplate{BannerWeeks: 2},
		},
		rng: rand.New(rand.NewSource(5)),
	}

	got, err := svc.NextContentType(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("next content type: %v", err)
	}
	if got == "photo_feature" {
		t.Fatalf("rotation should exclude the last type")
	}
	if got == BannerContentType {
		t.Fatalf("active listing should not get the banner creative")
	}
}

func TestPickContentType_NeverRepeatsLast(t *testing.T) {
	defs := contentDefs()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		if got := PickContentType(defs, "photo_feature", rng); got == "photo_feature" {
			t.Fatalf("picked the last content type on draw %d", i)
		}
	}
}

func TestPickContentType_SingleDefinitionWaivesExclusion(t *testing.T) {
	defs := []models.ContentTypeDefinition{{Name: "photo_feature", FrequencyWeight: 1}}
	got := PickContentType(defs, "photo_feature", rand.New(rand.NewSource(1)))
	if got != "photo_feature" {
		t.Fatalf("single definition should be picked even when it was last, got %s", got)
	}
}

func TestPickContentType_WeightsRespected(t *testing.T) {
	defs := contentDefs()
	rng := rand.New(rand.NewSource(7))
	seen := make(map[string]int)
	for i := 0; i < 3000; i++ {
		seen[PickContentType(defs, "", rng)]++
	}
	if seen["photo_feature"] <= seen["area_spotlight"] {
		t.Fatalf("weight 3 type picked %d times, weight 1 type %d",
			seen["photo_feature"], seen["area_spotlight"])
	}
	for _, d := range defs {
		if seen[d.Name] == 0 {
			t.Fatalf("type %s never picked", d.Name)
		}
	}
}

func TestPickContentType_ZeroWeightDefaultsToOne(t *testing.T) {
	defs := []models.ContentTypeDefinition{
		{Name: "a", FrequencyWeight: 0},
		{Name: "b", FrequencyWeight: 0},
	}
	rng := rand.New(rand.NewSource(3))
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[PickContentType(defs, "", rng)] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both zero-weight types to be reachable, got %v", seen)
	}
}

func TestPickContentType_NilRNGIsDeterministic(t *testing.T) {
	got := PickContentType(contentDefs(), "photo_feature", nil)
	if got != "price_highlight" {
		t.Fatalf("nil rng should pick first candidate, got %s", got)
	}
}

func TestBuildCaption(t *testing.T) {
	l := &models.Listing{Address: "12 Harbour View, Galway"}
	if got := buildCaption(l, "price_highlight"); got == "" || got == buildCaption(l, "sale_agreed_banner") {
		t.Fatalf("captions should differ per content type")
	}
	def := buildCaption(l, "photo_feature")
	if def == "" {
		t.Fatalf("default caption should not be empty")
	}
}
