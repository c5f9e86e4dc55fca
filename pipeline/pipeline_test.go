package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/go-product-finder/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]models.NormalizedProduct
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(products []models.NormalizedProduct) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]models.NormalizedProduct, len(products))
	copy(copyBatch, products)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func listing(i int) models.RawListing {
	return models.RawListing{
		Source: "ebay",
		Title:  "Speaker " + strconv.Itoa(i),
		Price:  "12.00",
		URL:    "https://www.ebay.com/itm/" + strconv.Itoa(i),
	}
}

func TestPipelineDedupesBySourceAndID(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	first := models.RawListing{Source: "amazon", ID: "B0TEST", Title: "JBL Flip 6", Price: "99.95"}
	again := models.RawListing{Source: "amazon", ID: "B0TEST", Title: "JBL Flip 6 (again)", Price: "89.95"}
	other := models.RawListing{Source: "ebay", ID: "B0TEST", Title: "JBL Flip 6", Price: "79.95"}

	if err := p.Process(first, again, other); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 2 {
		t.Fatalf("written products = %d, want 2", got)
	}
	stats := p.Stats()
	if stats.Processed != 2 || stats.Duplicates != 1 {
		t.Fatalf("stats = %+v, want 2 processed and 1 duplicate", stats)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, WithBatchSize(64))
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process(listing(i)); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 || sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsQueue(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)

	var batch []models.RawListing
	for i := 0; i < 100; i++ {
		batch = append(batch, listing(i))
	}
	if err := p.Process(batch...); err != nil {
		t.Fatalf("process: %v", err)
	}

	p.Start(4)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written = %d, want 100", got)
	}
}

func TestPipelineRejectsAfterClose(t *testing.T) {
	p := NewPipeline(&mockWriter{})
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(listing(1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineSurfacesWriteError(t *testing.T) {
	boom := errors.New("disk full")
	p := NewPipeline(&mockWriter{writeErr: boom}, WithBatchSize(1))
	p.Start(1)

	_ = p.Process(listing(1))
	if err := p.Close(); !errors.Is(err, boom) {
		t.Fatalf("close = %v, want %v", err, boom)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	p := Normalize(models.RawListing{Source: " Amazon ", Price: "N/A"})

	if p.Title != "Unknown title" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.URL != "unknown" {
		t.Errorf("URL = %q", p.URL)
	}
	if p.Source != "amazon" {
		t.Errorf("Source = %q", p.Source)
	}
	if p.Price != 0 {
		t.Errorf("Price = %v, want 0", p.Price)
	}
	if p.Currency != models.Currency {
		t.Errorf("Currency = %q", p.Currency)
	}
	if p.Availability != AvailabilityUnknown {
		t.Errorf("Availability = %q", p.Availability)
	}
	if p.ID == "" {
		t.Error("ID should be derived")
	}
	if p.Description != p.Title {
		t.Errorf("Description = %q, want title", p.Description)
	}
}

func TestNormalizeFields(t *testing.T) {
	inStock := true
	rating := 4.5
	raw := models.RawListing{
		Source:    "walmart",
		Title:     "  Soundcore Motion 300 ",
		Price:     "1,079.99",
		Image:     "https://i5.walmartimages.com/a.jpg",
		URL:       "https://www.walmart.com/ip/123",
		Rating:    &rating,
		Available: &inStock,
	}
	p := Normalize(raw)

	if p.Title != "Soundcore Motion 300" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Price != 1079.99 {
		t.Errorf("Price = %v", p.Price)
	}
	if p.ImageURL != raw.Image {
		t.Errorf("ImageURL = %q", p.ImageURL)
	}
	if p.Availability != AvailabilityInStock {
		t.Errorf("Availability = %q", p.Availability)
	}
	if p.Rating == nil || *p.Rating != 4.5 {
		t.Errorf("Rating = %v", p.Rating)
	}

	// the id only depends on the url
	if Normalize(raw).ID != p.ID {
		t.Error("derived id is not stable")
	}
	raw.URL = "https://www.walmart.com/ip/456"
	if Normalize(raw).ID == p.ID {
		t.Error("different urls produced the same id")
	}
}

func TestDemote(t *testing.T) {
	genuine := models.NormalizedProduct{ID: "1", Source: "amazon"}
	fake := models.NormalizedProduct{ID: "2", Source: "ebay", Synthetic: true}

	got, dropped := Demote([]models.NormalizedProduct{fake, genuine, fake})
	if len(got) != 1 || got[0].ID != "1" || dropped != 2 {
		t.Fatalf("Demote mixed = %v, %d", got, dropped)
	}

	got, dropped = Demote([]models.NormalizedProduct{fake, fake})
	if len(got) != 2 || dropped != 0 {
		t.Fatalf("Demote all synthetic = %v, %d", got, dropped)
	}
}

func TestTruncate(t *testing.T) {
	products := make([]models.NormalizedProduct, 5)
	if got := Truncate(products, 3); len(got) != 3 {
		t.Fatalf("Truncate(5, 3) = %d", len(got))
	}
	if got := Truncate(products, 0); len(got) != 5 {
		t.Fatalf("Truncate(5, 0) = %d", len(got))
	}
}
