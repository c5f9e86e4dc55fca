package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-product-finder/models"
)

var csvHeader = []string{
	"id", "title", "price", "currency", "image_url", "description",
	"category", "brand", "rating", "availability", "url", "source", "synthetic",
}

// CSVWriter writes products to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{file: f, writer: writer}, nil
}

// Write appends products to the CSV output.
func (cw *CSVWriter) Write(products []models.NormalizedProduct) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, p := range products {
		if err := cw.writer.Write(csvRecord(p)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func csvRecord(p models.NormalizedProduct) []string {
	rating := ""
	if p.Rating != nil {
		rating = strconv.FormatFloat(*p.Rating, 'f', -1, 64)
	}
	return []string{
		p.ID,
		p.Title,
		strconv.FormatFloat(p.Price, 'f', 2, 64),
		p.Currency,
		p.ImageURL,
		p.Description,
		p.Category,
		p.Brand,
		rating,
		p.Availability,
		p.URL,
		p.Source,
		strconv.FormatBool(p.Synthetic),
	}
}

// JSONWriter writes newline-delimited JSON records to a file.
type JSONWriter struct {
	file *os.File
	*StreamWriter
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}
	return &JSONWriter{file: f, StreamWriter: NewStreamWriter(f)}, nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	if err := jw.StreamWriter.Close(); err != nil {
		jw.file.Close()
		return err
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// StreamWriter encodes products as JSON lines onto any io.Writer, such as
// stdout. Close flushes but does not close the destination.
type StreamWriter struct {
	writer  *bufio.Writer
	encoder *json.Encoder
	count   int
	mu      sync.Mutex
}

// NewStreamWriter wraps w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	buffer := bufio.NewWriter(w)
	return &StreamWriter{writer: buffer, encoder: json.NewEncoder(buffer)}
}

// Write appends products in JSONL format.
func (sw *StreamWriter) Write(products []models.NormalizedProduct) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for _, p := range products {
		if err := sw.encoder.Encode(p); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		sw.count++
	}
	if err := sw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffered output.
func (sw *StreamWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Validate reports an error when nothing was written.
func (sw *StreamWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.count == 0 {
		return errors.New("no records written")
	}
	return nil
}

// MemoryWriter collects products in memory, in write order.
type MemoryWriter struct {
	mu       sync.Mutex
	products []models.NormalizedProduct
}

// Write appends a copy of products.
func (mw *MemoryWriter) Write(products []models.NormalizedProduct) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.products = append(mw.products, products...)
	return nil
}

// Close is a no-op.
func (mw *MemoryWriter) Close() error { return nil }

// Validate never fails; an empty result is a valid outcome.
func (mw *MemoryWriter) Validate() error { return nil }

// Products returns everything written so far.
func (mw *MemoryWriter) Products() []models.NormalizedProduct {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	out := make([]models.NormalizedProduct, len(mw.products))
	copy(out, mw.products)
	return out
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
