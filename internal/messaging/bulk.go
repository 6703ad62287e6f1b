package messaging

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

var (
	// ErrNoRecipients is returned when a CSV has a header but no data rows.
	ErrNoRecipients = errors.New("csv contains no recipient rows")
	// ErrMissingVariable is returned when a template placeholder has no matching column.
	ErrMissingVariable = errors.New("template variable missing")
)

// placeholderRegex matches {{n}} with optional inner spaces.
var placeholderRegex = regexp.MustCompile(`\{\{\s*(\d+)\s*\}\}`)

// Recipient is one data row of a recipients CSV.
type Recipient struct {
	Row   int      // 1-based data row, header excluded
	Phone string   // first column, as written
	Vars  []string // remaining columns, positional template variables
}

// ParseRecipientsCSV reads a header row followed by one recipient per row. The first
// column is the phone number and the remaining columns fill {{1}}, {{2}}, ... in order.
// Rows may have different lengths; fully blank rows are skipped.
func ParseRecipientsCSV(r io.Reader) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, models.ErrEmptyCSV
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var out []Recipient
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", row, err)
		}
		if blank(record) {
			continue
		}
		vars := make([]string, 0, len(record)-1)
		for _, v := range record[1:] {
			vars = append(vars, strings.TrimSpace(v))
		}
		out = append(out, Recipient{Row: row, Phone: strings.TrimSpace(record[0]), Vars: vars})
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// RenderTemplate replaces each {{n}} in body with vars[n-1].
// A placeholder without a matching variable fails with ErrMissingVariable.
func RenderTemplate(body string, vars []string) (string, error) {
	var missing []string
	out := placeholderRegex.ReplaceAllStringFunc(body, func(m string) string {
		n, err := strconv.Atoi(placeholderRegex.FindStringSubmatch(m)[1])
		if err != nil || n < 1 || n > len(vars) {
			missing = append(missing, m)
			return m
		}
		return vars[n-1]
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}
	return out, nil
}

// BulkMetrics counts bulk send outcomes per backend.
type BulkMetrics struct {
	messages *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewBulkMetrics creates the collectors and registers them with reg when reg is not nil.
func NewBulkMetrics(reg prometheus.Registerer) *BulkMetrics {
	m := &BulkMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptpanel",
			Name:      "bulk_messages_total",
			Help:      "Bulk send recipients by backend and result.",
		}, []string{"backend", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptpanel",
			Name:      "bulk_send_duration_seconds",
			Help:      "Wall time of complete bulk sends.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"backend"}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.duration)
	}
	return m
}

// BulkSender sends one template to many recipients over a Service, one at a time.
type BulkSender struct {
	service Service
	delay   time.Duration
	metrics *BulkMetrics
}

// BulkOption configures a BulkSender.
type BulkOption func(*BulkSender)

// WithDelay waits d between consecutive messages.
func WithDelay(d time.Duration) BulkOption {
	return func(b *BulkSender) {
		b.delay = d
	}
}

// WithMetrics records outcomes in m.
func WithMetrics(m *BulkMetrics) BulkOption {
	return func(b *BulkSender) {
		b.metrics = m
	}
}

func NewBulkSender(service Service, opts ...BulkOption) *BulkSender {
	b := &BulkSender{service: service}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send delivers tpl to every recipient and reports the outcome. Invalid phones and
// unrenderable rows count as failed. Once ctx is done the remaining recipients are
// marked failed with the context error. Total always equals Sent + Failed.
func (b *BulkSender) Send(ctx context.Context, tpl models.MessageTemplate, recipients []Recipient) models.BulkSummary {
	start := time.Now()
	summary := models.BulkSummary{Total: len(recipients), Failures: []models.BulkFailure{}}
	backend := b.service.Name()

	fail := func(r Recipient, err error) {
		summary.Failed++
		summary.Failures = append(summary.Failures, models.BulkFailure{Row: r.Row, Phone: r.Phone, Error: err.Error()})
		b.observe(backend, "failed")
	}

	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			for _, rest := range recipients[i:] {
				fail(rest, err)
			}
			break
		}
		if i > 0 && b.delay > 0 && !sleep(ctx, b.delay) {
			for _, rest := range recipients[i:] {
				fail(rest, ctx.Err())
			}
			break
		}

		to, err := b.service.ValidateAndCanonicalizeRecipient(r.Phone)
		if err != nil {
			fail(r, err)
			continue
		}
		body, err := RenderTemplate(tpl.Body, r.Vars)
		if err != nil {
			fail(r, err)
			continue
		}
		if err := b.service.SendMessage(ctx, to, body); err != nil {
			fail(r, err)
			continue
		}
		summary.Sent++
		b.observe(backend, "sent")
	}

	if b.metrics != nil {
		b.metrics.duration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	}
	slog.Info("BulkSender.Send: completed", "backend", backend, "template", tpl.ID,
		"total", summary.Total, "sent", summary.Sent, "failed", summary.Failed)
	return summary
}

func (b *BulkSender) observe(backend, result string) {
	if b.metrics != nil {
		b.metrics.messages.WithLabelValues(backend, result).Inc()
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
