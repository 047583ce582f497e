// Package cost estimates AWS spend for extraction work.
package cost

import (
	"math"
	"slices"
	"sync"
	"time"
)

const (
	ServiceTextract   = "textract"
	ServiceComprehend = "comprehend"
	ServiceS3         = "s3"

	OpDetectText     = "detect_document_text"
	OpAnalyzeDoc     = "analyze_document"
	OpDetectEntities = "detect_entities"
	OpKeyPhrases     = "detect_key_phrases"
	OpSentiment      = "detect_sentiment"
	OpS3Storage      = "storage"
	OpS3Requests     = "requests"

	maxHistory    = 1000
	recentRecords = 10
)

// Pricing in USD.
var (
	textractPerPage = map[string]float64{
		OpDetectText: 0.0015,
		OpAnalyzeDoc: 0.005,
	}
	comprehendPerUnit = map[string]float64{
		OpDetectEntities: 0.0001,
		OpKeyPhrases:     0.0001,
		OpSentiment:      0.0001,
	}
	s3PerGBMonth = 0.023
	s3Per1000Req = 0.005
)

// Record is one priced call.
type Record struct {
	Service     string    `json:"service"`
	Operation   string    `json:"operation"`
	Units       float64   `json:"units"`
	CostPerUnit float64   `json:"cost_per_unit"`
	TotalCost   float64   `json:"total_cost"`
	Timestamp   time.Time `json:"timestamp"`
}

// Tracker keeps the most recent priced calls for the running process.
type Tracker struct {
	mu      sync.Mutex
	history []Record
	start   time.Time
	now     func() time.Time
}

func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

func NewTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{start: now(), now: now}
}

// Textract prices pages for op; unknown operations cost nothing.
func (t *Tracker) Textract(op string, pages int) float64 {
	per, ok := textractPerPage[op]
	if !ok || pages <= 0 {
		return 0
	}
	total := float64(pages) * per
	t.record(ServiceTextract, op, float64(pages), per, total)
	return total
}

// Comprehend prices each op over textLen characters, billed in 100-char
// units with a minimum of one.
func (t *Tracker) Comprehend(ops []string, textLen int) float64 {
	units := math.Max(1, float64(textLen)/100)
	var total float64
	for _, op := range ops {
		per, ok := comprehendPerUnit[op]
		if !ok {
			continue
		}
		c := units * per
		total += c
		t.record(ServiceComprehend, op, units, per, c)
	}
	return total
}

// S3 prices a day of storage plus request volume.
func (t *Tracker) S3(storageGB float64, requests int) float64 {
	perDay := s3PerGBMonth / 30
	storage := storageGB * perDay
	req := float64(requests) / 1000 * s3Per1000Req
	if storage > 0 {
		t.record(ServiceS3, OpS3Storage, storageGB, perDay, storage)
	}
	if req > 0 {
		t.record(ServiceS3, OpS3Requests, float64(requests)/1000, s3Per1000Req, req)
	}
	return storage + req
}

func (t *Tracker) record(service, op string, units, per, total float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, Record{
		Service:     service,
		Operation:   op,
		Units:       units,
		CostPerUnit: per,
		TotalCost:   total,
		Timestamp:   t.now(),
	})
	if n := len(t.history); n > maxHistory {
		t.history = slices.Clone(t.history[n-maxHistory:])
	}
}

// Session summarizes spend since the tracker was created.
type Session struct {
	TotalCost        float64            `json:"total_cost"`
	ServiceBreakdown map[string]float64 `json:"service_breakdown"`
	UsageCount       int                `json:"usage_count"`
	SessionDuration  float64            `json:"session_duration"`
	Estimates        []Record           `json:"estimates"`
}

func (t *Tracker) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Session{ServiceBreakdown: map[string]float64{}, UsageCount: len(t.history)}
	for _, r := range t.history {
		s.TotalCost += r.TotalCost
		s.ServiceBreakdown[r.Service] += r.TotalCost
	}
	s.TotalCost = round(s.TotalCost, 4)
	for k, v := range s.ServiceBreakdown {
		s.ServiceBreakdown[k] = round(v, 4)
	}
	s.SessionDuration = t.now().Sub(t.start).Seconds()

	recent := t.history[max(0, len(t.history)-recentRecords):]
	s.Estimates = make([]Record, len(recent))
	for i, r := range recent {
		r.TotalCost = round(r.TotalCost, 4)
		s.Estimates[i] = r
	}
	return s
}

// Monthly is an extrapolated monthly spend.
type Monthly struct {
	MonthlyEstimate float64 `json:"monthly_estimate"`
	HourlyRate      float64 `json:"hourly_rate,omitempty"`
	BasedOnHours    float64 `json:"based_on_hours,omitempty"`
	Note            string  `json:"note"`
}

// MonthlyEstimate extrapolates the session's hourly rate over 30 days.
func (t *Tracker) MonthlyEstimate() Monthly {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) == 0 {
		return Monthly{Note: "No usage data available"}
	}
	hours := t.now().Sub(t.start).Hours()
	if hours < 1 {
		return Monthly{Note: "Session too short for estimate"}
	}
	var total float64
	for _, r := range t.history {
		total += r.TotalCost
	}
	hourly := total / hours
	return Monthly{
		MonthlyEstimate: round(hourly*24*30, 2),
		HourlyRate:      round(hourly, 4),
		BasedOnHours:    round(hours, 2),
		Note:            "Estimate based on current session usage patterns",
	}
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
