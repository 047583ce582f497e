package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTextract(t *testing.T) {
	tr := NewTracker()
	assert.InDelta(t, 0.0045, tr.Textract(OpDetectText, 3), 1e-12)
	assert.InDelta(t, 0.01, tr.Textract(OpAnalyzeDoc, 2), 1e-12)
	assert.Zero(t, tr.Textract("unknown", 5))
	assert.Equal(t, 2, tr.Session().UsageCount)
}

func TestComprehend_MinimumUnit(t *testing.T) {
	tr := NewTracker()
	assert.InDelta(t, 0.0003, tr.Comprehend([]string{OpDetectEntities, OpKeyPhrases, OpSentiment}, 10), 1e-12)
	assert.InDelta(t, 0.00025, tr.Comprehend([]string{OpSentiment}, 250), 1e-12)
}

func TestS3(t *testing.T) {
	tr := NewTracker()
	got := tr.S3(30, 2000)
	assert.InDelta(t, 0.023+0.01, got, 1e-12)
	assert.Equal(t, 2, tr.Session().UsageCount)
}

func TestSession_BreakdownAndRecent(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 15; i++ {
		tr.Textract(OpDetectText, 1)
	}
	tr.Comprehend([]string{OpSentiment}, 100)

	s := tr.Session()
	assert.Equal(t, 16, s.UsageCount)
	assert.InDelta(t, 0.0226, s.TotalCost, 1e-9)
	assert.InDelta(t, 0.0225, s.ServiceBreakdown[ServiceTextract], 1e-9)
	assert.InDelta(t, 0.0001, s.ServiceBreakdown[ServiceComprehend], 1e-9)
	require.Len(t, s.Estimates, 10)
	assert.Equal(t, ServiceComprehend, s.Estimates[9].Service)
}

func TestHistoryCapped(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < maxHistory+50; i++ {
		tr.Textract(OpDetectText, 1)
	}
	assert.Equal(t, maxHistory, tr.Session().UsageCount)
}

func TestMonthlyEstimate(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTrackerWithClock(clk.now)

	assert.Equal(t, "No usage data available", tr.MonthlyEstimate().Note)

	tr.Textract(OpAnalyzeDoc, 2)
	clk.t = clk.t.Add(30 * time.Minute)
	m := tr.MonthlyEstimate()
	assert.Zero(t, m.MonthlyEstimate)
	assert.Equal(t, "Session too short for estimate", m.Note)

	clk.t = clk.t.Add(90 * time.Minute)
	m = tr.MonthlyEstimate()
	assert.InDelta(t, 0.005, m.HourlyRate, 1e-9)
	assert.InDelta(t, 3.6, m.MonthlyEstimate, 1e-9)
	assert.InDelta(t, 2.0, m.BasedOnHours, 1e-9)
}
