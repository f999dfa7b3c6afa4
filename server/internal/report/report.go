// Package report builds health summaries over stored samples and mails the
// monthly report.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/notify"
	"github.com/pulsewatch/pulsewatch/server/internal/store"
)

// DefaultDays is the look-back window of Stats when none is given.
const DefaultDays = 30

// Stats is the rounded summary shown in reports. Average pulse and total
// calories are whole numbers; average SpO2 keeps two decimals.
type Stats struct {
	AveragePulse   float64 `json:"averagePulse"`
	MinPulse       float64 `json:"minPulse"`
	MaxPulse       float64 `json:"maxPulse"`
	AverageSpO2    float64 `json:"averageSpo2"`
	MinSpO2        float64 `json:"minSpo2"`
	MaxSpO2        float64 `json:"maxSpo2"`
	TotalSteps     int64   `json:"totalSteps"`
	TotalCalories  float64 `json:"totalCalories"`
	DataPoints     int     `json:"dataPoints"`
	EmergencyCount int     `json:"emergencyCount"`
}

func summarize(st types.Stats) Stats {
	return Stats{
		AveragePulse:   math.Round(st.AveragePulse),
		MinPulse:       st.MinPulse,
		MaxPulse:       st.MaxPulse,
		AverageSpO2:    math.Round(st.AverageSpO2*100) / 100,
		MinSpO2:        st.MinSpO2,
		MaxSpO2:        st.MaxSpO2,
		TotalSteps:     st.TotalSteps,
		TotalCalories:  math.Round(st.TotalCalories),
		DataPoints:     st.Count,
		EmergencyCount: st.EmergencyCount,
	}
}

// Period is the result of Stats: nil Stats means no data in the window.
type Period struct {
	Days  int    `json:"-"`
	Label string `json:"period,omitempty"`
	Stats *Stats `json:"stats"`
}

// Monthly is the result of Monthly.
type Monthly struct {
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Period  string `json:"period"`
	Stats   Stats  `json:"stats"`
	Emailed string `json:"emailedTo,omitempty"`
}

// Mailer sends a report summary. *notify.Email satisfies it.
type Mailer interface {
	SendReport(ctx context.Context, to string, r notify.Report) error
}

// Service answers report queries.
type Service struct {
	samples store.SampleStore
	mailer  Mailer
	log     *zap.Logger
	now     func() time.Time
	loc     *time.Location
}

// New returns a report Service. mailer may be nil, in which case a monthly
// report with an email address fails with types.ErrNotification.
func New(samples store.SampleStore, mailer Mailer, log *zap.Logger) *Service {
	return &Service{
		samples: samples,
		mailer:  mailer,
		log:     logging.OrNop(log),
		now:     time.Now,
		loc:     time.UTC,
	}
}

const day = 24 * time.Hour

// maxDays is the widest window a time.Duration can express.
const maxDays = math.MaxInt64 / int64(day)

// Stats summarises the last days days. days <= 0 means DefaultDays.
func (s *Service) Stats(ctx context.Context, days int) (Period, error) {
	if days <= 0 {
		days = DefaultDays
	}
	// Windows too wide for a time.Duration cover everything.
	var since time.Time
	if int64(days) <= maxDays {
		since = s.now().Add(-time.Duration(days) * day)
	}
	st, err := s.samples.Aggregate(ctx, since)
	if err != nil {
		return Period{}, fmt.Errorf("report: stats: %w", err)
	}
	p := Period{Days: days}
	if st.Count == 0 {
		return p, nil
	}
	sum := summarize(st)
	p.Label = fmt.Sprintf("%d days", days)
	p.Stats = &sum
	return p, nil
}

// Monthly summarises one calendar month. A zero year or month means the
// current one. It returns types.ErrNotFound when the month has no samples.
// When email is set the summary is mailed there.
func (s *Service) Monthly(ctx context.Context, year, month int, email string) (Monthly, error) {
	now := s.now().In(s.loc)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return Monthly{}, &types.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	if year < 1970 || year > 9999 {
		return Monthly{}, &types.ValidationError{Field: "year", Reason: "is out of range"}
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	st, err := s.samples.AggregateWindow(ctx, from, to)
	if err != nil {
		return Monthly{}, fmt.Errorf("report: monthly: %w", err)
	}
	if st.Count == 0 {
		return Monthly{}, fmt.Errorf("report: %04d-%02d: no health data: %w", year, month, types.ErrNotFound)
	}

	out := Monthly{
		Year:   year,
		Month:  month,
		Period: from.Format("January 2006"),
		Stats:  summarize(st),
	}
	if email == "" {
		return out, nil
	}

	if err := s.send(ctx, email, out); err != nil {
		s.log.Error("report: monthly email failed",
			zap.String("period", out.Period),
			zap.String("to", email),
			zap.Error(err),
		)
		return Monthly{}, fmt.Errorf("report: email %s: %w", out.Period, err)
	}
	s.log.Info("report: monthly email sent", zap.String("period", out.Period), zap.String("to", email))
	out.Emailed = email
	return out, nil
}

func (s *Service) send(ctx context.Context, to string, m Monthly) error {
	if s.mailer == nil {
		return fmt.Errorf("%w: email is not configured", types.ErrNotification)
	}
	err := s.mailer.SendReport(ctx, to, notify.Report{
		Period:        m.Period,
		AveragePulse:  m.Stats.AveragePulse,
		AverageSpO2:   m.Stats.AverageSpO2,
		TotalSteps:    m.Stats.TotalSteps,
		TotalCalories: m.Stats.TotalCalories,
		DataPoints:    m.Stats.DataPoints,
		Emergencies:   m.Stats.EmergencyCount,
		GeneratedAt:   s.now(),
	})
	if err != nil && !errors.Is(err, types.ErrNotification) {
		err = fmt.Errorf("%w: %w", types.ErrNotification, err)
	}
	return err
}
