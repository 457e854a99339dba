package recurrence

import (
	"testing"
	"time"

	"github.com/reportengine/internal/models"
	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.Recurrence
		now  time.Time
		want time.Time
	}{
		{
			name: "daily sets hour then advances one day",
			cfg:  models.Recurrence{Frequency: models.FrequencyDaily, Hour: intp(9)},
			now:  at(2024, time.March, 13, 15, 42),
			want: at(2024, time.March, 14, 9, 0),
		},
		{
			name: "daily before hour still goes to tomorrow",
			cfg:  models.Recurrence{Frequency: models.FrequencyDaily, Hour: intp(18)},
			now:  at(2024, time.March, 13, 6, 0),
			want: at(2024, time.March, 14, 18, 0),
		},
		{
			name: "daily across month end",
			cfg:  models.Recurrence{Frequency: models.FrequencyDaily, Hour: intp(0)},
			now:  at(2024, time.January, 31, 23, 30),
			want: at(2024, time.February, 1, 0, 0),
		},
		{
			name: "weekly wednesday to upcoming monday",
			cfg:  models.Recurrence{Frequency: models.FrequencyWeekly, DayOfWeek: "monday", Hour: intp(9)},
			now:  at(2024, time.March, 13, 10, 0), // Wednesday
			want: at(2024, time.March, 18, 9, 0),
		},
		{
			name: "weekly same day is a full week out",
			cfg:  models.Recurrence{Frequency: models.FrequencyWeekly, DayOfWeek: "Wednesday", Hour: intp(23)},
			now:  at(2024, time.March, 13, 1, 0),
			want: at(2024, time.March, 20, 23, 0),
		},
		{
			name: "weekly defaults to monday",
			cfg:  models.Recurrence{Frequency: models.FrequencyWeekly, Hour: intp(8)},
			now:  at(2024, time.March, 17, 8, 0), // Sunday
			want: at(2024, time.March, 18, 8, 0),
		},
		{
			name: "monthly day 31 clamps into 30 day month",
			cfg:  models.Recurrence{Frequency: models.FrequencyMonthly, DayOfMonth: intp(31), Hour: intp(7)},
			now:  at(2024, time.March, 31, 12, 0),
			want: at(2024, time.April, 30, 7, 0),
		},
		{
			name: "monthly from january 31 clamps to leap february",
			cfg:  models.Recurrence{Frequency: models.FrequencyMonthly, DayOfMonth: intp(31), Hour: intp(9)},
			now:  at(2024, time.January, 31, 12, 0),
			want: at(2024, time.February, 29, 9, 0),
		},
		{
			name: "monthly caps day above 31",
			cfg:  models.Recurrence{Frequency: models.FrequencyMonthly, DayOfMonth: intp(45), Hour: intp(9)},
			now:  at(2024, time.June, 2, 12, 0),
			want: at(2024, time.July, 31, 9, 0),
		},
		{
			name: "monthly defaults to the first across year end",
			cfg:  models.Recurrence{Frequency: models.FrequencyMonthly, Hour: intp(6)},
			now:  at(2024, time.December, 20, 12, 0),
			want: at(2025, time.January, 1, 6, 0),
		},
		{
			name: "custom is one day later",
			cfg:  models.Recurrence{Frequency: models.FrequencyCustom, CronExpr: "0 9 * * 1-5"},
			now:  at(2024, time.March, 13, 10, 15),
			want: at(2024, time.March, 14, 10, 15),
		},
		{
			name: "unknown frequency is one day later",
			cfg:  models.Recurrence{Frequency: "fortnightly"},
			now:  at(2024, time.March, 13, 10, 15),
			want: at(2024, time.March, 14, 10, 15),
		},
		{
			name: "missing hour uses default",
			cfg:  models.Recurrence{Frequency: models.FrequencyDaily},
			now:  at(2024, time.March, 13, 10, 15),
			want: at(2024, time.March, 14, DefaultHour, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.cfg, tt.now)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestNextRunAlwaysInFuture(t *testing.T) {
	configs := []models.Recurrence{
		{Frequency: models.FrequencyDaily, Hour: intp(0)},
		{Frequency: models.FrequencyDaily, Hour: intp(23)},
		{Frequency: models.FrequencyCustom},
		{Frequency: models.FrequencyMonthly, DayOfMonth: intp(1), Hour: intp(0)},
		{Frequency: models.FrequencyMonthly, DayOfMonth: intp(31), Hour: intp(23)},
	}
	for _, name := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		configs = append(configs,
			models.Recurrence{Frequency: models.FrequencyWeekly, DayOfWeek: name, Hour: intp(0)},
			models.Recurrence{Frequency: models.FrequencyWeekly, DayOfWeek: name, Hour: intp(23)},
		)
	}

	start := at(2023, time.December, 25, 0, 0)
	for i := 0; i < 24*60; i += 7 {
		now := start.Add(time.Duration(i) * time.Hour)
		for _, cfg := range configs {
			next := NextRun(cfg, now)
			assert.True(t, next.After(now), "%+v at %s gave %s", cfg, now, next)
		}
	}
}

func TestNextRunKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	now := time.Date(2024, time.March, 13, 10, 0, 0, 0, loc)
	next := NextRun(models.Recurrence{Frequency: models.FrequencyWeekly, DayOfWeek: "monday", Hour: intp(9)}, now)
	assert.Equal(t, loc, next.Location())
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestParseWeekday(t *testing.T) {
	d, ok := ParseWeekday(" Friday ")
	assert.True(t, ok)
	assert.Equal(t, time.Friday, d)

	_, ok = ParseWeekday("funday")
	assert.False(t, ok)
}
