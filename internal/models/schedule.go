package models

import (
	"time"

	"gorm.io/gorm"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

type ScheduleStatus string

const (
	ScheduleStatusActive ScheduleStatus = "active"
	ScheduleStatusError  ScheduleStatus = "error"
)

// Recurrence describes when a schedule repeats. Hour, DayOfWeek and DayOfMonth
// are optional; the calculator applies defaults for missing values.
type Recurrence struct {
	Frequency  Frequency `json:"frequency" gorm:"not null"`
	Hour       *int      `json:"hour,omitempty"`
	DayOfWeek  string    `json:"day_of_week,omitempty"`
	DayOfMonth *int      `json:"day_of_month,omitempty"`
	CronExpr   string    `json:"cron_expr,omitempty"`
}

// Schedule is a recurring materialization job. NextRun, the counters and the
// run status fields are written only by the scheduler.
type Schedule struct {
	Base
	UserID                string         `json:"user_id" gorm:"index;not null"`
	TemplateID            string         `json:"template_id" gorm:"not null"`
	AccountID             string         `json:"account_id"`
	Name                  string         `json:"name" gorm:"not null"`
	IsActive              bool           `json:"is_active" gorm:"index;default:true"`
	Recurrence            Recurrence     `json:"recurrence" gorm:"embedded;embeddedPrefix:recurrence_"`
	NextRun               time.Time      `json:"next_run" gorm:"index;not null"`
	LastRun               *time.Time     `json:"last_run"`
	LastRunStatus         RunStatus      `json:"last_run_status"`
	Status                ScheduleStatus `json:"status" gorm:"default:'active'"`
	TotalRuns             int            `json:"total_runs" gorm:"default:0"`
	SuccessfulRuns        int            `json:"successful_runs" gorm:"default:0"`
	FailedRuns            int            `json:"failed_runs" gorm:"default:0"`
	LastGeneratedReportID string         `json:"last_generated_report_id"`
	LastRunError          string         `json:"last_run_error" gorm:"type:text"`
	Description           string         `json:"description"`
}

// BeforeSave stores run times in UTC. sqlite compares them as text, so mixed
// offsets would break the due query.
func (s *Schedule) BeforeSave(tx *gorm.DB) error {
	s.NextRun = s.NextRun.UTC()
	if s.LastRun != nil {
		last := s.LastRun.UTC()
		s.LastRun = &last
	}
	return nil
}

// ScheduleRun is one attempted execution of a Schedule.
type ScheduleRun struct {
	Base
	ScheduleID string    `json:"schedule_id" gorm:"index;not null"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     RunStatus `json:"status"`
	ReportID   string    `json:"report_id,omitempty"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
}
