package models

import (
	"time"

	"gorm.io/datatypes"
)

type ReportStatus string

const (
	ReportStatusDraft ReportStatus = "draft"
)

// SlideTypeRichText is the generic type used for the synthetic cover and conclusion slides.
const SlideTypeRichText = "rich_text"

const (
	OrderFirst = -1
	OrderLast  = 9999
)

// Report is a materialized, editable document. SlideIDs is the authoritative
// presentation order; Slide.Order is only a hint.
type Report struct {
	Base
	UserID        string                      `json:"user_id" gorm:"index;not null"`
	ScheduleID    string                      `json:"schedule_id" gorm:"index"`
	TemplateID    string                      `json:"template_id" gorm:"index"`
	Title         string                      `json:"title" gorm:"not null"`
	AccountID     string                      `json:"account_id"`
	AccountName   string                      `json:"account_name"`
	CampaignIDs   datatypes.JSONSlice[string] `json:"campaign_ids"`
	CampaignNames datatypes.JSONSlice[string] `json:"campaign_names"`
	Status        ReportStatus                `json:"status" gorm:"not null;default:'draft'"`
	SlideIDs      datatypes.JSONSlice[string] `json:"slide_ids"`
	Design        datatypes.JSONMap           `json:"design"`
	StartDate     time.Time                   `json:"start_date"`
	EndDate       time.Time                   `json:"end_date"`
	Period        PeriodPreset                `json:"period"`
}

// Slide belongs to exactly one Report and is never modified after creation.
type Slide struct {
	Base
	ReportID    string                      `json:"report_id" gorm:"index;not null"`
	Type        string                      `json:"type" gorm:"not null"`
	Order       int                         `json:"order"`
	Settings    datatypes.JSONMap           `json:"settings"`
	Title       string                      `json:"title,omitempty"`
	Subtitle    string                      `json:"subtitle,omitempty"`
	Body        string                      `json:"body,omitempty" gorm:"type:text"`
	AccountID   string                      `json:"account_id"`
	CampaignIDs datatypes.JSONSlice[string] `json:"campaign_ids"`
	StartDate   time.Time                   `json:"start_date"`
	EndDate     time.Time                   `json:"end_date"`
}
