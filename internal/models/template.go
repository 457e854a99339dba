package models

import (
	"time"

	"gorm.io/datatypes"
)

type PeriodPreset string

const (
	PeriodLast7Days   PeriodPreset = "last_7_days"
	PeriodLast30Days  PeriodPreset = "last_30_days"
	PeriodLast90Days  PeriodPreset = "last_90_days"
	PeriodThisMonth   PeriodPreset = "this_month"
	PeriodLastMonth   PeriodPreset = "last_month"
	PeriodThisQuarter PeriodPreset = "this_quarter"
	PeriodLastQuarter PeriodPreset = "last_quarter"
	PeriodThisYear    PeriodPreset = "this_year"
	PeriodLastYear    PeriodPreset = "last_year"
)

// SlideConfig is one slide blueprint inside a Template. Settings is an opaque
// bag passed through to the rendering layer.
type SlideConfig struct {
	Type     string                 `json:"type"`
	Order    int                    `json:"order"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Subtitle string                 `json:"subtitle,omitempty"`
	Body     string                 `json:"body,omitempty"`
}

type Template struct {
	Base
	UserID      string                           `json:"user_id" gorm:"index"`
	Name        string                           `json:"name"`
	Period      PeriodPreset                     `json:"period"`
	Slides      datatypes.JSONSlice[SlideConfig] `json:"slides"`
	Design      datatypes.JSONMap                `json:"design"`
	CampaignIDs datatypes.JSONSlice[string]      `json:"campaign_ids"`
	UsageCount  int                              `json:"usage_count" gorm:"default:0"`
	LastUsedAt  *time.Time                       `json:"last_used_at"`
}
