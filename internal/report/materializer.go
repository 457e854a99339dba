package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reportengine/internal/models"
	"github.com/reportengine/internal/period"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrTemplateNotFound aborts a materialization: there is nothing to build from.
var ErrTemplateNotFound = errors.New("template not found")

// Directory is the read-only account, client and user lookup the materializer
// enriches reports with. Every lookup is best-effort.
type Directory interface {
	AccountName(ctx context.Context, userID, accountID string) (string, error)
	CampaignNames(ctx context.Context, userID, accountID string, ids []string) ([]string, error)
	UserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	Client(ctx context.Context, userID, accountID string) (*models.Client, error)
}

// Request identifies what to materialize. A zero Now means time.Now().
type Request struct {
	ScheduleID   string
	UserID       string
	TemplateID   string
	AccountID    string
	ScheduleName string
	Now          time.Time
}

// Materializer turns a Template into a persisted draft Report with its slides.
type Materializer struct {
	db        *gorm.DB
	directory Directory
	composer  *Composer
	log       logrus.FieldLogger
}

func NewMaterializer(db *gorm.DB, directory Directory, composer *Composer, log logrus.FieldLogger) *Materializer {
	return &Materializer{
		db:        db,
		directory: directory,
		composer:  composer,
		log:       log,
	}
}

// Materialize builds a report from req.TemplateID and returns the new report id.
// The report and all of its slides are written in one transaction; on error
// nothing is left behind.
func (m *Materializer) Materialize(ctx context.Context, req Request) (string, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	log := m.log.WithFields(logrus.Fields{
		"schedule_id": req.ScheduleID,
		"template_id": req.TemplateID,
	})

	var tpl models.Template
	if err := m.db.WithContext(ctx).First(&tpl, "id = ?", req.TemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, req.TemplateID)
		}
		return "", fmt.Errorf("failed to fetch template: %w", err)
	}

	accountName := m.accountName(ctx, log, req)
	campaignNames := m.campaignNames(ctx, log, req, tpl.CampaignIDs)
	title := fmt.Sprintf("%s - %s", req.ScheduleName, m.composer.FormatDate(now))

	user, err := m.directory.UserProfile(ctx, req.UserID)
	if err != nil {
		log.WithError(err).Warn("User profile lookup failed, continuing without it")
		user = nil
	}
	client, err := m.directory.Client(ctx, req.UserID, req.AccountID)
	if err != nil {
		log.WithError(err).Warn("Client lookup failed, continuing without it")
		client = nil
	}

	content := m.composer.Compose(title, client, user, now)
	dates := period.Resolve(tpl.Period, now)

	rep := models.Report{
		UserID:        req.UserID,
		ScheduleID:    req.ScheduleID,
		TemplateID:    tpl.ID,
		Title:         title,
		AccountID:     req.AccountID,
		AccountName:   accountName,
		CampaignIDs:   datatypes.JSONSlice[string](append([]string{}, tpl.CampaignIDs...)),
		CampaignNames: datatypes.JSONSlice[string](campaignNames),
		Status:        models.ReportStatusDraft,
		SlideIDs:      datatypes.JSONSlice[string]{},
		Design:        tpl.Design,
		StartDate:     dates.Start,
		EndDate:       dates.End,
		Period:        tpl.Period,
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rep).Error; err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}

		slides := BuildSlides(rep.ID, req.AccountID, &tpl, content, dates)
		if len(slides) == 0 {
			return nil
		}
		if err := tx.Create(&slides).Error; err != nil {
			return fmt.Errorf("failed to create slides: %w", err)
		}

		ids := make(datatypes.JSONSlice[string], len(slides))
		for i, s := range slides {
			ids[i] = s.ID
		}
		if err := tx.Model(&rep).Update("slide_ids", ids).Error; err != nil {
			return fmt.Errorf("failed to stamp slide ids: %w", err)
		}
		rep.SlideIDs = ids
		return nil
	})
	if err != nil {
		return "", err
	}

	// The report is committed at this point; usage stats are bookkeeping only.
	if err := m.db.WithContext(ctx).Model(&models.Template{}).
		Where("id = ?", tpl.ID).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + ?", 1),
			"last_used_at": now,
		}).Error; err != nil {
		log.WithError(err).Warn("Failed to update template usage")
	}

	log.WithFields(logrus.Fields{
		"report_id": rep.ID,
		"slides":    len(rep.SlideIDs),
	}).Info("Report materialized")

	return rep.ID, nil
}

func (m *Materializer) accountName(ctx context.Context, log logrus.FieldLogger, req Request) string {
	name, err := m.directory.AccountName(ctx, req.UserID, req.AccountID)
	if err != nil {
		log.WithError(err).Warn("Account name lookup failed, using account id")
		return req.AccountID
	}
	if name == "" {
		return req.AccountID
	}
	return name
}

func (m *Materializer) campaignNames(ctx context.Context, log logrus.FieldLogger, req Request, ids []string) []string {
	names, err := m.directory.CampaignNames(ctx, req.UserID, req.AccountID, ids)
	if err != nil {
		log.WithError(err).Warn("Campaign name lookup failed")
		return []string{}
	}
	if names == nil {
		return []string{}
	}
	return names
}

// BuildSlides lays out a report's slides in presentation order: the cover,
// one slide per template entry in template order, then the conclusion. Cover
// and conclusion are omitted when their content is empty.
func BuildSlides(reportID, accountID string, tpl *models.Template, content Content, dates period.Range) []models.Slide {
	slides := make([]models.Slide, 0, len(tpl.Slides)+2)

	base := func() models.Slide {
		return models.Slide{
			ReportID:    reportID,
			AccountID:   accountID,
			CampaignIDs: datatypes.JSONSlice[string](append([]string{}, tpl.CampaignIDs...)),
			StartDate:   dates.Start,
			EndDate:     dates.End,
		}
	}

	if strings.TrimSpace(content.Cover) != "" {
		s := base()
		s.Type = models.SlideTypeRichText
		s.Order = models.OrderFirst
		s.Body = content.Cover
		slides = append(slides, s)
	}

	for _, cfg := range tpl.Slides {
		s := base()
		s.Type = cfg.Type
		s.Order = cfg.Order
		s.Settings = datatypes.JSONMap(cfg.Settings)
		s.Title = cfg.Title
		s.Subtitle = cfg.Subtitle
		s.Body = cfg.Body
		slides = append(slides, s)
	}

	if strings.TrimSpace(content.Conclusion) != "" {
		s := base()
		s.Type = models.SlideTypeRichText
		s.Order = models.OrderLast
		s.Body = content.Conclusion
		slides = append(slides, s)
	}

	return slides
}
