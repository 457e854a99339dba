// Package api exposes schedules, templates and materialized reports over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reportengine/internal/auth"
	"github.com/reportengine/internal/models"
	"github.com/reportengine/internal/period"
	"github.com/reportengine/internal/recurrence"
	"github.com/reportengine/internal/scheduler"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Runner is the part of the scheduler the API drives.
type Runner interface {
	Tick(ctx context.Context) (scheduler.TickResult, error)
	RunSchedule(ctx context.Context, id string) (string, error)
	Metrics() map[string]interface{}
}

type Server struct {
	db     *gorm.DB
	runner Runner
	auth   *auth.Authenticator
	log    logrus.FieldLogger
	loc    *time.Location
	now    func() time.Time
	router *gin.Engine
	http   *http.Server
}

func NewServer(db *gorm.DB, runner Runner, authenticator *auth.Authenticator, loc *time.Location, log logrus.FieldLogger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		db:     db,
		runner: runner,
		auth:   authenticator,
		log:    log,
		loc:    loc,
		now:    time.Now,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthz)

	api := s.router.Group("/api/v1")
	api.Use(s.auth.Middleware())

	schedules := api.Group("/schedules")
	{
		schedules.GET("", s.listSchedules)
		schedules.GET("/:id", s.getSchedule)
		schedules.GET("/:id/runs", s.listRuns)
		schedules.POST("", auth.RequireRole(auth.RoleAdmin), s.createSchedule)
		schedules.PUT("/:id/enable", auth.RequireRole(auth.RoleAdmin), s.enableSchedule)
		schedules.PUT("/:id/disable", auth.RequireRole(auth.RoleAdmin), s.disableSchedule)
		schedules.POST("/:id/run", auth.RequireRole(auth.RoleAdmin), s.runSchedule)
	}

	api.GET("/templates", s.listTemplates)
	api.GET("/templates/:id", s.getTemplate)

	api.GET("/reports", s.listReports)
	api.GET("/reports/:id", s.getReport)

	api.POST("/scheduler/tick", auth.RequireRole(auth.RoleAdmin), s.tick)
	api.GET("/scheduler/metrics", s.metrics)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(port int) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("port", port).Info("API server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

func (s *Server) healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// scoped restricts a query to the caller's own records.
func (s *Server) scoped(c *gin.Context) *gorm.DB {
	return s.db.WithContext(c.Request.Context()).Where("user_id = ?", c.GetString("user_id"))
}

func limitFrom(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func respondError(c *gin.Context, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) listSchedules(c *gin.Context) {
	query := s.scoped(c)
	if active := c.Query("active"); active != "" {
		query = query.Where("is_active = ?", active == "true")
	}

	var schedules []models.Schedule
	if err := query.Order("next_run asc").Limit(limitFrom(c)).Find(&schedules).Error; err != nil {
		respondError(c, err, "schedule")
		return
	}
	c.JSON(http.StatusOK, schedules)
}

func (s *Server) findSchedule(c *gin.Context) (*models.Schedule, bool) {
	var schedule models.Schedule
	if err := s.scoped(c).First(&schedule, "id = ?", c.Param("id")).Error; err != nil {
		respondError(c, err, "schedule")
		return nil, false
	}
	return &schedule, true
}

func (s *Server) getSchedule(c *gin.Context) {
	schedule, ok := s.findSchedule(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, schedule)
}

type createScheduleRequest struct {
	Name        string            `json:"name" binding:"required"`
	TemplateID  string            `json:"template_id" binding:"required"`
	AccountID   string            `json:"account_id"`
	Description string            `json:"description"`
	Recurrence  models.Recurrence `json:"recurrence"`
	IsActive    *bool             `json:"is_active"`
	NextRun     *time.Time        `json:"next_run"`
}

func (s *Server) createSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateScheduleFields(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var count int64
	if err := s.scoped(c).Model(&models.Template{}).Where("id = ?", req.TemplateID).Count(&count).Error; err != nil {
		respondError(c, err, "template")
		return
	}
	if count == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "template not found"})
		return
	}

	nextRun := recurrence.NextRun(req.Recurrence, s.now().In(s.loc))
	if req.NextRun != nil {
		nextRun = *req.NextRun
	}
	active := req.IsActive == nil || *req.IsActive

	schedule := models.Schedule{
		UserID:      c.GetString("user_id"),
		TemplateID:  req.TemplateID,
		AccountID:   req.AccountID,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    active,
		Recurrence:  req.Recurrence,
		NextRun:     nextRun.UTC(),
		Status:      models.ScheduleStatusActive,
	}

	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&schedule).Error; err != nil {
			return err
		}
		// is_active has a database default, so false must be written explicitly.
		if !active {
			return tx.Model(&schedule).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		respondError(c, err, "schedule")
		return
	}
	schedule.IsActive = active

	c.JSON(http.StatusCreated, schedule)
}

func validateScheduleFields(req *createScheduleRequest) error {
	rec := req.Recurrence
	switch rec.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly, models.FrequencyCustom:
	default:
		return fmt.Errorf("invalid frequency: %q", rec.Frequency)
	}

	if rec.Hour != nil && (*rec.Hour < 0 || *rec.Hour > 23) {
		return fmt.Errorf("hour must be between 0 and 23")
	}
	if rec.DayOfWeek != "" {
		if _, ok := recurrence.ParseWeekday(rec.DayOfWeek); !ok {
			return fmt.Errorf("invalid day of week: %q", rec.DayOfWeek)
		}
	}
	if rec.DayOfMonth != nil && (*rec.DayOfMonth < 1 || *rec.DayOfMonth > 31) {
		return fmt.Errorf("day of month must be between 1 and 31")
	}
	return nil
}

func (s *Server) setActive(c *gin.Context, active bool) {
	schedule, ok := s.findSchedule(c)
	if !ok {
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Model(schedule).Update("is_active", active).Error; err != nil {
		respondError(c, err, "schedule")
		return
	}
	schedule.IsActive = active
	c.JSON(http.StatusOK, schedule)
}

func (s *Server) enableSchedule(c *gin.Context) {
	s.setActive(c, true)
}

func (s *Server) disableSchedule(c *gin.Context) {
	s.setActive(c, false)
}

func (s *Server) runSchedule(c *gin.Context) {
	schedule, ok := s.findSchedule(c)
	if !ok {
		return
	}

	reportID, err := s.runner.RunSchedule(c.Request.Context(), schedule.ID)
	switch {
	case errors.Is(err, scheduler.ErrNotDue), errors.Is(err, scheduler.ErrClaimLost):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "schedule_id": schedule.ID})
	default:
		c.JSON(http.StatusOK, gin.H{"schedule_id": schedule.ID, "report_id": reportID})
	}
}

func (s *Server) listRuns(c *gin.Context) {
	schedule, ok := s.findSchedule(c)
	if !ok {
		return
	}

	var runs []models.ScheduleRun
	if err := s.db.WithContext(c.Request.Context()).
		Where("schedule_id = ?", schedule.ID).
		Order("started_at desc").
		Limit(limitFrom(c)).
		Find(&runs).Error; err != nil {
		respondError(c, err, "run")
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) listTemplates(c *gin.Context) {
	var templates []models.Template
	if err := s.scoped(c).Order("name asc").Limit(limitFrom(c)).Find(&templates).Error; err != nil {
		respondError(c, err, "template")
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (s *Server) getTemplate(c *gin.Context) {
	var tpl models.Template
	if err := s.scoped(c).First(&tpl, "id = ?", c.Param("id")).Error; err != nil {
		respondError(c, err, "template")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"template":      tpl,
		"period_valid":  period.Valid(tpl.Period),
		"current_range": period.Resolve(tpl.Period, s.now().In(s.loc)),
	})
}

func (s *Server) listReports(c *gin.Context) {
	query := s.scoped(c)
	if scheduleID := c.Query("schedule_id"); scheduleID != "" {
		query = query.Where("schedule_id = ?", scheduleID)
	}

	var reports []models.Report
	if err := query.Order("created_at desc").Limit(limitFrom(c)).Find(&reports).Error; err != nil {
		respondError(c, err, "report")
		return
	}
	c.JSON(http.StatusOK, reports)
}

// ReportDetail is a report with its slides in presentation order.
type ReportDetail struct {
	Report models.Report  `json:"report"`
	Slides []models.Slide `json:"slides"`
}

func (s *Server) getReport(c *gin.Context) {
	var rep models.Report
	if err := s.scoped(c).First(&rep, "id = ?", c.Param("id")).Error; err != nil {
		respondError(c, err, "report")
		return
	}

	var slides []models.Slide
	if err := s.db.WithContext(c.Request.Context()).Where("report_id = ?", rep.ID).Find(&slides).Error; err != nil {
		respondError(c, err, "slide")
		return
	}

	c.JSON(http.StatusOK, ReportDetail{Report: rep, Slides: orderSlides(rep.SlideIDs, slides)})
}

// orderSlides arranges slides by ids. Slides not referenced by ids are dropped.
func orderSlides(ids []string, slides []models.Slide) []models.Slide {
	byID := make(map[string]models.Slide, len(slides))
	for _, s := range slides {
		byID[s.ID] = s
	}
	ordered := make([]models.Slide, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

func (s *Server) tick(c *gin.Context) {
	result, err := s.runner.Tick(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Metrics())
}
