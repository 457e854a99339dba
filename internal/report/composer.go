package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/reportengine/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultDateLayout = "January 2, 2006"

// Content holds the synthetic cover and conclusion markup for one report.
type Content struct {
	Cover      string
	Conclusion string
}

// Composer renders cover and conclusion fragments. It does no I/O after
// construction and is safe for concurrent use.
type Composer struct {
	templates      *template.Template
	dateLayout     string
	closingMessage string
}

type coverData struct {
	Title      string
	ClientName string
	LogoURL    string
	Date       string
	PreparedBy string
}

type conclusionData struct {
	Heading  string
	Message  string
	Name     string
	Email    string
	PhotoURL string
}

func NewComposer(dateLayout, closingMessage string) (*Composer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to load content templates: %w", err)
	}
	if dateLayout == "" {
		dateLayout = defaultDateLayout
	}
	return &Composer{
		templates:      tmpl,
		dateLayout:     dateLayout,
		closingMessage: closingMessage,
	}, nil
}

// FormatDate renders t the way report titles and covers show dates.
func (c *Composer) FormatDate(t time.Time) string {
	return t.Format(c.dateLayout)
}

// Compose renders both fragments. Nil client or user degrade to empty fields.
func (c *Composer) Compose(title string, client *models.Client, user *models.UserProfile, now time.Time) Content {
	return Content{
		Cover:      c.Cover(title, client, user, now),
		Conclusion: c.Conclusion(user),
	}
}

func (c *Composer) Cover(title string, client *models.Client, user *models.UserProfile, now time.Time) string {
	data := coverData{
		Title: title,
		Date:  c.FormatDate(now),
	}
	if client != nil {
		data.ClientName = client.Name
		data.LogoURL = client.LogoURL
	}
	if user != nil {
		data.PreparedBy = preparedBy(user.Name, user.Company)
	}
	return c.render("cover", data)
}

func (c *Composer) Conclusion(user *models.UserProfile) string {
	data := conclusionData{
		Heading: "Thank you",
		Message: c.closingMessage,
	}
	if user != nil {
		data.Name = user.Name
		data.Email = user.Email
		data.PhotoURL = user.PhotoURL
	}
	return c.render("conclusion", data)
}

// render returns "" on a template failure so composition never fails the run.
func (c *Composer) render(name string, data interface{}) string {
	var buf bytes.Buffer
	if err := c.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

func preparedBy(name, company string) string {
	name = strings.TrimSpace(name)
	company = strings.TrimSpace(company)
	switch {
	case name != "" && company != "":
		return name + " · " + company
	case name != "":
		return name
	default:
		return company
	}
}
