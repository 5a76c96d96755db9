// Package services provides embedded templates for AI service prompts
package services

import (
	"embed"
	"strings"
	"text/template"

	contextutils "helpcy/internal/utils"
)

//go:embed templates/*.tmpl
var aiTemplatesFS embed.FS

//go:embed templates/classification_schema.json
var classificationSchemaJSON string

// Template names as constants
const (
	ClassifySystemTemplate     = "classify_system.tmpl"
	ClassifyPhotoTemplate      = "classify_photo.tmpl"
	ClassifyTranscriptTemplate = "classify_transcript.tmpl"
)

// AITemplateData holds data for rendering AI prompt templates
type AITemplateData struct {
	// Subject names what is being analysed ("photo" or "voice note transcript")
	Subject    string
	Categories []CatalogEntry
	Fallback   string
	Transcript string
}

// AITemplateManager manages AI prompt templates
type AITemplateManager struct {
	templates *template.Template
}

// NewAITemplateManager creates a new template manager
func NewAITemplateManager() (result0 *AITemplateManager, err error) {
	templates, err := template.New("").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(aiTemplatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to parse AI templates")
	}

	return &AITemplateManager{
		templates: templates,
	}, nil
}

// RenderTemplate renders a template with the given data
func (tm *AITemplateManager) RenderTemplate(templateName string, data AITemplateData) (result0 string, err error) {
	var buf strings.Builder
	err = tm.templates.ExecuteTemplate(&buf, templateName, data)
	if err != nil {
		return "", contextutils.WrapErrorf(err, "failed to render template %s", templateName)
	}
	return strings.TrimSpace(buf.String()), nil
}
