package operator

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// LocationData is what a source location template can reference, e.g.
// s3://udacity-dend/log_data/{{.Year}}/{{.Month}}
type LocationData struct {
	Year        string
	Month       string
	Day         string
	Hour        string
	Ds          string // YYYY-MM-DD
	RunID       string
	LogicalTime time.Time
}

func newLocationData(env Env) LocationData {
	ts := env.LogicalTime.UTC()
	return LocationData{
		Year:        ts.Format("2006"),
		Month:       ts.Format("01"),
		Day:         ts.Format("02"),
		Hour:        ts.Format("15"),
		Ds:          ts.Format("2006-01-02"),
		RunID:       env.RunID,
		LogicalTime: ts,
	}
}

func parseLocation(raw string) (*template.Template, error) {
	return template.New("source_location").Option("missingkey=error").Parse(raw)
}

// RenderLocation expands a source location template for env's logical time
func RenderLocation(raw string, env Env) (string, error) {
	tmpl, err := parseLocation(raw)
	if err != nil {
		return "", fmt.Errorf("parse source location: %w", err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, newLocationData(env)); err != nil {
		return "", fmt.Errorf("render source location: %w", err)
	}
	return sb.String(), nil
}
