// Package pipeline turns a YAML pipeline definition into a validated task graph.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maxkimambo/sparkflow/internal/dag"
	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/operator"
)

const (
	DefaultRetries    = 3
	DefaultRetryDelay = 5 * time.Minute
)

// Definition is the top-level structure of a pipeline file.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Schedule is @hourly, @daily or a Go duration such as 30m
	Schedule          string         `yaml:"schedule,omitempty"`
	DefaultRetries    *int           `yaml:"default_retries,omitempty"`
	DefaultRetryDelay *time.Duration `yaml:"default_retry_delay,omitempty"`
	Tasks             []TaskDef      `yaml:"tasks"`

	source string
	files  fs.FS
}

// TaskDef declares one task. Only the fields of its operator may be set.
type TaskDef struct {
	ID         string         `yaml:"id"`
	Operator   operator.Kind  `yaml:"operator"`
	Upstream   []string       `yaml:"upstream,omitempty"`
	Retries    *int           `yaml:"retries,omitempty"`
	RetryDelay *time.Duration `yaml:"retry_delay,omitempty"`

	// stage
	SourceLocation string `yaml:"source_location,omitempty"`
	FormatHint     string `yaml:"format_hint,omitempty"`
	CredentialRef  string `yaml:"credential_ref,omitempty"`
	Region         string `yaml:"region,omitempty"`

	// stage, load_fact, load_dimension
	DestinationTable string `yaml:"destination_table,omitempty"`

	// load_fact, load_dimension; query_file is relative to the definition
	TransformQuery string `yaml:"transform_query,omitempty"`
	QueryFile      string `yaml:"query_file,omitempty"`
	WriteMode      string `yaml:"write_mode,omitempty"`

	// quality_check
	Tables []string `yaml:"tables,omitempty"`
	Rule   string   `yaml:"rule,omitempty"`
}

// Load reads a definition file. query_file paths resolve against its directory.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipelineerrors.NewDefinitionError(path, err)
	}
	return Parse(path, data, os.DirFS(filepath.Dir(path)))
}

// Parse decodes a definition. source names it in errors; files resolves
// query_file references and may be nil when none are used.
func Parse(source string, data []byte, files fs.FS) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, pipelineerrors.NewDefinitionError(source, fmt.Errorf("parse pipeline YAML: %w", err))
	}
	def.source = source
	def.files = files

	if err := def.Validate(); err != nil {
		return nil, pipelineerrors.NewDefinitionError(source, err)
	}
	return &def, nil
}

// Source returns where the definition was read from
func (d *Definition) Source() string {
	return d.source
}

// Validate checks the definition for problems that do not need the graph:
// required fields, duplicate IDs, unknown upstreams and retry settings.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("pipeline name is required")
	}
	if _, err := d.Interval(); err != nil {
		return err
	}
	if d.DefaultRetries != nil && *d.DefaultRetries < 0 {
		return errors.New("default_retries cannot be negative")
	}
	if d.DefaultRetryDelay != nil && *d.DefaultRetryDelay < 0 {
		return errors.New("default_retry_delay cannot be negative")
	}

	ids := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.ID == "" {
			return errors.New("task id is required")
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		ids[t.ID] = true
	}

	for _, t := range d.Tasks {
		for _, up := range t.Upstream {
			if !ids[up] {
				return fmt.Errorf("task %s references unknown upstream %q", t.ID, up)
			}
		}
		if t.Retries != nil && *t.Retries < 0 {
			return fmt.Errorf("task %s: retries cannot be negative", t.ID)
		}
		if t.RetryDelay != nil && *t.RetryDelay < 0 {
			return fmt.Errorf("task %s: retry_delay cannot be negative", t.ID)
		}
		if t.TransformQuery != "" && t.QueryFile != "" {
			return fmt.Errorf("task %s: transform_query and query_file are mutually exclusive", t.ID)
		}
	}
	return nil
}

// Interval returns the time between two scheduled runs
func (d *Definition) Interval() (time.Duration, error) {
	switch strings.TrimSpace(d.Schedule) {
	case "", "@hourly":
		return time.Hour, nil
	case "@daily":
		return 24 * time.Hour, nil
	}
	interval, err := time.ParseDuration(d.Schedule)
	if err != nil {
		return 0, fmt.Errorf("unsupported schedule %q", d.Schedule)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("schedule interval must be positive, got %s", d.Schedule)
	}
	return interval, nil
}

// RetryPolicy resolves the retry settings for t. retries counts re-attempts,
// so the node gets retries+1 attempts in total.
func (d *Definition) RetryPolicy(t TaskDef) dag.RetryPolicy {
	retries := DefaultRetries
	if d.DefaultRetries != nil {
		retries = *d.DefaultRetries
	}
	if t.Retries != nil {
		retries = *t.Retries
	}

	delay := DefaultRetryDelay
	if d.DefaultRetryDelay != nil {
		delay = *d.DefaultRetryDelay
	}
	if t.RetryDelay != nil {
		delay = *t.RetryDelay
	}

	return dag.RetryPolicy{MaxAttempts: retries + 1, BackoffDelay: delay}
}

// Build creates the task graph and validates it. Cycles, redundant edges and
// invalid operator settings all fail here, before anything runs.
func (d *Definition) Build() (*dag.Graph, error) {
	g := dag.NewGraph()

	for _, t := range d.Tasks {
		op, err := d.operator(t)
		if err != nil {
			return nil, pipelineerrors.NewDefinitionError(d.source, fmt.Errorf("task %s: %w", t.ID, err))
		}
		if err := g.AddNode(t.ID, op, d.RetryPolicy(t)); err != nil {
			return nil, pipelineerrors.NewDefinitionError(d.source, err)
		}
	}

	for _, t := range d.Tasks {
		for _, up := range t.Upstream {
			if err := g.AddEdge(up, t.ID); err != nil {
				return nil, pipelineerrors.NewDefinitionError(d.source, err)
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, pipelineerrors.NewDefinitionError(d.source, err)
	}
	return g, nil
}

func (d *Definition) operator(t TaskDef) (operator.Operator, error) {
	switch t.Operator {
	case operator.KindStage:
		if err := onlyFields(t, "source_location", "destination_table", "format_hint", "credential_ref", "region"); err != nil {
			return nil, err
		}
		return &operator.Stage{
			SourceLocation:   t.SourceLocation,
			DestinationTable: t.DestinationTable,
			FormatHint:       t.FormatHint,
			CredentialRef:    t.CredentialRef,
			Region:           t.Region,
		}, nil

	case operator.KindLoadFact:
		if err := onlyFields(t, "destination_table", "transform_query", "query_file"); err != nil {
			return nil, err
		}
		query, err := d.query(t)
		if err != nil {
			return nil, err
		}
		return &operator.LoadFact{DestinationTable: t.DestinationTable, TransformQuery: query}, nil

	case operator.KindLoadDimension:
		if err := onlyFields(t, "destination_table", "transform_query", "query_file", "write_mode"); err != nil {
			return nil, err
		}
		query, err := d.query(t)
		if err != nil {
			return nil, err
		}
		mode, err := operator.ParseWriteMode(t.WriteMode)
		if err != nil {
			return nil, err
		}
		return &operator.LoadDimension{DestinationTable: t.DestinationTable, TransformQuery: query, WriteMode: mode}, nil

	case operator.KindQualityCheck:
		if err := onlyFields(t, "tables", "rule"); err != nil {
			return nil, err
		}
		rule := operator.Rule(t.Rule)
		if rule == "" {
			rule = operator.RuleNonEmpty
		}
		return &operator.QualityCheck{Tables: append([]string(nil), t.Tables...), Rule: rule}, nil

	case "":
		return nil, errors.New("operator is required")
	default:
		return nil, fmt.Errorf("unknown operator %q", t.Operator)
	}
}

func (d *Definition) query(t TaskDef) (string, error) {
	if t.QueryFile == "" {
		return t.TransformQuery, nil
	}
	if d.files == nil {
		return "", fmt.Errorf("query_file %s cannot be resolved", t.QueryFile)
	}
	data, err := fs.ReadFile(d.files, filepath.ToSlash(t.QueryFile))
	if err != nil {
		return "", fmt.Errorf("read query_file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// onlyFields rejects operator fields that do not belong to t's operator
func onlyFields(t TaskDef, allowed ...string) error {
	set := map[string]bool{
		"source_location":   t.SourceLocation != "",
		"format_hint":       t.FormatHint != "",
		"credential_ref":    t.CredentialRef != "",
		"region":            t.Region != "",
		"destination_table": t.DestinationTable != "",
		"transform_query":   t.TransformQuery != "",
		"query_file":        t.QueryFile != "",
		"write_mode":        t.WriteMode != "",
		"tables":            len(t.Tables) > 0,
		"rule":              t.Rule != "",
	}
	for _, name := range allowed {
		delete(set, name)
	}
	for _, name := range sortedKeys(set) {
		if set[name] {
			return fmt.Errorf("field %s does not apply to operator %s", name, t.Operator)
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
