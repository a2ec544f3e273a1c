package operator

import (
	"context"
	"fmt"
	"strings"

	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/logger"
)

const DefaultRegion = "us-west-2"

// Stage copies every object under SourceLocation into DestinationTable,
// replacing its contents.
//
// Two Stages writing the same table must not run as unordered siblings:
// nothing in the engine locks a table, only graph edges order writers.
type Stage struct {
	SourceLocation   string
	DestinationTable string
	// FormatHint is "auto" (default), "csv", or a JSONPaths file location
	FormatHint    string
	CredentialRef string
	Region        string
}

func (s *Stage) Kind() Kind        { return KindStage }
func (s *Stage) Targets() []string { return []string{s.DestinationTable} }
func (s *Stage) operator()         {}

func (s *Stage) Validate() error {
	if err := validateTable(s.DestinationTable); err != nil {
		return err
	}
	if strings.TrimSpace(s.SourceLocation) == "" {
		return fmt.Errorf("stage %s: source location is required", s.DestinationTable)
	}
	if _, err := parseLocation(s.SourceLocation); err != nil {
		return fmt.Errorf("stage %s: %w", s.DestinationTable, err)
	}
	return nil
}

func (s *Stage) Run(ctx context.Context, env Env) error {
	table := s.DestinationTable

	location, err := RenderLocation(s.SourceLocation, env)
	if err != nil {
		return pipelineerrors.NewLoadError(table, "invalid source location", err)
	}

	if env.Credentials == nil {
		return pipelineerrors.NewCredentialError(s.CredentialRef, fmt.Errorf("no credential provider configured"))
	}
	creds, err := env.Credentials.GetCredentials(ctx, s.CredentialRef)
	if err != nil {
		return pipelineerrors.NewCredentialError(s.CredentialRef, err)
	}

	log := logger.Op.WithFields(map[string]interface{}{
		"table":    table,
		"location": location,
		"run_id":   env.RunID,
	})

	// Check before clearing so an empty partition leaves the table intact
	if env.Objects != nil {
		ok, err := env.Objects.HasObjects(ctx, location, creds)
		if err != nil {
			return pipelineerrors.NewLoadError(table, "listing source location failed", err)
		}
		if !ok {
			return pipelineerrors.NewNoObjectsError(table, location)
		}
	}

	log.Info("Clearing data from destination table")
	if err := env.Warehouse.Execute(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		e := pipelineerrors.NewLoadError(table, "clearing destination table failed", err)
		e.Code = pipelineerrors.CodeLoadClear
		return e
	}

	logger.User.Stagef("Copying %s into %s", location, table)
	if err := env.Warehouse.Execute(ctx, s.copyStatement(location, s.region(env), creds.AccessKey, creds.SecretKey, creds.SessionToken)); err != nil {
		return pipelineerrors.NewLoadError(table, "COPY rejected", err)
	}

	log.Debug("Copy finished")
	return nil
}

// region prefers the task's own region, then the configured one.
func (s *Stage) region(env Env) string {
	for _, r := range []string{s.Region, env.Region} {
		if strings.TrimSpace(r) != "" {
			return strings.TrimSpace(r)
		}
	}
	return DefaultRegion
}

func (s *Stage) copyStatement(location, region, accessKey, secretKey, sessionToken string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "COPY %s\n", s.DestinationTable)
	fmt.Fprintf(&sb, "FROM '%s'\n", quote(location))
	fmt.Fprintf(&sb, "ACCESS_KEY_ID '%s'\n", quote(accessKey))
	fmt.Fprintf(&sb, "SECRET_ACCESS_KEY '%s'\n", quote(secretKey))
	if sessionToken != "" {
		fmt.Fprintf(&sb, "SESSION_TOKEN '%s'\n", quote(sessionToken))
	}
	sb.WriteString(formatClause(s.FormatHint))
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "REGION '%s'", quote(region))
	return sb.String()
}

func formatClause(hint string) string {
	switch h := strings.TrimSpace(hint); strings.ToLower(h) {
	case "", "auto":
		return "JSON 'auto'"
	case "csv":
		return "CSV"
	default:
		return fmt.Sprintf("JSON '%s'", quote(h))
	}
}

func quote(literal string) string {
	return strings.ReplaceAll(literal, "'", "''")
}
