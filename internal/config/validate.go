package config

import (
	"fmt"
	"strings"

	"github.com/RobertDonnan/ufo-notebook/internal/present"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into
// the config (e.g. "engine.kind", "steps[3].options.type").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline and never looks at the data; column references are
// checked when the steps run.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateSteps(p.Steps)...)
	issues = append(issues, validateEngine(p.Engine)...)
	issues = append(issues, validateDisplay(p.Display)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	switch strings.TrimSpace(s.Kind) {
	case "":
		return []Issue{{Severity: SeverityError, Path: "source.kind", Message: "source.kind must not be empty"}}
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "http":
		u := strings.TrimSpace(s.HTTP.URL)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.url",
				Message:  fmt.Sprintf("http source requires an http(s) url, got %q", u),
			})
		}
		if s.HTTP.MaxRetries < 0 || s.HTTP.TimeoutSeconds < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http",
				Message:  "max_retries and timeout_seconds must not be negative",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q", s.Kind),
		})
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue
	switch strings.TrimSpace(p.Kind) {
	case "", "csv":
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q", p.Kind),
		}}
	}
	if s := p.Options.String("comma", ","); len([]rune(s)) != 1 || s == "\"" || s == "\n" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.comma",
			Message:  fmt.Sprintf("comma must be a single non-quote rune, got %q", s),
		})
	}
	return issues
}

func validateSteps(steps []Step) []Issue {
	var issues []Issue
	if len(steps) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "steps",
			Message:  "no steps configured; the source will be loaded and nothing else",
		})
	}
	for i, s := range steps {
		base := fmt.Sprintf("steps[%d]", i)
		opt := func(key string) string { return base + ".options." + key }
		errAt := func(path, format string, a ...any) {
			issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
		}

		switch s.Kind {
		case StepCast:
			if s.Options.String("column", "") == "" {
				errAt(opt("column"), "cast requires a column")
			}
			if _, err := table.ParseType(s.Options.String("type", "")); err != nil {
				errAt(opt("type"), "%v", err)
			}
		case StepExport:
			if strings.TrimSpace(s.Options.String("path", "")) == "" {
				errAt(opt("path"), "export requires a destination path")
			}
			if s.Options.Int("max_rows_per_file", 0) < 0 {
				errAt(opt("max_rows_per_file"), "max_rows_per_file must not be negative")
			}
		case StepShow:
			if s.Options.Int("limit", 1) < 0 {
				errAt(opt("limit"), "limit must not be negative")
			}
		case StepSchema:
		case StepAggregate:
			issues = append(issues, validateQueries(base, s.Options.List("queries"))...)
		case StepPresent:
			if strings.TrimSpace(s.Options.String("name", "")) == "" {
				errAt(opt("name"), "present requires a name")
			}
			if _, err := present.ParseHint(s.Options.String("hint", "")); err != nil {
				errAt(opt("hint"), "%v", err)
			}
			if s.Options.Int("limit", 0) < 0 {
				errAt(opt("limit"), "limit must not be negative")
			}
		case "":
			errAt(base+".kind", "step kind must not be empty")
		default:
			errAt(base+".kind", "unknown step kind %q", s.Kind)
		}
	}
	return issues
}

func validateQueries(base string, qs []Options) []Issue {
	var issues []Issue
	if len(qs) == 0 {
		return []Issue{{Severity: SeverityError, Path: base + ".options.queries", Message: "aggregate requires at least one query"}}
	}
	names := map[string]int{}
	for i, q := range qs {
		path := fmt.Sprintf("%s.options.queries[%d]", base, i)
		name := q.String("name", "")
		if strings.TrimSpace(name) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "query requires a name"})
		} else if j, dup := names[name]; dup {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".name",
				Message:  fmt.Sprintf("query name %q repeats queries[%d]; presentations will share a name", name, j),
			})
		} else {
			names[name] = i
		}

		if _, err := QueryFromOptions(q); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: err.Error()})
		}
	}
	return issues
}

func validateEngine(e Engine) []Issue {
	var issues []Issue
	switch e.Kind {
	case "", "memory":
		if e.DSN != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "engine.dsn",
				Message:  "dsn is ignored by the memory engine",
			})
		}
	case "sqlite":
	case "postgres", "mssql", "mysql":
		if strings.TrimSpace(e.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "engine.dsn",
				Message:  fmt.Sprintf("%s engine requires a dsn", e.Kind),
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "engine.kind",
			Message:  fmt.Sprintf("unknown engine kind %q", e.Kind),
		})
	}
	if e.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "engine.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	return issues
}

func validateDisplay(ds []Display) []Issue {
	var issues []Issue
	for i, d := range ds {
		base := fmt.Sprintf("display[%d]", i)
		switch d.Kind {
		case "console":
		case "json":
			if strings.TrimSpace(d.Options.String("dir", "")) == "" {
				issues = append(issues, Issue{Severity: SeverityError, Path: base + ".options.dir", Message: "json display requires a dir"})
			}
		case "kafka":
			if len(d.Options.StringSlice("brokers")) == 0 {
				issues = append(issues, Issue{Severity: SeverityError, Path: base + ".options.brokers", Message: "kafka display requires brokers"})
			}
			if d.Options.String("topic", "") == "" {
				issues = append(issues, Issue{Severity: SeverityError, Path: base + ".options.topic", Message: "kafka display requires a topic"})
			}
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".kind",
				Message:  fmt.Sprintf("unknown display kind %q", d.Kind),
			})
		}
	}
	return issues
}
