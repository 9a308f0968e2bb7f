// Package config defines the JSON/YAML-serializable configuration model for
// the UFO sightings pipeline. Pipelines are loaded from disk and passed
// through the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":    "ufo_sightings",
//	  "source": { "kind": "file", "file": { "path": "/mnt/ufo-data/raw-data/ufo-sightings-transformed.csv" } },
//	  "parser": { "kind": "csv", "options": { "header": "true" } },
//	  "steps": [
//	    { "kind": "cast",   "options": { "column": "Year", "type": "int" } },
//	    { "kind": "export", "options": { "path": "/mnt/ufo-data/transformed/ufo", "header": "true" } }
//	  ],
//	  "engine":  { "kind": "memory" },
//	  "display": [ { "kind": "console" } ]
//	}
package config

import "encoding/json"

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run for logs and metrics.
	Job string `json:"job" yaml:"job"`

	// Source describes where the input table comes from.
	Source Source `json:"source" yaml:"source"`

	// Parser configures how the source bytes become a table.
	Parser Parser `json:"parser" yaml:"parser"`

	// Steps are executed in order after the load.
	Steps []Step `json:"steps" yaml:"steps"`

	// Engine selects the implementation behind aggregate steps.
	Engine Engine `json:"engine" yaml:"engine"`

	// Display lists the sinks presentations are handed to. Empty means a
	// single console sink.
	Display []Display `json:"display" yaml:"display"`
}

// Source identifies the data source.
type Source struct {
	// Kind selects the source implementation: "file" or "http".
	Kind string `json:"kind" yaml:"kind"`

	File SourceFile `json:"file" yaml:"file"`
	HTTP SourceHTTP `json:"http" yaml:"http"`
}

// Location returns the path or URL the source reads.
func (s Source) Location() string {
	if s.Kind == "http" {
		return s.HTTP.URL
	}
	return s.File.Path
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is a CSV file or a directory of part files from a prior export.
	Path string `json:"path" yaml:"path"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL string `json:"url" yaml:"url"`

	// MaxRetries bounds retries of transient failures (429, 5xx, transport
	// errors). Zero means a single attempt.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// TimeoutSeconds bounds the whole download; zero uses the default.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Parser selects how to parse the source into columns.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind" yaml:"kind"`

	// Options for CSV: header (bool or "true"/"false"), comma (string),
	// trim_space (bool), lazy_quotes (bool), normalize_headers (bool).
	Options Options `json:"options" yaml:"options"`
}

// Step kinds understood by the pipeline.
const (
	StepCast      = "cast"
	StepExport    = "export"
	StepShow      = "show"
	StepSchema    = "schema"
	StepAggregate = "aggregate"
	StepPresent   = "present"
)

// Step is one stage of the linear pipeline. The options shape depends on Kind:
//
//	cast:      column, type, layout
//	export:    path, header, comma, max_rows_per_file
//	show:      limit, name
//	schema:    name
//	aggregate: queries [ {name, group_by, aggregations [{func, column, as}], order_by, order, hint} ]
//	present:   name, filter_not_null, select, limit, hint
type Step struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Engine selects where aggregate queries run. Kind "memory" (default) runs
// them in-process; "sqlite", "postgres", "mssql" and "mysql" push them to a
// SQL database reachable through DSN.
type Engine struct {
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`

	// BatchSize bounds rows per bulk insert when loading a SQL engine.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// Display configures one presentation sink: "console", "json" or "kafka".
type Display struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Options fetches typed values from arbitrary JSON/YAML maps, returning the
// provided default when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def. The strings "true" and
// "false" are accepted as well, since option files written for other tools
// commonly quote them.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			switch b {
			case "true", "TRUE", "True":
				return true
			case "false", "FALSE", "False":
				return false
			}
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64,
// YAML numbers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. A single string is returned as a one-element slice.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		case string:
			return []string{vv}
		}
	}
	return nil
}

// List returns the objects of an array value as Options. Non-object
// elements are skipped.
func (o Options) List(key string) []Options {
	v, ok := o[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Options, 0, len(arr))
	for _, x := range arr {
		switch m := x.(type) {
		case map[string]any:
			out = append(out, Options(m))
		case Options:
			out = append(out, m)
		}
	}
	return out
}

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// UnmarshalJSON makes a missing or null "options" object decode to an empty,
// non-nil Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
