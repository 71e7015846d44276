// Package types provides the report catalog data model shared by the loader,
// discovery, compiler and generation packages. Keeping these types here
// avoids import cycles between the packages that produce and consume them.
package types

import "strings"

// ParameterType names the declared type of a report parameter.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamInteger ParameterType = "integer"
	ParamLong    ParameterType = "long"
	ParamDouble  ParameterType = "double"
	ParamBoolean ParameterType = "boolean"
	ParamDate    ParameterType = "date"
)

// Canonical folds the aliases accepted in metadata files ("int", "float")
// onto the canonical type names. Unknown types are returned lower-cased.
func (t ParameterType) Canonical() ParameterType {
	switch strings.ToLower(string(t)) {
	case "string":
		return ParamString
	case "integer", "int":
		return ParamInteger
	case "long":
		return ParamLong
	case "double", "float":
		return ParamDouble
	case "boolean":
		return ParamBoolean
	case "date":
		return ParamDate
	default:
		return ParameterType(strings.ToLower(string(t)))
	}
}

// ReportMetadata is the immutable description of one report. Identity is ID;
// records from different sources are never merged.
type ReportMetadata struct {
	ID           string            `json:"id" yaml:"id"`
	Version      string            `json:"version" yaml:"version"`
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Category     string            `json:"category,omitempty" yaml:"category,omitempty"`
	Author       string            `json:"author,omitempty" yaml:"author,omitempty"`
	Created      string            `json:"created,omitempty" yaml:"created,omitempty"`
	LastModified string            `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
	Files        ReportFiles       `json:"files" yaml:"files"`
	Parameters   []ReportParameter `json:"parameters" yaml:"parameters"`
	UI           UIIntegration     `json:"uiIntegration" yaml:"uiIntegration"`
	Tags         []string          `json:"tags" yaml:"tags"`
	AccessLevel  string            `json:"accessLevel" yaml:"accessLevel"`
}

// ReportFiles references the files that make up a report.
type ReportFiles struct {
	Template  string `json:"template" yaml:"template"`
	Compiled  string `json:"compiled,omitempty" yaml:"compiled,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
}

// UIIntegration describes how a report is surfaced by a front end.
type UIIntegration struct {
	ShowInReportsList bool          `json:"showInReportsList" yaml:"showInReportsList"`
	ContextMenus      []ContextMenu `json:"contextMenus" yaml:"contextMenus"`
}

// ContextMenu binds a report to a UI component's context menu.
type ContextMenu struct {
	Component        string            `json:"component,omitempty" yaml:"component,omitempty"`
	Label            string            `json:"label,omitempty" yaml:"label,omitempty"`
	Icon             string            `json:"icon,omitempty" yaml:"icon,omitempty"`
	ParameterMapping map[string]string `json:"parameterMapping,omitempty" yaml:"parameterMapping,omitempty"`
}

// ReportParameter is one entry of a report's ordered parameter schema.
type ReportParameter struct {
	Name         string        `json:"name" yaml:"name"`
	Type         ParameterType `json:"type" yaml:"type"`
	Label        string        `json:"label" yaml:"label"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Required     bool          `json:"required" yaml:"required"`
	DefaultValue *string       `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Validation   *Validation   `json:"validation,omitempty" yaml:"validation,omitempty"`
	Options      []Option      `json:"options,omitempty" yaml:"options,omitempty"`
	Source       *Source       `json:"source,omitempty" yaml:"source,omitempty"`
}

// HasDefault reports whether a default value was declared.
func (p ReportParameter) HasDefault() bool {
	return p.DefaultValue != nil
}

// Validation holds the optional value constraints of a parameter.
type Validation struct {
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MinDate string   `json:"minDate,omitempty" yaml:"minDate,omitempty"`
	MaxDate string   `json:"maxDate,omitempty" yaml:"maxDate,omitempty"`
}

// IsZero reports whether no constraint is set.
func (v *Validation) IsZero() bool {
	return v == nil || (v.Min == nil && v.Max == nil && v.Pattern == "" && v.MinDate == "" && v.MaxDate == "")
}

// Option is one enumerated choice for a parameter.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Source describes an externally populated list of choices.
type Source struct {
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	ValueField string `json:"valueField,omitempty" yaml:"valueField,omitempty"`
	LabelField string `json:"labelField,omitempty" yaml:"labelField,omitempty"`
}

// ReportSource tells where a catalog entry was discovered.
type ReportSource string

const (
	SourceExternal ReportSource = "external"
	SourceEmbedded ReportSource = "embedded"
)

// ReportInfo is the summary view of a catalog entry used by listings.
type ReportInfo struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string       `json:"category,omitempty" yaml:"category,omitempty"`
	Tags        []string     `json:"tags" yaml:"tags"`
	Source      ReportSource `json:"source" yaml:"source"`
	Thumbnail   string       `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
}

// Minimal builds the metadata derived from a bare template when no JSON
// description exists.
func Minimal(id, name, description, template string) *ReportMetadata {
	return &ReportMetadata{
		ID:          id,
		Version:     "1.0.0",
		Name:        name,
		Description: description,
		Files:       ReportFiles{Template: template},
		Parameters:  []ReportParameter{},
		UI:          UIIntegration{ShowInReportsList: true, ContextMenus: []ContextMenu{}},
		Tags:        []string{},
		AccessLevel: "user",
	}
}
