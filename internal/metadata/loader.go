// Package metadata loads report descriptions. A report is described by a
// JSON sidecar next to its template; when no sidecar exists a minimal
// description is derived from the template itself. Default parameter values
// may contain ${expr} tokens that resolve to dates relative to today or to
// caller supplied context values.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/reports/internal/engine"
	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/logging"
	"github.com/conneroisu/reports/internal/types"
)

// DerivedDescription is the description of metadata derived from a template.
const DerivedDescription = "Automatically derived from template"

var tokenPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Loader loads report metadata.
type Loader struct {
	logger logging.Logger
	now    Clock
}

// Option configures a Loader.
type Option func(*Loader)

// WithClock replaces the wall clock used for dynamic defaults.
func WithClock(clock Clock) Option {
	return func(l *Loader) {
		l.now = clock
	}
}

// NewLoader creates a metadata loader.
func NewLoader(logger logging.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}

	l := &Loader{
		logger: logger.WithComponent("metadata"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load returns the metadata of the template at templatePath, preferring the
// JSON sidecar <base>.json and falling back to the template declaration.
func (l *Loader) Load(templatePath string) (*types.ReportMetadata, error) {
	sidecar := filepath.Join(filepath.Dir(templatePath), engine.BaseName(templatePath)+".json")

	md, err := l.LoadFile(sidecar)
	if err == nil {
		return md, nil
	}

	l.logger.Debug(context.Background(), "metadata sidecar unavailable, deriving from template",
		"template", templatePath, "reason", err.Error())

	return l.FromTemplate(templatePath)
}

// LoadFile loads metadata from a JSON file. Missing or invalid files yield a
// not-found error.
func (l *Loader) LoadFile(path string) (*types.ReportMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, reporterrors.NewNotFoundError(reporterrors.CodeMetadataNotFound, "metadata file not found").WithFile(path)
		}
		l.logger.Error(context.Background(), err, "failed to read metadata", "path", path)
		return nil, reporterrors.NewNotFoundError(reporterrors.CodeMetadataNotFound, "metadata file unreadable").WithFile(path)
	}

	return l.LoadJSON(data, path)
}

// LoadFS loads metadata from a JSON file inside fsys.
func (l *Loader) LoadFS(fsys fs.FS, name string) (*types.ReportMetadata, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, reporterrors.NewNotFoundError(reporterrors.CodeMetadataNotFound, "metadata file not found").WithFile(name)
	}

	return l.LoadJSON(data, name)
}

// LoadJSON parses a metadata document. The report may sit at the root or
// under a top-level "report" key. source only labels log lines and errors.
func (l *Loader) LoadJSON(data []byte, source string) (*types.ReportMetadata, error) {
	ctx := context.Background()

	var root object
	if err := json.Unmarshal(data, &root); err != nil {
		l.logger.Error(ctx, err, "failed to parse metadata", "source", source)
		return nil, invalid(source, "malformed JSON")
	}

	node := root
	if raw, ok := root["report"]; ok {
		var wrapped object
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			l.logger.Warn(ctx, err, "invalid report node", "source", source)
			return nil, invalid(source, "report node is not an object")
		}
		node = wrapped
	}

	if len(node) == 0 {
		l.logger.Warn(ctx, nil, "missing report data", "source", source)
		return nil, invalid(source, "missing report data")
	}

	if reason := l.validateStructure(node); reason != "" {
		l.logger.Warn(ctx, nil, "invalid metadata structure", "source", source, "reason", reason)
		return nil, invalid(source, reason)
	}

	return l.parseMetadata(node), nil
}

func invalid(source, reason string) error {
	return reporterrors.NewNotFoundError(reporterrors.CodeMetadataNotFound, "invalid metadata: "+reason).WithFile(source)
}

// FromTemplate derives minimal metadata from the template declaration.
func (l *Loader) FromTemplate(templatePath string) (*types.ReportMetadata, error) {
	def, err := engine.ReadDefinition(templatePath)
	if err != nil {
		if reporterrors.IsNotFound(err) || errors.Is(err, fs.ErrNotExist) {
			return nil, reporterrors.NewNotFoundError(reporterrors.CodeTemplateNotFound, "template not found").WithFile(templatePath)
		}
		l.logger.Error(context.Background(), err, "failed to derive metadata from template", "template", templatePath)
		return nil, reporterrors.NewNotFoundError(reporterrors.CodeMetadataNotFound, "template unreadable").WithFile(templatePath)
	}

	id := engine.BaseName(templatePath)
	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = id
	}

	return types.Minimal(id, name, DerivedDescription, filepath.Base(templatePath)), nil
}

// ParseDynamicValue resolves a value that is exactly one ${expr} token.
// Other values, and unknown expressions, are returned unchanged.
func (l *Loader) ParseDynamicValue(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}

	name := value[2 : len(value)-1]
	if resolved, ok := Evaluate(name, l.now()); ok {
		return resolved
	}

	l.logger.Warn(context.Background(), nil, "unknown dynamic expression", "expression", name)

	return value
}

// ResolveDefaults returns a copy of params whose default values have every
// ${expr} token substituted. Standard expressions take precedence over
// entries of values; unknown tokens are kept verbatim.
func (l *Loader) ResolveDefaults(params []types.ReportParameter, values map[string]string) []types.ReportParameter {
	out := make([]types.ReportParameter, 0, len(params))
	for _, p := range params {
		if p.DefaultValue != nil && strings.Contains(*p.DefaultValue, "${") {
			resolved := l.substitute(*p.DefaultValue, values)
			p.DefaultValue = &resolved
		}
		out = append(out, p)
	}

	return out
}

func (l *Loader) substitute(value string, values map[string]string) string {
	now := l.now()

	return tokenPattern.ReplaceAllStringFunc(value, func(token string) string {
		name := tokenPattern.FindStringSubmatch(token)[1]

		if resolved, ok := Evaluate(name, now); ok {
			return resolved
		}
		if v, ok := values[name]; ok {
			return v
		}

		l.logger.Warn(context.Background(), nil, "unknown dynamic expression", "expression", name)

		return token
	})
}

func (l *Loader) validateStructure(node object) string {
	if _, ok := node.str("id"); !ok {
		return "missing or invalid 'id' field"
	}

	if _, ok := node.str("name"); !ok {
		return "missing or invalid 'name' field"
	}

	files, ok := node.obj("files")
	if !ok {
		return "missing 'files' field"
	}

	if _, ok := files.str("template"); !ok {
		return "missing or invalid 'files.template' field"
	}

	return ""
}

func (l *Loader) parseMetadata(node object) *types.ReportMetadata {
	id, _ := node.str("id")
	name, _ := node.str("name")
	files, _ := node.obj("files")
	template, _ := files.str("template")

	md := &types.ReportMetadata{
		ID:           id,
		Version:      node.text("version", "1.0.0"),
		Name:         name,
		Description:  node.text("description", ""),
		Category:     node.text("category", ""),
		Author:       node.text("author", ""),
		Created:      node.text("created", ""),
		LastModified: node.text("lastModified", ""),
		Files: types.ReportFiles{
			Template:  template,
			Compiled:  files.text("compiled", ""),
			Thumbnail: files.text("thumbnail", ""),
		},
		Parameters:  []types.ReportParameter{},
		UI:          l.parseUIIntegration(node),
		Tags:        []string{},
		AccessLevel: node.text("accessLevel", "user"),
	}

	for _, raw := range node.array("parameters") {
		var pn object
		if err := json.Unmarshal(raw, &pn); err != nil {
			l.logger.Warn(context.Background(), err, "parameter is not an object", "report", id)
			continue
		}
		if p, ok := l.parseParameter(pn); ok {
			md.Parameters = append(md.Parameters, p)
		} else {
			l.logger.Warn(context.Background(), nil, "parameter missing 'name' or 'type'", "report", id)
		}
	}

	for _, raw := range node.array("tags") {
		var tag string
		if err := json.Unmarshal(raw, &tag); err == nil {
			md.Tags = append(md.Tags, tag)
		}
	}

	return md
}

func (l *Loader) parseParameter(node object) (types.ReportParameter, bool) {
	if !node.has("name") || !node.has("type") {
		return types.ReportParameter{}, false
	}

	name := node.text("name", "")
	p := types.ReportParameter{
		Name:        name,
		Type:        types.ParameterType(node.text("type", "")),
		Label:       node.text("label", name),
		Description: node.text("description", ""),
		Required:    node.boolean("required", false),
	}

	if node.isValue("defaultValue") {
		v := l.ParseDynamicValue(node.text("defaultValue", ""))
		p.DefaultValue = &v
	}

	if vn, ok := node.obj("validation"); ok && len(vn) > 0 {
		v := &types.Validation{
			Min:     vn.number("min"),
			Max:     vn.number("max"),
			Pattern: vn.text("pattern", ""),
			MinDate: vn.text("minDate", ""),
			MaxDate: vn.text("maxDate", ""),
		}
		if !v.IsZero() {
			p.Validation = v
		}
	}

	if node.isArray("options") {
		p.Options = []types.Option{}
		for _, raw := range node.array("options") {
			var on object
			if err := json.Unmarshal(raw, &on); err != nil {
				continue
			}
			value := on.text("value", "")
			p.Options = append(p.Options, types.Option{Value: value, Label: on.text("label", value)})
		}
	}

	if sn, ok := node.obj("source"); ok && len(sn) > 0 {
		p.Source = &types.Source{
			Type:       sn.text("type", ""),
			Endpoint:   sn.text("endpoint", ""),
			ValueField: sn.text("valueField", ""),
			LabelField: sn.text("labelField", ""),
		}
	}

	return p, true
}

func (l *Loader) parseUIIntegration(node object) types.UIIntegration {
	ui := types.UIIntegration{ShowInReportsList: true, ContextMenus: []types.ContextMenu{}}

	un, ok := node.obj("uiIntegration")
	if !ok || len(un) == 0 {
		return ui
	}

	ui.ShowInReportsList = un.boolean("showInReportsList", true)

	for _, raw := range un.array("contextMenus") {
		var mn object
		if err := json.Unmarshal(raw, &mn); err != nil {
			continue
		}

		menu := types.ContextMenu{
			Component:        mn.text("component", ""),
			Label:            mn.text("label", ""),
			Icon:             mn.text("icon", ""),
			ParameterMapping: map[string]string{},
		}
		if pm, ok := mn.obj("parameterMapping"); ok {
			for k := range pm {
				menu.ParameterMapping[k] = pm.text(k, "")
			}
		}
		ui.ContextMenus = append(ui.ContextMenus, menu)
	}

	return ui
}

// object is a lazily decoded JSON object.
type object map[string]json.RawMessage

func (o object) has(key string) bool {
	_, ok := o[key]
	return ok
}

// str returns the value of key when it is a JSON string.
func (o object) str(key string) (string, bool) {
	raw, ok := o[key]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}

	return s, true
}

// isValue reports whether key holds a non-null scalar.
func (o object) isValue(key string) bool {
	raw, ok := o[key]
	if !ok {
		return false
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch v.(type) {
	case string, float64, bool:
		return true
	default:
		return false
	}
}

// text returns the textual form of a scalar, or def when key is missing,
// null or not a scalar.
func (o object) text(key, def string) string {
	raw, ok := o[key]
	if !ok {
		return def
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}

	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return def
	}
}

// number returns the value of key when it is a JSON number.
func (o object) number(key string) *float64 {
	raw, ok := o[key]
	if !ok {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}

	return &f
}

func (o object) boolean(key string, def bool) bool {
	raw, ok := o[key]
	if !ok {
		return def
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}

	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	case float64:
		return t != 0
	default:
		return def
	}
}

func (o object) obj(key string) (object, bool) {
	raw, ok := o[key]
	if !ok {
		return nil, false
	}

	var out object
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, false
	}

	return out, true
}

func (o object) isArray(key string) bool {
	raw, ok := o[key]
	if !ok {
		return false
	}

	return strings.HasPrefix(strings.TrimSpace(string(raw)), "[")
}

func (o object) array(key string) []json.RawMessage {
	raw, ok := o[key]
	if !ok {
		return nil
	}

	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}

	return out
}
