package discovery

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/conneroisu/reports/internal/types"
)

// Entry is one catalog record together with where it was found.
type Entry struct {
	Metadata *types.ReportMetadata
	Source   types.ReportSource
	// Path is the template file for external entries and the bundle-relative
	// template name for embedded ones.
	Path string
}

// Catalog is an immutable snapshot of the discovered reports. A new Catalog
// is built on every scan and swapped in atomically, so readers never see a
// partially merged state.
type Catalog struct {
	entries map[string]Entry
	ordered []Entry
	scanned time.Time
}

func newCatalog(entries map[string]Entry, scanned time.Time) *Catalog {
	fold := cases.Fold()

	ordered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, e)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a := fold.String(ordered[i].Metadata.Name)
		b := fold.String(ordered[j].Metadata.Name)
		if a != b {
			return a < b
		}
		return ordered[i].Metadata.ID < ordered[j].Metadata.ID
	})

	return &Catalog{entries: entries, ordered: ordered, scanned: scanned}
}

func emptyCatalog() *Catalog {
	return newCatalog(map[string]Entry{}, time.Time{})
}

// All returns every report ordered by name, ignoring case.
func (c *Catalog) All() []*types.ReportMetadata {
	out := make([]*types.ReportMetadata, 0, len(c.ordered))
	for _, e := range c.ordered {
		out = append(out, e.Metadata)
	}
	return out
}

// Filter returns the reports matching category and tag, ordered like All.
// An empty argument matches everything. Matching is exact.
func (c *Catalog) Filter(category, tag string) []*types.ReportMetadata {
	out := make([]*types.ReportMetadata, 0)
	for _, e := range c.ordered {
		if matches(e.Metadata, category, tag) {
			out = append(out, e.Metadata)
		}
	}
	return out
}

// Get returns the report with the given id.
func (c *Catalog) Get(id string) (*types.ReportMetadata, bool) {
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.Metadata, true
}

// Entry returns the catalog record of id including its source.
func (c *Catalog) Entry(id string) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Exists reports whether id is in the catalog.
func (c *Catalog) Exists(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// Categories returns the distinct non-blank categories, sorted.
func (c *Catalog) Categories() []string {
	set := make(map[string]struct{})
	for _, e := range c.ordered {
		if strings.TrimSpace(e.Metadata.Category) != "" {
			set[e.Metadata.Category] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Tags returns the distinct non-blank tags, sorted.
func (c *Catalog) Tags() []string {
	set := make(map[string]struct{})
	for _, e := range c.ordered {
		for _, tag := range e.Metadata.Tags {
			if strings.TrimSpace(tag) != "" {
				set[tag] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

// Count returns the number of reports.
func (c *Catalog) Count() int {
	return len(c.entries)
}

// CountBySource returns the number of reports found in source.
func (c *Catalog) CountBySource(source types.ReportSource) int {
	n := 0
	for _, e := range c.ordered {
		if e.Source == source {
			n++
		}
	}
	return n
}

// LastScan returns when the snapshot was published. It is zero before the
// first scan.
func (c *Catalog) LastScan() time.Time {
	return c.scanned
}

// Infos returns the listing view of the reports matching category and tag,
// ordered like All.
func (c *Catalog) Infos(category, tag string) []types.ReportInfo {
	out := make([]types.ReportInfo, 0, len(c.ordered))
	for _, e := range c.ordered {
		if !matches(e.Metadata, category, tag) {
			continue
		}
		out = append(out, types.ReportInfo{
			ID:          e.Metadata.ID,
			Name:        e.Metadata.Name,
			Description: e.Metadata.Description,
			Category:    e.Metadata.Category,
			Tags:        e.Metadata.Tags,
			Source:      e.Source,
			Thumbnail:   e.Metadata.Files.Thumbnail,
		})
	}
	return out
}

func matches(md *types.ReportMetadata, category, tag string) bool {
	if category != "" && md.Category != category {
		return false
	}
	return tag == "" || contains(md.Tags, tag)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
