package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/reports/internal/types"
)

func entry(id, name, category string, source types.ReportSource, tags ...string) Entry {
	md := types.Minimal(id, name, "", id+".rpt")
	md.Category = category
	md.Tags = tags
	return Entry{Metadata: md, Source: source, Path: id + ".rpt"}
}

func testCatalog() *Catalog {
	return newCatalog(map[string]Entry{
		"b": entry("b", "beta", "finance", types.SourceExternal, "monthly", "Finance"),
		"a": entry("a", "Alpha", "finance", types.SourceEmbedded, "monthly"),
		"c": entry("c", "Gamma", "hr", types.SourceEmbedded),
		"d": entry("d", "ALPHA", "", types.SourceExternal, " ", "audit"),
	}, time.Date(2025, time.November, 21, 0, 0, 0, 0, time.UTC))
}

func ids(mds []*types.ReportMetadata) []string {
	out := make([]string, 0, len(mds))
	for _, md := range mds {
		out = append(out, md.ID)
	}
	return out
}

func TestCatalogOrdering(t *testing.T) {
	assert.Equal(t, []string{"a", "d", "b", "c"}, ids(testCatalog().All()))
}

func TestCatalogFilter(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, []string{"a", "b"}, ids(c.Filter("finance", "")))
	assert.Equal(t, []string{"a", "b"}, ids(c.Filter("", "monthly")))
	assert.Equal(t, []string{"b"}, ids(c.Filter("finance", "Finance")))
	assert.Empty(t, ids(c.Filter("Finance", "")), "category match is case-sensitive")
	assert.Empty(t, ids(c.Filter("hr", "monthly")))
	assert.Len(t, c.Filter("", ""), 4)
}

func TestCatalogDistinctValues(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, []string{"finance", "hr"}, c.Categories())
	assert.Equal(t, []string{"Finance", "audit", "monthly"}, c.Tags())
}

func TestCatalogLookups(t *testing.T) {
	c := testCatalog()

	md, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "Gamma", md.Name)

	_, ok = c.Get("z")
	assert.False(t, ok)
	assert.True(t, c.Exists("a"))
	assert.False(t, c.Exists("z"))
	assert.Equal(t, 4, c.Count())
	assert.Equal(t, 2, c.CountBySource(types.SourceExternal))
	assert.Equal(t, 2025, c.LastScan().Year())
}

func TestCatalogInfos(t *testing.T) {
	infos := testCatalog().Infos("finance", "")
	require.Len(t, infos, 2)

	assert.Equal(t, types.ReportInfo{
		ID:       "a",
		Name:     "Alpha",
		Category: "finance",
		Tags:     []string{"monthly"},
		Source:   types.SourceEmbedded,
	}, infos[0])
	assert.Equal(t, types.SourceExternal, infos[1].Source)
}

func TestEmptyCatalog(t *testing.T) {
	c := emptyCatalog()

	assert.Empty(t, c.All())
	assert.Empty(t, c.Categories())
	assert.Empty(t, c.Tags())
	assert.Empty(t, c.Infos("", ""))
	assert.True(t, c.LastScan().IsZero())
}
