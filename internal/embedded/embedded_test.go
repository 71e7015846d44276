package embedded

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/reports/internal/discovery"
	"github.com/conneroisu/reports/internal/engine"
	"github.com/conneroisu/reports/internal/logging"
	"github.com/conneroisu/reports/internal/metadata"
)

func TestBundleTemplatesCompile(t *testing.T) {
	bundle := Bundle()

	var templates []string
	require.NoError(t, fs.WalkDir(bundle, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !engine.IsTemplateFile(path) {
			return err
		}
		templates = append(templates, path)

		data, err := fs.ReadFile(bundle, path)
		require.NoError(t, err)
		_, err = engine.Compile(data)
		assert.NoError(t, err, path)
		return nil
	}))
	assert.Len(t, templates, 3)
}

func TestBundleIsDiscoverable(t *testing.T) {
	s := discovery.New(discovery.Options{EmbeddedEnabled: true, Embedded: Bundle()},
		metadata.NewLoader(logging.NewNop()), logging.NewNop(), nil)
	require.NoError(t, s.Scan(context.Background()))

	c := s.Catalog()
	assert.Equal(t, 2, c.Count())
	for _, id := range []string{"report-catalog", "contractor-activity"} {
		md, ok := c.Get(id)
		require.True(t, ok, id)
		_, err := fs.Stat(Bundle(), md.Files.Template)
		assert.NoError(t, err, "template of %s", id)
	}
}

func TestOpen(t *testing.T) {
	require.NoError(t, fstest.TestFS(Open("builtin"), "metadata.json", "report-catalog.rpt"))

	dir := t.TempDir()
	_, err := fs.Stat(Open(dir), ".")
	assert.NoError(t, err)
}
