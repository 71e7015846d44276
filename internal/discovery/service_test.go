package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/logging"
	"github.com/conneroisu/reports/internal/metadata"
	"github.com/conneroisu/reports/internal/metrics"
	"github.com/conneroisu/reports/internal/types"
)

func metadataJSON(id, name, category string, tags ...string) string {
	quoted := make([]string, 0, len(tags))
	for _, t := range tags {
		quoted = append(quoted, fmt.Sprintf("%q", t))
	}
	return fmt.Sprintf(`{"report": {"id": %q, "name": %q, "category": %q, "tags": [%s],
		"files": {"template": %q}}}`, id, name, category, strings.Join(quoted, ", "), id+".rpt")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// externalTree lays out custom/ and templates/ under a temp root.
func externalTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "custom", "sales.rpt"), "name: Sales\n")
	writeFile(t, filepath.Join(root, "custom", "sales.json"),
		metadataJSON("sales", "Sales (custom)", "finance", "monthly"))

	writeFile(t, filepath.Join(root, "templates", "inventory.rpt"), "name: inventory status\n")
	writeFile(t, filepath.Join(root, "templates", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "templates", "broken.rpt"), "name: [unterminated")
	writeFile(t, filepath.Join(root, "templates", "nested", "deep.rpt"), "name: Deep\n")

	return root
}

func bundle() fstest.MapFS {
	return fstest.MapFS{
		IndexFile: {Data: []byte(`{"reports": [{"id": "sales"}, {"id": "audit"}, {"id": "missing"}]}`)},
		"sales.json": {Data: []byte(metadataJSON("sales", "Sales (embedded)", "finance"))},
		"audit.json": {Data: []byte(metadataJSON("audit", "Audit", "compliance", "quarterly", "monthly", " "))},
	}
}

func newService(opts Options) *Service {
	return New(opts, metadata.NewLoader(logging.NewNop()), logging.NewNop(), metrics.New())
}

func TestScanMergesWithExternalPriority(t *testing.T) {
	root := externalTree(t)
	s := newService(Options{
		ExternalEnabled: true,
		ExternalPath:    root,
		EmbeddedEnabled: true,
		Embedded:        bundle(),
	})

	require.NoError(t, s.Scan(context.Background()))
	c := s.Catalog()

	assert.Equal(t, 3, c.Count())
	assert.False(t, c.Exists("deep"), "external scan does not recurse")
	assert.False(t, c.Exists("broken"))
	assert.False(t, c.Exists("missing"))

	sales, ok := c.Entry("sales")
	require.True(t, ok)
	assert.Equal(t, "Sales (custom)", sales.Metadata.Name)
	assert.Equal(t, types.SourceExternal, sales.Source)
	assert.Equal(t, filepath.Join(root, "custom", "sales.rpt"), sales.Path)

	audit, ok := c.Entry("audit")
	require.True(t, ok)
	assert.Equal(t, types.SourceEmbedded, audit.Source)
	assert.Equal(t, "audit.rpt", audit.Path)

	inventory, err := s.Get("inventory")
	require.NoError(t, err)
	assert.Equal(t, "inventory status", inventory.Name)
	assert.Equal(t, metadata.DerivedDescription, inventory.Description)
}

func TestScanSourcesDisabled(t *testing.T) {
	root := externalTree(t)

	s := newService(Options{ExternalEnabled: false, ExternalPath: root, EmbeddedEnabled: true, Embedded: bundle()})
	require.NoError(t, s.Scan(context.Background()))
	md, err := s.Get("sales")
	require.NoError(t, err)
	assert.Equal(t, "Sales (embedded)", md.Name)
	assert.False(t, s.Catalog().Exists("inventory"))

	s = newService(Options{ExternalEnabled: true, ExternalPath: root, EmbeddedEnabled: false, Embedded: bundle()})
	require.NoError(t, s.Scan(context.Background()))
	assert.False(t, s.Catalog().Exists("audit"))
	assert.Equal(t, 2, s.Catalog().Count())
}

func TestScanMissingSources(t *testing.T) {
	s := newService(Options{
		ExternalEnabled: true,
		ExternalPath:    filepath.Join(t.TempDir(), "absent"),
		EmbeddedEnabled: true,
		Embedded:        fstest.MapFS{},
	})

	require.NoError(t, s.Scan(context.Background()))
	assert.Equal(t, 0, s.Catalog().Count())
	assert.False(t, s.Catalog().LastScan().IsZero())
}

func TestGetUnknownReport(t *testing.T) {
	s := newService(Options{})

	_, err := s.Get("nope")
	require.Error(t, err)
	assert.True(t, reporterrors.IsNotFound(err))
	assert.True(t, s.Catalog().LastScan().IsZero())
}

func TestScanReplacesCatalogAtomically(t *testing.T) {
	root := externalTree(t)
	s := newService(Options{ExternalEnabled: true, ExternalPath: root})
	require.NoError(t, s.Scan(context.Background()))

	before := s.Catalog()
	require.NoError(t, os.Remove(filepath.Join(root, "templates", "inventory.rpt")))
	writeFile(t, filepath.Join(root, "templates", "payroll.rpt"), "name: Payroll\n")

	require.NoError(t, s.Scan(context.Background()))
	after := s.Catalog()

	assert.True(t, before.Exists("inventory"), "published snapshots never change")
	assert.False(t, before.Exists("payroll"))
	assert.False(t, after.Exists("inventory"))
	assert.True(t, after.Exists("payroll"))
}

func TestRemovedOverrideFallsBackToEmbedded(t *testing.T) {
	root := externalTree(t)
	s := newService(Options{
		ExternalEnabled: true,
		ExternalPath:    root,
		EmbeddedEnabled: true,
		Embedded:        bundle(),
	})

	require.NoError(t, s.Scan(context.Background()))
	sales, ok := s.Catalog().Entry("sales")
	require.True(t, ok)
	require.Equal(t, types.SourceExternal, sales.Source)

	require.NoError(t, os.Remove(filepath.Join(root, "custom", "sales.rpt")))
	require.NoError(t, s.Scan(context.Background()))

	sales, ok = s.Catalog().Entry("sales")
	require.True(t, ok, "the embedded report is exposed again")
	assert.Equal(t, types.SourceEmbedded, sales.Source)
	assert.Equal(t, "sales.rpt", sales.Path)
	assert.Equal(t, "Sales (embedded)", sales.Metadata.Name)

	md, err := s.Get("sales")
	require.NoError(t, err)
	assert.Equal(t, "Sales (embedded)", md.Name)
	assert.Equal(t, 1, s.Catalog().CountBySource(types.SourceExternal))
	assert.Equal(t, 2, s.Catalog().CountBySource(types.SourceEmbedded))
}

func TestConcurrentReadersDuringScan(t *testing.T) {
	root := externalTree(t)
	s := newService(Options{ExternalEnabled: true, ExternalPath: root, EmbeddedEnabled: true, Embedded: bundle()})
	require.NoError(t, s.Scan(context.Background()))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				c := s.Catalog()
				if c.Count() != len(c.All()) || c.Count() != 3 {
					t.Errorf("inconsistent snapshot: count=%d all=%d", c.Count(), len(c.All()))
					return
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Scan(context.Background()))
	}
	close(stop)
	wg.Wait()
}

func TestScanCancelledKeepsPreviousCatalog(t *testing.T) {
	root := externalTree(t)
	s := newService(Options{ExternalEnabled: true, ExternalPath: root})
	require.NoError(t, s.Scan(context.Background()))
	before := s.Catalog()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Scan(ctx), context.Canceled)
	assert.Same(t, before, s.Catalog())
}

func TestScanMetrics(t *testing.T) {
	m := metrics.New()
	s := New(Options{ExternalEnabled: true, ExternalPath: externalTree(t), EmbeddedEnabled: true, Embedded: bundle()},
		nil, logging.NewNop(), m)

	require.NoError(t, s.Scan(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues(TriggerManual)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CatalogSize.WithLabelValues("external")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogSize.WithLabelValues("embedded")))
}

func TestTickSkipConditions(t *testing.T) {
	root := externalTree(t)

	testCases := []struct {
		name     string
		opts     Options
		expected bool
	}{
		{"enabled", Options{ExternalEnabled: true, ExternalPath: root, ScanInterval: time.Minute}, true},
		{"external disabled", Options{ExternalEnabled: false, ExternalPath: root, ScanInterval: time.Minute}, false},
		{"zero interval", Options{ExternalEnabled: true, ExternalPath: root}, false},
		{"negative interval", Options{ExternalEnabled: true, ExternalPath: root, ScanInterval: -time.Second}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newService(tc.opts)
			assert.Equal(t, tc.expected, s.tick(context.Background()))
			assert.Equal(t, tc.expected, !s.Catalog().LastScan().IsZero())
		})
	}
}

func TestStartSchedulesRescans(t *testing.T) {
	root := externalTree(t)
	s := newService(Options{ExternalEnabled: true, ExternalPath: root, ScanInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	defer s.Stop()
	assert.Equal(t, 2, s.Catalog().Count())

	writeFile(t, filepath.Join(root, "custom", "payroll.rpt"), "name: Payroll\n")

	assert.Eventually(t, func() bool {
		return s.Catalog().Exists("payroll")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStartWatchesExternalDirectories(t *testing.T) {
	root := externalTree(t)
	s := newService(Options{ExternalEnabled: true, ExternalPath: root, Watch: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	writeFile(t, filepath.Join(root, "templates", "payroll.rpt"), "name: Payroll\n")

	assert.Eventually(t, func() bool {
		return s.Catalog().Exists("payroll")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	s := newService(Options{})
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
