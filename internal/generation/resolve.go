package generation

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/conneroisu/reports/internal/discovery"
	"github.com/conneroisu/reports/internal/engine"
	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/types"
)

// EmbeddedCacheDir is the directory under the temp directory that embedded
// templates are copied into.
const EmbeddedCacheDir = "embedded-templates"

// resolveTemplate finds the file to compile for md. External files win over
// embedded ones; within each source the named template is checked before its
// precompiled sibling, except that an embedded precompiled artifact is
// preferred over the embedded source.
func (s *Service) resolveTemplate(ctx context.Context, md *types.ReportMetadata) (string, error) {
	name := md.Files.Template
	if name == "" {
		return "", reporterrors.NewNotFoundError(reporterrors.CodeTemplateNotFound, "report has no template").WithReport(md.ID)
	}

	compiledName := engine.BaseName(name) + engine.CompiledExt

	if s.opts.ExternalPath != "" && filepath.IsLocal(filepath.FromSlash(name)) {
		dirs := append([]string{""}, discovery.ExternalDirs...)
		for _, dir := range dirs {
			base := filepath.Join(s.opts.ExternalPath, dir)
			for _, candidate := range []string{
				filepath.Join(base, filepath.FromSlash(name)),
				filepath.Join(base, compiledName),
			} {
				if isFile(candidate) {
					s.logger.Debug(ctx, "resolved external template", "report", md.ID, "path", candidate)
					return candidate, nil
				}
			}
		}
	}

	if s.opts.Embedded != nil {
		clean := path.Clean(name)
		for _, candidate := range []string{
			path.Join(path.Dir(clean), compiledName),
			clean,
		} {
			if !fs.ValidPath(candidate) {
				continue
			}
			local, err := s.copyEmbedded(candidate)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return "", reporterrors.NewGenerationError(reporterrors.CodeTemplateRead,
					"failed to copy embedded template", err).WithReport(md.ID).WithFile(candidate)
			}
			s.logger.Debug(ctx, "resolved embedded template", "report", md.ID, "path", local)
			return local, nil
		}
	}

	return "", reporterrors.NewNotFoundError(reporterrors.CodeTemplateNotFound,
		fmt.Sprintf("template %q not found", name)).WithReport(md.ID)
}

// copyEmbedded copies name from the bundle into the local cache and returns
// the local path. The copy is skipped when the cached file has the same
// checksum.
func (s *Service) copyEmbedded(name string) (string, error) {
	data, err := fs.ReadFile(s.opts.Embedded, name)
	if err != nil {
		return "", err
	}

	local := filepath.Join(s.cacheDir, filepath.FromSlash(name))

	s.copyMu.Lock()
	defer s.copyMu.Unlock()

	if existing, err := os.ReadFile(local); err == nil &&
		len(existing) == len(data) && crc32.ChecksumIEEE(existing) == crc32.ChecksumIEEE(data) {
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", err
	}

	tmp := local + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, local); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	return local, nil
}

// preload copies every embedded template into the local cache so subreports
// referenced by relative name resolve on disk.
func (s *Service) preload(ctx context.Context) int {
	if s.opts.Embedded == nil {
		return 0
	}

	copied := 0
	err := fs.WalkDir(s.opts.Embedded, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !engine.IsTemplateFile(p) {
			return nil
		}
		if _, err := s.copyEmbedded(p); err != nil {
			s.logger.Warn(ctx, err, "failed to preload embedded template", "path", p)
			return nil
		}
		copied++
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, err, "failed to walk embedded templates")
	}

	s.logger.Info(ctx, "preloaded embedded templates", "count", copied, "dir", s.cacheDir)

	return copied
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
