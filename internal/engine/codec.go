package engine

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	reporterrors "github.com/conneroisu/reports/internal/errors"
)

const envelopeMagic = "RPTC"

// ArtifactVersion is the version of the precompiled template format.
// Artifacts of another version are rejected and recompiled.
const ArtifactVersion = 1

type envelope struct {
	Magic      string     `msgpack:"magic"`
	Version    int        `msgpack:"version"`
	Definition Definition `msgpack:"definition"`
}

// Encode serializes a compiled template into the precompiled format.
func Encode(t *Template) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)

	if err := enc.Encode(&envelope{Magic: envelopeMagic, Version: ArtifactVersion, Definition: t.def}); err != nil {
		return nil, fmt.Errorf("failed to encode template %s: %w", quoteName(t.def.Name), err)
	}

	return buf.Bytes(), nil
}

// Decode loads a precompiled template and re-parses its expressions.
func Decode(data []byte) (*Template, error) {
	def, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	return build(def)
}

func decodeEnvelope(data []byte) (*Definition, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, reporterrors.NewCompileError(reporterrors.CodeTemplateSyntax, "invalid precompiled template", err)
	}

	if env.Magic != envelopeMagic {
		return nil, reporterrors.NewCompileError(reporterrors.CodeTemplateSyntax,
			fmt.Sprintf("invalid precompiled template: bad magic %q", env.Magic), nil)
	}

	if env.Version != ArtifactVersion {
		return nil, reporterrors.NewCompileError(reporterrors.CodeTemplateSyntax,
			fmt.Sprintf("unsupported precompiled template version %d", env.Version), nil)
	}

	return &env.Definition, nil
}
