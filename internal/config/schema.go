package config

import (
	_ "embed"
	"errors"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlscript/internal/sqlerr"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks a YAML document against the configuration schema.
func Validate(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return sqlerr.Wrap(sqlerr.KindConfig, err, "parse YAML")
	}
	if raw == nil {
		return sqlerr.New(sqlerr.KindConfig, "configuration is empty")
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return sqlerr.Wrap(sqlerr.KindConfig, err, "compile schema")
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return sqlerr.Wrap(sqlerr.KindConfig, err, "encode document")
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return sqlerr.Wrap(sqlerr.KindConfig, errors.New(strings.TrimSpace(cueerrors.Details(err, nil))), "schema violation")
	}
	return nil
}
