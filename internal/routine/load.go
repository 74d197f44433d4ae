package routine

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/qulab/autocal/internal/ctxlog"
	"github.com/qulab/autocal/internal/schema"
)

// Bundle is the merged content of all loaded routine documents: the global
// defaults blocks and every declared routine.
type Bundle struct {
	Defaults []*schema.DefaultsBlock
	Routines []*schema.Routine
}

// LoadFiles parses and decodes routine documents from the given paths and
// merges them into a single bundle.
func LoadFiles(ctx context.Context, paths ...string) (*Bundle, error) {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()
	bundle := &Bundle{}

	for _, path := range paths {
		logger.Debug("Decoding routine document.", "path", path)
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse routine document %s: %s", path, diags.Error())
		}

		var doc schema.Document
		diags = gohcl.DecodeBody(file.Body, nil, &doc)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode routine document %s: %s", path, diags.Error())
		}

		bundle.Defaults = append(bundle.Defaults, doc.Defaults...)
		bundle.Routines = append(bundle.Routines, doc.Routines...)
		logger.Debug("Routine document decoded.", "path", path,
			"routines_found", len(doc.Routines), "defaults_blocks", len(doc.Defaults))
	}

	if err := bundle.checkUniqueNames(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Routine finds a declared routine by name.
func (b *Bundle) Routine(name string) (*schema.Routine, bool) {
	for _, rt := range b.Routines {
		if rt.Name == name {
			return rt, true
		}
	}
	return nil, false
}

// RoutineNames returns the declared routine names, sorted.
func (b *Bundle) RoutineNames() []string {
	names := make([]string, 0, len(b.Routines))
	for _, rt := range b.Routines {
		names = append(names, rt.Name)
	}
	sort.Strings(names)
	return names
}

func (b *Bundle) checkUniqueNames() error {
	seen := make(map[string]struct{})
	for _, rt := range b.Routines {
		if _, dup := seen[rt.Name]; dup {
			return fmt.Errorf("routine %q is declared more than once", rt.Name)
		}
		seen[rt.Name] = struct{}{}
	}
	return nil
}
