package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/fsutil"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Load reads every blueprint under path, which is either an .hcl file or a
// directory scanned recursively. Blueprint ids must be unique across files.
func Load(ctx context.Context, path string) ([]*Blueprint, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := ResolvePath(ctx, path)
	if err != nil {
		return nil, err
	}

	var out []*Blueprint
	seen := make(map[string]string)
	for _, file := range files {
		bps, err := DecodeFile(ctx, file)
		if err != nil {
			return nil, err
		}
		for _, bp := range bps {
			if prev, dup := seen[bp.ID]; dup {
				return nil, fmt.Errorf("blueprint '%s' is defined in both %s and %s", bp.ID, prev, file)
			}
			seen[bp.ID] = file
			out = append(out, bp)
		}
	}
	logger.Debug("Blueprints loaded.", "path", path, "files", len(files), "blueprints", len(out))
	return out, nil
}

// DecodeFile parses and decodes a single HCL file.
func DecodeFile(ctx context.Context, filePath string) ([]*Blueprint, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read HCL file %s: %w", filePath, err)
	}
	return Parse(ctx, src, filePath)
}

// Parse decodes blueprints from HCL source. filename is used in diagnostics.
func Parse(ctx context.Context, src []byte, filename string) ([]*Blueprint, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding blueprint file.", "path", filename)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, model.NewError(model.CodeInvalidGraph, "", fmt.Sprintf("failed to parse HCL file %s: %s", filename, diags.Error()))
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, model.NewError(model.CodeInvalidGraph, "", fmt.Sprintf("failed to decode HCL file %s: %s", filename, diags.Error()))
	}

	t := &translator{ctx: ctx, src: src, file: filename}
	out := make([]*Blueprint, 0, len(schema.Blueprints))
	for _, b := range schema.Blueprints {
		bp, err := t.blueprint(b)
		if err != nil {
			return nil, invalid(fmt.Errorf("%s: %w", filename, err))
		}
		if err := model.Validate(bp.Root); err != nil {
			return nil, invalid(fmt.Errorf("%s: blueprint '%s': %w", filename, bp.ID, err))
		}
		out = append(out, bp)
	}

	logger.Debug("Successfully decoded blueprint file.", "path", filename, "blueprints_found", len(out))
	return out, nil
}

// invalid reports a blueprint that cannot be loaded. The cause stays
// reachable through errors.As.
func invalid(err error) *model.Error {
	e := model.NewError(model.CodeInvalidGraph, "", err.Error())
	e.Err = err
	return e
}

// ResolvePath returns the .hcl files path refers to. A file must have the
// .hcl extension; a directory is scanned recursively and the result sorted.
func ResolvePath(ctx context.Context, path string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Resolving blueprint path.", "path", path)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blueprint path not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}

	if !info.IsDir() {
		if filepath.Ext(path) != ".hcl" {
			return nil, fmt.Errorf("specified file is not an .hcl file: %s", path)
		}
		return []string{path}, nil
	}

	logger.Debug("Path is a directory, scanning for HCL files.", "directory", path)
	return fsutil.FindFilesByExtension(path, ".hcl")
}
