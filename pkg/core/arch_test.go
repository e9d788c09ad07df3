package core_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// coreImports returns every import path used by non-test files in pkg/core.
func coreImports(t *testing.T) map[string][]string {
	t.Helper()

	fset := token.NewFileSet()
	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("Failed to read core directory: %v", err)
	}

	imports := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}
		if strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		path := filepath.Join(".", entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			continue
		}

		for _, imp := range f.Imports {
			imports[entry.Name()] = append(imports[entry.Name()], strings.Trim(imp.Path.Value, `"`))
		}
	}
	return imports
}

// TestCoreImportsOnlyStdlib verifies pkg/core only imports the standard library.
func TestCoreImportsOnlyStdlib(t *testing.T) {
	for file, paths := range coreImports(t) {
		for _, importPath := range paths {
			// Stdlib paths have no dot in the first element
			first := strings.SplitN(importPath, "/", 2)[0]
			if strings.Contains(first, ".") {
				t.Errorf("%s imports forbidden package: %s", file, importPath)
			}
		}
	}
}

// TestCoreDoesNotImportInternal verifies pkg/core doesn't import any internal packages.
func TestCoreDoesNotImportInternal(t *testing.T) {
	for file, paths := range coreImports(t) {
		for _, importPath := range paths {
			if strings.Contains(importPath, "/internal/") {
				t.Errorf("%s imports internal package: %s (core must not import internal packages)", file, importPath)
			}
		}
	}
}
