package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		path             string
		module, external bool
	}{
		{path: "fmt", module: false, external: false},
		{path: "encoding/json", module: false, external: false},
		{path: "crossgeno/pkg/domain", module: true, external: false},
		{path: "github.com/google/uuid", module: false, external: true},
		{path: "modernc.org/sqlite", module: false, external: true},
	}
	for _, tc := range cases {
		if got := ModuleImport(tc.path); got != tc.module {
			t.Fatalf("ModuleImport(%s) = %v", tc.path, got)
		}
		if got := ThirdPartyImport(tc.path); got != tc.external {
			t.Fatalf("ThirdPartyImport(%s) = %v", tc.path, got)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.go":      "package x\n\nimport (\n\t\"fmt\"\n\t\"github.com/google/uuid\"\n)\n",
		"b.go":      "package x\n\nimport \"crossgeno/internal/docstore\"\n",
		"c_test.go": "package x\n\nimport \"github.com/google/go-cmp/cmp\"\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	viols, err := directImportViolations(dir, func(p string) bool { return ThirdPartyImport(p) || ModuleImport(p) })
	if err != nil {
		t.Fatalf("directImportViolations: %v", err)
	}
	want := []string{"crossgeno/internal/docstore (in b.go)", "github.com/google/uuid (in a.go)"}
	if len(viols) != len(want) || viols[0] != want[0] || viols[1] != want[1] {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, func(p string) bool { return p == "os" }, "no os")
}
