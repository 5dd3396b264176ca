package mysql

import (
	"go/ast"
	"go/doc"
	"go/parser"
	"go/token"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportedTypesAreDocumented(t *testing.T) {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", func(info fs.FileInfo) bool {
		return !strings.HasSuffix(info.Name(), "_test.go")
	}, parser.ParseComments)
	require.NoError(t, err)
	pkg, ok := pkgs["mysql"]
	require.True(t, ok, "package mysql not found")

	files := make([]*ast.File, 0, len(pkg.Files))
	for _, f := range pkg.Files {
		files = append(files, f)
	}
	docs, err := doc.NewFromFiles(fset, files, "github.com/RLASH18/abg-prime-v2/internal/repositories/mysql")
	require.NoError(t, err)

	require.NotEmpty(t, docs.Types)
	for _, typ := range docs.Types {
		if !ast.IsExported(typ.Name) {
			continue
		}
		assert.True(t, strings.HasPrefix(typ.Doc, typ.Name+" "), "type %s needs a doc comment starting with its name", typ.Name)
		for _, fn := range typ.Funcs {
			assert.NotEmpty(t, fn.Doc, "constructor %s needs a doc comment", fn.Name)
		}
	}
}
