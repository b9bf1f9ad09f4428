package types_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"
)

// Every exported Msg payload is part of the wire API and must carry a doc comment.
func TestMsgPayloadsAreDocumented(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "msg.go", nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse msg.go: %v", err)
	}
	var seen int
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			if !strings.HasPrefix(ts.Name.Name, "Msg") || !ts.Name.IsExported() {
				continue
			}
			seen++
			doc := ts.Doc
			if doc == nil && len(gen.Specs) == 1 {
				doc = gen.Doc
			}
			if doc == nil || !strings.HasPrefix(doc.Text(), ts.Name.Name+" ") {
				t.Errorf("%s has no doc comment starting with its name", ts.Name.Name)
			}
		}
	}
	if seen < 15 {
		t.Fatalf("found %d Msg types, want at least 15", seen)
	}
}
