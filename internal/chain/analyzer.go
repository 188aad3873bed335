package chain

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
)

// EntrySymbol is the exported function name every NF module must
// expose as its packet entry point.
const EntrySymbol = "Packet"

// Analyze locates an NF's module root under dir, parses it, and extracts
// its packet-entry signature: the second (map) parameter's named type,
// if any, and its return type's resolved variant set.
//
// dir is expected to contain a single-package Go source tree.
func Analyze(nfName, dir string) (FnAnalysis, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return FnAnalysis{}, &ParseError{Stage: ParseModuleRead, NF: nfName, Detail: err}
	}

	fset := token.NewFileSet()
	files, err := parseDir(fset, dir)
	if err != nil {
		return FnAnalysis{}, &ParseError{Stage: ParseModuleParse, NF: nfName, Detail: err}
	}

	entry, entryFile := findEntry(files)
	if entry == nil {
		return FnAnalysis{}, &ParseError{Stage: ParseMissingEntry, NF: nfName}
	}

	mapTypeName := mapParamTypeName(entry)
	mapFields := resolveMapFields(mapTypeName, files)

	retType, retErr := resolveReturnType(entry, entryFile, files)
	if retErr != nil {
		retErr.NF = nfName
		return FnAnalysis{}, retErr
	}

	return FnAnalysis{ReturnType: retType, MapTypeName: mapTypeName, MapFields: mapFields}, nil
}

func parseDir(fset *token.FileSet, dir string) (map[string]*ast.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]*ast.File)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".go" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil, err
		}
		files[path] = f
	}
	return files, nil
}

// findEntry scans every file in the module root for a top-level func
// named EntrySymbol, returning both the declaration and the file it
// was found in; return-type enum resolution is scoped to that file.
func findEntry(files map[string]*ast.File) (*ast.FuncDecl, *ast.File) {
	for _, f := range files {
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || fn.Name.Name != EntrySymbol {
				continue
			}
			return fn, f
		}
	}
	return nil, nil
}

// mapParamTypeName returns the named type of the entry function's second
// parameter (the "maps" argument), stripping a leading pointer, or "" if
// the function takes no second parameter.
func mapParamTypeName(fn *ast.FuncDecl) string {
	if fn.Type.Params == nil {
		return ""
	}
	var flat []ast.Expr
	for _, field := range fn.Type.Params.List {
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			flat = append(flat, field.Type)
		}
	}
	if len(flat) < 2 {
		return ""
	}
	return identName(flat[1])
}

// resolveMapFields locates mapTypeName's struct declaration across every
// parsed file and extracts the name and key/value type arguments of each
// nf.Map[K, V]-typed field, in declaration order. A struct that can't be found, or
// that declares no nf.Map fields, yields a nil slice rather than an
// error: the userspace wrapper is simply omitted for those fields.
func resolveMapFields(mapTypeName string, files map[string]*ast.File) []MapField {
	if mapTypeName == "" {
		return nil
	}
	for _, f := range files {
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || ts.Name.Name != mapTypeName {
					continue
				}
				st, ok := ts.Type.(*ast.StructType)
				if !ok || st.Fields == nil {
					return nil
				}
				return structMapFields(st)
			}
		}
	}
	return nil
}

func structMapFields(st *ast.StructType) []MapField {
	var fields []MapField
	for _, field := range st.Fields.List {
		key, value, ok := mapFieldKV(field.Type)
		if !ok {
			continue
		}
		for _, name := range field.Names {
			fields = append(fields, MapField{Name: name.Name, KeyType: key, ValueType: value})
		}
	}
	return fields
}

// mapFieldKV recognizes a field type shaped like nf.Map[K, V] — a
// two-type-argument generic instantiation of a type named "Map" — and
// returns its key/value type expressions rendered as source text.
func mapFieldKV(expr ast.Expr) (key, value string, ok bool) {
	idx, ok := expr.(*ast.IndexListExpr)
	if !ok || len(idx.Indices) != 2 || identName(idx.X) != "Map" {
		return "", "", false
	}
	return types.ExprString(idx.Indices[0]), types.ExprString(idx.Indices[1]), true
}

func identName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return identName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return t.Sel.Name
	default:
		return ""
	}
}

// resolveReturnType extracts the NF's return arity: no return
// value is Empty; a single named-identifier return type must be backed
// by a type declaration in entryFile with associated constant variants,
// collected in declaration order.
func resolveReturnType(fn *ast.FuncDecl, entryFile *ast.File, files map[string]*ast.File) (NfReturnType, *ParseError) {
	results := fn.Type.Results
	if results == nil || len(results.List) == 0 {
		return NfReturnType{Empty: true}, nil
	}

	retExpr := results.List[0].Type
	name := identName(retExpr)
	if name == "" {
		return NfReturnType{}, &ParseError{Stage: ParseUnresolvableReturnType}
	}

	if !typeDeclaredIn(entryFile, name) {
		return NfReturnType{}, &ParseError{Stage: ParseMissingReturnEnum, Enum: name}
	}

	variants := collectVariants(entryFile, name)
	if len(variants) == 0 {
		return NfReturnType{}, &ParseError{Stage: ParseMissingReturnEnum, Enum: name}
	}

	return NfReturnType{EnumName: name, Variants: variants}, nil
}

func typeDeclaredIn(f *ast.File, name string) bool {
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if ok && ts.Name.Name == name {
				return true
			}
		}
	}
	return false
}

// collectVariants walks every const block in f, in source order, and
// collects identifier names whose declared or inherited (iota-style)
// type is name.
func collectVariants(f *ast.File, name string) []string {
	var variants []string
	lastType := ""
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.CONST {
			continue
		}
		lastType = ""
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			if vs.Type != nil {
				lastType = identName(vs.Type)
			}
			if lastType != name {
				continue
			}
			for _, id := range vs.Names {
				if id.Name != "_" {
					variants = append(variants, id.Name)
				}
			}
		}
	}
	return variants
}
