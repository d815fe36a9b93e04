// Package collapsecheck verifies the output of the collapseTransparent schema
// simplification pass.
//
// The pass merges transparent definitions of a JSON Schema document into
// fewer canonical ones, annotating each survivor with the names it absorbed
// (x-netex-reduced) and the document with the number of survivors that did
// (x-netex-collapsed). The verifier re-derives from the documents alone
// whether that transformation was internally consistent. It never modifies
// its inputs and does not validate general JSON Schema semantics.
//
// # Quick Start
//
//	loader := collapsecheck.NewLoader(nil, collapsecheck.DefaultKeywords(), nil)
//	after, err := loader.Load("schema.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report := collapsecheck.Verify(after, nil)
//	_ = collapsecheck.WriteText(os.Stdout, report, collapsecheck.TextOptions{})
//	if err := report.Err(); err != nil {
//	    os.Exit(1)
//	}
//
// # Checks
//
// Verify runs five independent checks, in order:
//
//  1. Definition count delta. With a before document, the number of
//     definitions must not grow.
//  2. Collapse annotations. Lists every definition carrying the provenance
//     annotation; informational only.
//  3. Broken references. Every `$ref` of the form "#/definitions/<Name>"
//     inside a definition must name an existing definition.
//  4. Orphaned targets. With a before document, no removed name may still be
//     referenced.
//  5. Collapse count. The top-level annotation (0 when absent) must equal the
//     number of annotated definitions.
//
// Only `$ref` strings with the local definitions prefix are references;
// relative files, URLs and other pointers are ignored.
//
// # Subpackages
//
//   - refs: reference collection over decoded JSON values
//   - canonicaljson: RFC 8785 (JCS) encoding for the JSON report
package collapsecheck
