// Package obfuscation renames the identifiers of a Python project
// consistently across all of its files.
//
// The pipeline has three steps. [IndexProject] walks every parsed file once
// and builds a [ProjectIndex] of the names the project declares, the names
// it imports from outside, its classes and their attributes.
// [BuildRenameMap] turns the index into a deterministic [RenameMap] that
// assigns each renameable name the next free short alphabetic name.
// [Rewrite] applies the map to one file, renaming attributes, call keywords
// and getattr-style string literals only where the object they belong to
// is not known to come from outside the project.
//
// [Engine] drives the three steps over a directory:
//
//	e := obfuscation.NewEngine(obfuscation.WithParallel(4))
//	sum, err := e.Transform(ctx, root, paths)
//
// Files are rewritten concurrently but written in path order, so the output
// does not depend on the number of workers.
package obfuscation
