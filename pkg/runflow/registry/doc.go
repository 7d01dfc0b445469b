// Package registry provides a generic thread-safe table of named values.
//
// runflow keeps three registries: node functions (resolved by the
// dispatcher from a node's fn field), tools (called by node functions) and
// parsed edge conditions (cached by the expression evaluator).
//
//	funcs := registry.New[string, runflow.Function]()
//	if err := funcs.Add("node_extract", runflow.Inline(extract)); err != nil {
//	    log.Fatal(err)
//	}
//	fn, ok := funcs.Get("node_extract")
//
// Use GetOrCreate for lazily built values:
//
//	prog := cache.GetOrCreate(src, func() *Program { return mustCompile(src) })
//
// All methods are safe for concurrent use. Keys and Range return entries in
// ascending key order.
package registry
