// Package hcl loads blueprints from HCL files.
//
// A file holds one or more blueprint blocks. A blueprint is the root group of
// a graph; its node blocks become leaves, or groups when they contain node
// blocks of their own, and its edge blocks connect siblings:
//
//	blueprint "pipeline" {
//	  variables = { threshold = 10 }
//
//	  node "fetch" {
//	    type       = "http_request"
//	    parameters = { url = "https://example.com" }
//	    timeout    = "5s"
//	  }
//	  node "big" {
//	    condition = input.status > variables.threshold
//	  }
//	  edge {
//	    source = "fetch"
//	    target = "big"
//	  }
//	}
//
// A condition attribute is a predicate in the internal/expr grammar. It is
// checked at load time and stored as the expression parameter of a
// condition node.
package hcl
