// Package policies holds the policy scripts compiled into the binary. They
// are referenced as "builtin:<name>".
package policies

import "embed"

// FS contains every embedded policy script.
//
//go:embed *.risor
var FS embed.FS
