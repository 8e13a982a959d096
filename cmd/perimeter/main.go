// perimeter is a boundary policy engine for AI agents: it evaluates
// classified content at the input, action, and output boundaries and
// decides whether it passes, is blocked, redacted, or held for approval.
package main

import "github.com/mvoronin/perimeter/internal/cli"

func main() {
	cli.Execute()
}
