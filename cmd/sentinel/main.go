// sentinel — self-protection subsystem for a long-running kernel
// process: hash-chained audit log, integrity-protected state, guardian
// monitoring and automated response.
package main

import "github.com/hannesmitterer/sentinel/internal/cli"

func main() {
	cli.Execute()
}
