// Command pulsec compiles pulse programs for clocked pulse generators.
package main

import "github.com/sarchlab/pulsec/pulsec/cmd"

func main() {
	cmd.Execute()
}
