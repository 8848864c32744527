// Command evfsctl is the CLI front end over the evfs package.
package main

import "github.com/nax-project/evfs/cmd"

func main() {
	cmd.Execute()
}
