// Command svhctl logs an operator into the edge and runs the admin session
// commands with the stored token.
package main

import "github.com/sentinelhive/svh/cmd/svhctl/cmd"

func main() {
	cmd.Execute()
}
