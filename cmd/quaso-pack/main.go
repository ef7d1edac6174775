package main

import "github.com/oshokin/quaso-pack/cmd/quaso-pack/cmd"

func main() {
	cmd.Execute()
}
