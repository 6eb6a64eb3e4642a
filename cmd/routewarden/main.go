package main

import "github.com/routewarden/routewarden/cmd/routewarden/cmd"

func main() {
	cmd.Execute()
}
