package main

import "github.com/rand/fractal/internal/cmd"

func main() {
	cmd.Execute()
}
