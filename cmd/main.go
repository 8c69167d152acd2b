package main

import (
	cmd "github.com/kerbaras/booklet/cmd/booklet"
)

func main() {
	cmd.Execute()
}
