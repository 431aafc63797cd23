package main

import "github.com/josephlewis42/pipeshell/cmd"

func main() {
	cmd.Execute()
}
