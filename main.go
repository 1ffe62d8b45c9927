package main

import "github.com/josephlewis42/cmdrun/cmd"

func main() {
	cmd.Execute()
}
