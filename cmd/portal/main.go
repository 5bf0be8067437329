package main

import "github.com/MarioNunes35/Portal-de-aplicativos/cmd/portal/cmd"

func main() {
	cmd.Execute()
}
