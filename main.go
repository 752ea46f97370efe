package main

import (
	"runtime/debug"

	"github.com/Kellerman81/go_media_organizer/cmd"
)

func main() {
	debug.SetGCPercent(20)
	cmd.Execute()
}
