package main

import (
	_ "time/tzdata"

	"forestlog/cmd/forestlog/root"
)

func main() {
	root.Execute()
}
