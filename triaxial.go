package main

import (
	"github.com/triaxial/triaxial/cmd"
)

func main() {
	cmd.Execute()
}
