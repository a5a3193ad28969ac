// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/flashfs/cmd/flashfs/cmd"
)

func main() {
	cmd.Execute()
}
