package main

import (
	"os"

	"pix-settlement-go/internal/common"
)

func main() {
	os.Exit(common.RunSweepCommand(common.SweepReprocessWebhooks))
}
