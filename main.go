package main

import (
	"time"

	"github.com/ifrog800/StravaAddon/cmd"
)

func init() {
	time.Local = time.UTC // Ensure all time operations are in UTC
}

func main() {
	cmd.Execute()
}
