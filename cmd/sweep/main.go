// Command sweep deletes refresh records that expired more than the retention
// window ago, then exits. Intended for cron.
package main

import (
	"log"

	"candidash/cmd/internal/app"
)

func main() {
	if err := app.RunSweep(); err != nil {
		log.Fatal(err)
	}
}
