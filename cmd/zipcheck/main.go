// Command zipcheck runs and drives the quote-analysis orchestrator.
//
//	zipcheck serve              HTTP API plus maintenance scheduler
//	zipcheck submit quote.json  analyze one quote in-process
//	zipcheck get <job-id>       show a job, its usage and result
//	zipcheck cancel <job-id>    request cancellation
//	zipcheck migrate            apply store migrations
//	zipcheck sweep              reap stale jobs once
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
