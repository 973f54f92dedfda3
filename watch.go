package main

import (
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartWatchScheduler starts a cron-based scheduler that periodically
// re-runs the backlog evaluation. The schedule is a standard 5-field
// cron expression (minute hour day-of-month month day-of-week).
// Examples: "0 9 * * *" (daily 9am), "0 9 * * 1-5" (weekdays 9am).
// Returns false when watching is disabled or the expression is invalid.
func StartWatchScheduler(cfg Config, run func() error) bool {
	schedule := strings.TrimSpace(cfg.WatchSchedule)
	if schedule == "" {
		log.Println("Watch disabled (watch_schedule not set)")
		return false
	}
	if cfg.BacklogPath == "" {
		log.Println("Watch disabled: backlog_path not set")
		return false
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid watch_schedule '%s': %v — watch disabled", schedule, err)
		return false
	}

	log.Printf("Backlog evaluation scheduled (cron: %s) for %s", schedule, cfg.BacklogPath)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next evaluation at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			if runErr := run(); runErr != nil {
				log.Printf("Scheduled evaluation error: %v", runErr)
			} else {
				log.Printf("Scheduled evaluation complete")
			}
		}
	}()
	return true
}
