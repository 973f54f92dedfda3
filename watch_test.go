package main

import "testing"

func TestStartWatchScheduler(t *testing.T) {
	noop := func() error { return nil }

	if StartWatchScheduler(Config{BacklogPath: "backlog.csv"}, noop) {
		t.Fatalf("empty schedule must not start the scheduler")
	}
	if StartWatchScheduler(Config{WatchSchedule: "0 9 * * *"}, noop) {
		t.Fatalf("missing backlog path must not start the scheduler")
	}
	if StartWatchScheduler(Config{WatchSchedule: "not a cron expr", BacklogPath: "backlog.csv"}, noop) {
		t.Fatalf("invalid expression must not start the scheduler")
	}
	if !StartWatchScheduler(Config{WatchSchedule: "0 9 * * 1-5", BacklogPath: "backlog.csv"}, noop) {
		t.Fatalf("valid schedule should start the scheduler")
	}
}
