package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
)

// queue-inspect dumps the local database state: the pending-action queue in
// drain order, the dead-letter table, and recent sync runs. Handy when a
// device comes back from the field with stuck actions.
//
// Example:
//
//	go run ./cmd/queue-inspect/ -dead-letters -runs=10
func main() {
	showDeadLetters := flag.Bool("dead-letters", false, "Also print the dead-letter table")
	runLimit := flag.Int("runs", 5, "Recent sync runs to print (0 = skip)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := context.Background()

	if session, err := models.GetSession(ctx); err == nil {
		fmt.Printf("session: technician=%s business=%s last_sync=%s\n",
			session.TechnicianId, session.BusinessId, fmtTimePtr(session.LastSyncAt))
	} else {
		fmt.Println("session: none")
	}

	actions, err := models.PendingActionsFIFO(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query pending actions failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pending=%d\n", len(actions))
	for _, a := range actions {
		fmt.Printf("id=%d action=%s kind=%s work_order=%s base_version=%d retries=%d last_attempt=%s last_error=%s\n",
			a.ID, a.ActionId, a.Kind, a.WorkOrderId, a.BaseVersion, a.RetryCount,
			fmtTimePtr(a.LastAttemptAt), strPtr(a.LastError))
	}

	if *showDeadLetters {
		letters, err := models.ListDeadLetters(ctx, 200)
		if err != nil {
			fmt.Fprintf(os.Stderr, "query dead letters failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("dead_letters=%d\n", len(letters))
		for _, l := range letters {
			fmt.Printf("action=%s kind=%s work_order=%s reason=%s retries=%d error=%q\n",
				l.ActionId, l.Kind, l.WorkOrderId, l.Reason, l.RetryCount, l.LastError)
		}
	}

	if *runLimit > 0 {
		runs, err := models.ListSyncRuns(ctx, *runLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "query sync runs failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("runs=%d\n", len(runs))
		for _, r := range runs {
			fmt.Printf("id=%d status=%s trigger=%s synced=%d failed=%d skipped=%d started=%s duration_ms=%d\n",
				r.ID, r.Status, r.TriggeredBy, r.Synced, r.Failed, r.Skipped,
				fmtTimePtr(r.StartedAt), r.DurationMs)
		}
	}
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
