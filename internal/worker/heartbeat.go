package worker

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"vpo/internal/logging"
	"vpo/internal/storage"
)

// heartbeatLoop refreshes one job's worker_heartbeat on its own database
// connection, isolated from the engine's shared writer connection so a
// heartbeat commit can never publish a job-execution transaction that
// happens to still be open (spec.md §4.J/§5/§9).
type heartbeatLoop struct {
	db              *sql.DB
	jobID           string
	pid             int
	interval        time.Duration
	requestShutdown func()

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// startHeartbeat opens a secondary writer connection and begins ticking.
func startHeartbeat(engine *storage.Engine, jobID string, pid int, interval time.Duration, requestShutdown func()) (*heartbeatLoop, error) {
	db, err := engine.OpenSecondaryWriter()
	if err != nil {
		return nil, err
	}
	h := &heartbeatLoop{
		db:              db,
		jobID:           jobID,
		pid:             pid,
		interval:        interval,
		requestShutdown: requestShutdown,
		stopCh:          make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h, nil
}

func (h *heartbeatLoop) run() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.interval)
			changed, err := storage.UpdateHeartbeatDirect(ctx, h.db, h.jobID, h.pid)
			cancel()
			switch {
			case err != nil:
				consecutiveFailures++
				logging.WorkerWarn("heartbeat for job %s failed (%d/%d consecutive): %v",
					h.jobID, consecutiveFailures, MaxHeartbeatFailures, err)
			case !changed:
				// Job is no longer running (released concurrently); nothing
				// to escalate, just stop trying.
				return
			default:
				consecutiveFailures = 0
			}
			if consecutiveFailures >= MaxHeartbeatFailures {
				logging.WorkerWarn("heartbeat for job %s failed %d consecutive times, requesting worker shutdown",
					h.jobID, consecutiveFailures)
				if h.requestShutdown != nil {
					h.requestShutdown()
				}
				return
			}
		}
	}
}

// stop halts the ticking goroutine and closes the dedicated connection.
func (h *heartbeatLoop) stop() {
	close(h.stopCh)
	h.wg.Wait()
	_ = h.db.Close()
}
