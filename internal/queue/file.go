package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/locks"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

// ErrLedgerCorrupt is returned when the on-disk ledger cannot be decoded.
var ErrLedgerCorrupt = errors.New("queue ledger is corrupt")

// ErrSlotLost is returned by Refresh when the held slot was reclaimed by another process.
var ErrSlotLost = errors.New("queue slot was reclaimed")

// Slot is one claimed entry of the ledger.
type Slot struct {
	Ticket  string    `json:"ticket"`
	Host    string    `json:"host"`
	PID     int       `json:"pid"`
	Expires time.Time `json:"expires"`
}

type ledger struct {
	Slots []Slot `json:"slots"`
}

// FileQueue is a Queue whose slots are recorded in a JSON ledger file, guarded by a lock file
// next to it. Processes on hosts sharing the directory see the same queue.
type FileQueue struct {
	logger   log.Logger
	path     string
	capacity int
	ttl      time.Duration
	now      func() time.Time
	alive    func(pid int) bool
	host     string
	pid      int

	mu     sync.Mutex
	ticket string
}

// FileOption configures a FileQueue.
type FileOption func(*FileQueue)

// WithLeaseTTL sets the slot lease duration.
func WithLeaseTTL(ttl time.Duration) FileOption {
	return func(q *FileQueue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FileOption {
	return func(q *FileQueue) {
		q.now = now
	}
}

// NewFileQueue returns a queue of the given capacity recorded at path.
func NewFileQueue(logger log.Logger, path string, capacity int, opts ...FileOption) *FileQueue {
	host, _ := os.Hostname()

	q := &FileQueue{
		logger:   logger.WithField(log.FieldKeyPrefix, filepath.Base(path)),
		path:     path,
		capacity: capacity,
		ttl:      DefaultLeaseTTL,
		now:      time.Now,
		alive:    processAlive,
		host:     host,
		pid:      os.Getpid(),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Path returns the ledger path.
func (q *FileQueue) Path() string {
	return q.path
}

// Capacity returns the slot limit.
func (q *FileQueue) Capacity() int {
	return q.capacity
}

// LeaseTTL returns the slot lease duration.
func (q *FileQueue) LeaseTTL() time.Duration {
	return q.ttl
}

func (q *FileQueue) Enter(ctx context.Context) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ticket != "" {
		return true, nil
	}

	var entered bool

	err := q.update(ctx, func(led *ledger) bool {
		reclaimed := q.reclaim(led)

		if len(led.Slots) >= q.capacity {
			q.logger.Debugf("Queue is full (%d/%d)", len(led.Slots), q.capacity)
			return reclaimed
		}

		ticket := uuid.NewString()
		led.Slots = append(led.Slots, Slot{
			Ticket:  ticket,
			Host:    q.host,
			PID:     q.pid,
			Expires: q.now().Add(q.ttl),
		})

		q.ticket = ticket
		entered = true

		q.logger.Debugf("Entered queue with ticket %s (%d/%d)", ticket, len(led.Slots), q.capacity)

		return true
	})
	if err != nil {
		q.ticket = ""
		return false, err
	}

	return entered, nil
}

func (q *FileQueue) Exit(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ticket == "" {
		return nil
	}

	err := q.update(ctx, func(led *ledger) bool {
		led.Slots = slices.DeleteFunc(led.Slots, func(slot Slot) bool { return slot.Ticket == q.ticket })
		return true
	})
	if err != nil {
		return err
	}

	q.logger.Debugf("Exited queue, released ticket %s", q.ticket)
	q.ticket = ""

	return nil
}

func (q *FileQueue) Refresh(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ticket == "" {
		return nil
	}

	var found bool

	err := q.update(ctx, func(led *ledger) bool {
		for i := range led.Slots {
			if led.Slots[i].Ticket == q.ticket {
				led.Slots[i].Expires = q.now().Add(q.ttl)
				found = true

				return true
			}
		}

		return false
	})
	if err != nil {
		return err
	}

	if !found {
		return errors.Errorf("ticket %s: %w", q.ticket, ErrSlotLost)
	}

	return nil
}

// Occupancy returns the number of live slots, reclaiming stale ones on the way.
func (q *FileQueue) Occupancy(ctx context.Context) (int, error) {
	var count int

	err := q.update(ctx, func(led *ledger) bool {
		reclaimed := q.reclaim(led)
		count = len(led.Slots)

		return reclaimed
	})

	return count, err
}

// reclaim drops expired slots and slots whose holder process on this host is gone.
func (q *FileQueue) reclaim(led *ledger) bool {
	now := q.now()
	before := len(led.Slots)

	led.Slots = slices.DeleteFunc(led.Slots, func(slot Slot) bool {
		switch {
		case slot.Expires.Before(now):
			q.logger.Debugf("Reclaiming expired ticket %s held by pid %d on %s", slot.Ticket, slot.PID, slot.Host)
			return true
		case slot.Host == q.host && !q.alive(slot.PID):
			q.logger.Debugf("Reclaiming ticket %s held by dead pid %d", slot.Ticket, slot.PID)
			return true
		}

		return false
	})

	return len(led.Slots) != before
}

// update runs fn on the ledger under the ledger lock and writes it back if fn reports a change.
func (q *FileQueue) update(ctx context.Context, fn func(led *ledger) bool) error {
	lockfile, err := locks.Acquire(ctx, q.logger, q.path+".lock", locks.WithRetryDelay(10*time.Millisecond))
	if err != nil {
		return err
	}
	defer lockfile.Unlock() //nolint:errcheck

	led, err := q.read()
	if err != nil {
		return err
	}

	if !fn(led) {
		return nil
	}

	return q.write(led)
}

func (q *FileQueue) read() (*ledger, error) {
	led := new(ledger)

	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return led, nil
	} else if err != nil {
		return nil, errors.New(err)
	}

	if len(data) == 0 {
		return led, nil
	}

	if err := json.Unmarshal(data, led); err != nil {
		return nil, errors.Errorf("%s: %w: %v", q.path, ErrLedgerCorrupt, err)
	}

	return led, nil
}

// write replaces the ledger atomically so a crash never leaves a half-written file behind.
func (q *FileQueue) write(led *ledger) error {
	data, err := json.Marshal(led)
	if err != nil {
		return errors.New(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(q.path), filepath.Base(q.path)+".*.tmp")
	if err != nil {
		return errors.New(err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck

		return errors.New(err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck

		return errors.New(err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return errors.New(err)
	}

	return errors.WithStackTrace(os.Rename(tmp.Name(), q.path))
}
