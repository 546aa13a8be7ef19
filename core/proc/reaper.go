package proc

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// Exit is a child termination observed by the Reaper.
type Exit struct {
	PID    int
	Status unix.WaitStatus
}

// Code returns the exit code, or 128 plus the signal number if the process was
// killed by a signal.
func (e Exit) Code() int {
	if e.Status.Signaled() {
		return 128 + int(e.Status.Signal())
	}
	return e.Status.ExitStatus()
}

func (e Exit) String() string {
	if e.Status.Signaled() {
		return fmt.Sprintf("pid %d killed by %v", e.PID, e.Status.Signal())
	}
	return fmt.Sprintf("pid %d exited %d", e.PID, e.Status.ExitStatus())
}

type waitFunc func(pid int, status *unix.WaitStatus, options int, rusage *unix.Rusage) (int, error)

// Reaper collects terminated child processes.
//
// SIGCHLD only wakes the reaper, the signal itself carries nothing: on every
// wakeup all terminated children are collected with a non-blocking wait loop.
// Each termination is either handed to a goroutine waiting on that pid through
// Expect, or queued for the main flow to pick up with Take. Nothing else
// happens off the main flow, in particular the job table isn't touched here.
//
// Stopped children aren't reported. Because the reaper waits on any child,
// no other code in the process may wait on children while it runs, this
// includes os/exec.
type Reaper struct {
	mu        sync.Mutex
	waiters   map[int]chan Exit
	unclaimed map[int]Exit
	pending   []Exit

	notify chan struct{}
	sigs   chan os.Signal
	done   chan struct{}
	wg     sync.WaitGroup

	wait waitFunc
}

// NewReaper creates a stopped Reaper.
func NewReaper() *Reaper {
	return &Reaper{
		waiters:   make(map[int]chan Exit),
		unclaimed: make(map[int]Exit),
		notify:    make(chan struct{}, 1),
		wait:      unix.Wait4,
	}
}

// Start subscribes to SIGCHLD and begins reaping in the background. It must be
// called before any child is started.
func (r *Reaper) Start() {
	r.sigs = make(chan os.Signal, 1)
	r.done = make(chan struct{})
	signal.Notify(r.sigs, unix.SIGCHLD)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.sigs:
				r.Reap()
			case <-r.done:
				return
			}
		}
	}()

	// Catch anything that exited before the subscription.
	r.Reap()
}

// Stop unsubscribes from SIGCHLD and waits for the background loop to finish.
func (r *Reaper) Stop() {
	if r.done == nil {
		return
	}
	signal.Stop(r.sigs)
	close(r.done)
	r.wg.Wait()
	r.done = nil
}

// Reap collects every child that has already terminated without blocking and
// returns how many were collected.
func (r *Reaper) Reap() int {
	collected := 0
	for {
		var status unix.WaitStatus
		pid, err := r.wait(-1, &status, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil, pid <= 0:
			// ECHILD or nothing ready yet.
			return collected
		}

		if !status.Exited() && !status.Signaled() {
			continue
		}

		collected++
		r.record(Exit{PID: pid, Status: status})
	}
}

func (r *Reaper) record(exit Exit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if waiter, ok := r.waiters[exit.PID]; ok {
		delete(r.waiters, exit.PID)
		waiter <- exit
		return
	}

	r.unclaimed[exit.PID] = exit
	r.pending = append(r.pending, exit)

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Expect returns a channel that receives the termination of pid. Terminations
// claimed this way are not reported by Take.
//
// Expect must be called before the pid is passed to Take, otherwise a process
// that has already been reaped is never delivered.
func (r *Reaper) Expect(pid int) <-chan Exit {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Exit, 1)
	if exit, ok := r.unclaimed[pid]; ok {
		delete(r.unclaimed, pid)
		r.dropPending(pid)
		ch <- exit
		return ch
	}

	r.waiters[pid] = ch
	return ch
}

func (r *Reaper) dropPending(pid int) {
	kept := r.pending[:0]
	for _, exit := range r.pending {
		if exit.PID != pid {
			kept = append(kept, exit)
		}
	}
	r.pending = kept
}

// Notify returns a channel that receives a value whenever terminations are
// queued for Take. Multiple terminations may be coalesced into one value.
func (r *Reaper) Notify() <-chan struct{} {
	return r.notify
}

// Take removes and returns every queued termination in the order they were
// reaped.
func (r *Reaper) Take() []Exit {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.pending
	r.pending = nil
	for _, exit := range out {
		delete(r.unclaimed, exit.PID)
	}
	return out
}
