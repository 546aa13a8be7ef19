package proc

import "sync"

// DefaultMaxJobs is the number of background jobs tracked when no limit is
// configured.
const DefaultMaxJobs = 20

// Job is a background pipeline tracked by the pid of its last stage.
type Job struct {
	// Index is the 1-based position of the job in the table at the time it was
	// listed.
	Index int
	PID   int
	Label string
}

// JobTable is an ordered, capacity bounded registry of background jobs.
//
// It's safe for concurrent use.
type JobTable struct {
	mu       sync.Mutex
	capacity int
	jobs     []Job
}

// NewJobTable creates a table holding at most capacity jobs, capacity values
// below 1 use DefaultMaxJobs.
func NewJobTable(capacity int) *JobTable {
	if capacity < 1 {
		capacity = DefaultMaxJobs
	}
	return &JobTable{capacity: capacity}
}

// Cap returns the maximum number of jobs the table holds.
func (t *JobTable) Cap() int {
	return t.capacity
}

// Len returns the number of jobs in the table.
func (t *JobTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.jobs)
}

// Insert appends a job, returning its 1-based index. If the table is full or
// the pid is already tracked nothing changes and ok is false.
func (t *JobTable) Insert(pid int, label string) (index int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.jobs) >= t.capacity || t.indexOf(pid) >= 0 {
		return 0, false
	}

	t.jobs = append(t.jobs, Job{PID: pid, Label: label})
	return len(t.jobs), true
}

// Remove deletes the job with the given pid, shifting the jobs after it down
// so their relative order is kept.
func (t *JobTable) Remove(pid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(pid)
	if i < 0 {
		return Job{}, false
	}

	job := t.jobs[i]
	job.Index = i + 1
	t.jobs = append(t.jobs[:i], t.jobs[i+1:]...)
	return job, true
}

// List returns a snapshot of the jobs in insertion order.
func (t *JobTable) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Job, len(t.jobs))
	for i, job := range t.jobs {
		job.Index = i + 1
		out[i] = job
	}
	return out
}

func (t *JobTable) indexOf(pid int) int {
	for i, job := range t.jobs {
		if job.PID == pid {
			return i
		}
	}
	return -1
}
