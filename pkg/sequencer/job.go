package sequencer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxstudio/voxstudio/pkg/models"
	"github.com/voxstudio/voxstudio/pkg/script"
)

type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

type Progress struct {
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	State  State  `json:"state"`
	Status string `json:"status"`
}

func (p Progress) Percent() float64 {
	total := p.Total
	if total < 1 {
		total = 1
	}
	return float64(p.Done) / float64(total) * 100
}

// Job is one user-initiated speak/export run. It owns the parsed segments,
// the cooperative cancellation flag and the resume index (first segment not
// yet successfully produced). Chunks produced so far are kept on the job so a
// cancelled-then-resumed run still concatenates into the full output.
//
// The cancellation flag is the only state shared between the control path and
// the synthesis path; a single mutex protects all of it.
type Job struct {
	ID        string
	CreatedAt time.Time

	mutex      sync.Mutex
	segments   []script.Segment
	cancelled  bool
	resumeFrom int
	chunks     []models.AudioChunk
	state      State
	status     string
	err        error
	resultName string

	subscribers map[int]chan Progress
	nextSubID   int
}

func NewJob(scr script.Script) *Job {
	return &Job{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		segments:    scr.Segments,
		state:       StateQueued,
		status:      "Queued",
		subscribers: make(map[int]chan Progress),
	}
}

// Cancel requests a cooperative stop. Safe to call concurrently with an
// in-flight synthesis; the sequencing loop observes it at the next segment
// boundary.
func (j *Job) Cancel() {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.cancelled = true
}

func (j *Job) Cancelled() bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.cancelled
}

// Resume clears the cancellation flag so the job can be re-run from its
// resume index. Only a stopped job with segments left is resumable; a job
// whose run is still winding down after Cancel reports false until the
// sequencing loop has actually stopped.
func (j *Job) Resume() bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if j.state != StateStopped || j.resumeFrom >= len(j.segments) {
		return false
	}
	j.cancelled = false
	j.state = StateQueued
	j.status = "Resuming"
	return true
}

func (j *Job) ResumeFrom() int {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.resumeFrom
}

func (j *Job) Progress() Progress {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.progressLocked()
}

func (j *Job) progressLocked() Progress {
	return Progress{
		Done:   j.resumeFrom,
		Total:  len(j.segments),
		State:  j.state,
		Status: j.status,
	}
}

func (j *Job) Err() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.err
}

// Chunks returns the audio produced so far, in segment order.
func (j *Job) Chunks() []models.AudioChunk {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	out := make([]models.AudioChunk, len(j.chunks))
	copy(out, j.chunks)
	return out
}

func (j *Job) SetResult(name string) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.resultName = name
}

func (j *Job) Result() string {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.resultName
}

// Subscribe registers a progress feed for the websocket push. The channel is
// buffered and updates are dropped rather than blocking the sequencing loop;
// it is closed when the job reaches a terminal state. Subscribing to an
// already-finished job yields the final snapshot and an immediately closed
// channel, so the feed ends instead of hanging for the retention window.
func (j *Job) Subscribe() (int, <-chan Progress) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	ch := make(chan Progress, 16)
	ch <- j.progressLocked()
	if j.state.Terminal() {
		close(ch)
		return -1, ch
	}
	id := j.nextSubID
	j.nextSubID++
	j.subscribers[id] = ch
	return id, ch
}

// Unsubscribe detaches a feed. The channel is only ever closed by the job's
// terminal transition, so a detach after a send never races a close.
func (j *Job) Unsubscribe(id int) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	delete(j.subscribers, id)
}

func (j *Job) segmentsCopy() []script.Segment {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	out := make([]script.Segment, len(j.segments))
	copy(out, j.segments)
	return out
}

func (j *Job) setRunning(status string) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.state = StateRunning
	j.status = status
	j.notifyLocked()
}

// advance records a produced chunk and moves the resume index past it.
func (j *Job) advance(chunk models.AudioChunk) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.chunks = append(j.chunks, chunk)
	j.resumeFrom++
	j.notifyLocked()
}

func (j *Job) finish(state State, status string, err error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.state = state
	j.status = status
	j.err = err
	j.notifyLocked()
	if state.Terminal() {
		for id, ch := range j.subscribers {
			delete(j.subscribers, id)
			close(ch)
		}
	}
}

func (j *Job) notifyLocked() {
	progress := j.progressLocked()
	for _, ch := range j.subscribers {
		select {
		case ch <- progress:
		default:
			log.Debug().Str("job_id", j.ID).Msg("progress subscriber too slow, update dropped")
		}
	}
}

// Registry is the in-memory job table behind /progress and the job controls.
type Registry struct {
	mutex sync.Mutex
	jobs  map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

func (r *Registry) Add(job *Job) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.jobs[job.ID] = job
}

func (r *Registry) Get(id string) (*Job, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Sweep drops jobs past their retention: finished jobs after retention,
// stopped-but-never-resumed jobs (with their accumulated chunks) after the
// longer stoppedRetention. Queued and running jobs are kept regardless of age.
func (r *Registry) Sweep(retention, stoppedRetention time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	cutoff := time.Now().Add(-retention)
	stoppedCutoff := time.Now().Add(-stoppedRetention)
	for id, job := range r.jobs {
		state := job.Progress().State
		switch {
		case state.Terminal() && job.CreatedAt.Before(cutoff):
			delete(r.jobs, id)
		case state == StateStopped && job.CreatedAt.Before(stoppedCutoff):
			delete(r.jobs, id)
		}
	}
}
