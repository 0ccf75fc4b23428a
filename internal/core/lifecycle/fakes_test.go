package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/origami/origamid/internal/core/domain"
)

// fakeRuntime is an in-memory runtime daemon. Stopping a container started
// with AutoRemove deletes it, as the real daemon does.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]domain.Container
	autoRemove map[string]bool
	nextID     int

	records  []domain.BuildRecord
	buildErr error

	getErr, stopErr, removeErr, runErr error

	builds, stops, removes, runs int
	lastStopTimeout              time.Duration
	lastRun                      domain.RunSpec
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]domain.Container),
		autoRemove: make(map[string]bool),
		records:    successLog("deadbeef00"),
	}
}

func (f *fakeRuntime) Get(_ context.Context, id string) (domain.Container, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.Container{}, false, f.getErr
	}
	c, ok := f.containers[id]
	return c, ok, nil
}

func (f *fakeRuntime) Stop(_ context.Context, c domain.Container, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.lastStopTimeout = timeout
	if f.stopErr != nil {
		return false, f.stopErr
	}
	cur, ok := f.containers[c.ID]
	if !ok {
		return false, nil
	}
	if f.autoRemove[c.ID] {
		delete(f.containers, c.ID)
		return true, nil
	}
	cur.Status = "exited"
	f.containers[c.ID] = cur
	return true, nil
}

func (f *fakeRuntime) Remove(_ context.Context, c domain.Container) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes++
	if f.removeErr != nil {
		return false, f.removeErr
	}
	if _, ok := f.containers[c.ID]; !ok {
		return false, nil
	}
	delete(f.containers, c.ID)
	return true, nil
}

func (f *fakeRuntime) Run(_ context.Context, spec domain.RunSpec) (domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	f.lastRun = spec
	if f.runErr != nil {
		return domain.Container{}, f.runErr
	}
	f.nextID++
	c := domain.Container{
		ID:     fmt.Sprintf("container-%d", f.nextID),
		Name:   spec.Name,
		Image:  spec.ImageID,
		Status: "running",
	}
	f.containers[c.ID] = c
	f.autoRemove[c.ID] = spec.AutoRemove
	return c, nil
}

func (f *fakeRuntime) BuildStream(_ context.Context, _ string) ([]domain.BuildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	return f.records, f.buildErr
}

// put registers a container as if it had been started earlier.
func (f *fakeRuntime) put(c domain.Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[c.ID] = c
}

func (f *fakeRuntime) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.containers[id]
	return ok
}

type memRepo struct {
	mu      sync.Mutex
	demos   map[string]domain.Demo
	saves   int
	getErr  error
	saveErr error
}

func newMemRepo(demos ...domain.Demo) *memRepo {
	r := &memRepo{demos: make(map[string]domain.Demo)}
	for _, d := range demos {
		r.demos[d.DemoID] = d
	}
	return r
}

func (r *memRepo) GetOrNone(_ context.Context, demoID string) (*domain.Demo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	d, ok := r.demos[demoID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *memRepo) Save(_ context.Context, demo *domain.Demo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.demos[demo.DemoID] = *demo
	return nil
}

func (r *memRepo) List(_ context.Context) ([]domain.Demo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Demo, 0, len(r.demos))
	for _, d := range r.demos {
		out = append(out, d)
	}
	return out, nil
}

func (r *memRepo) stored(demoID string) (domain.Demo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.demos[demoID]
	return d, ok
}

type fakePorts struct {
	mu    sync.Mutex
	next  int
	calls int
	err   error
}

func (p *fakePorts) Allocate(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	if p.next == 0 {
		p.next = 32768
	}
	port := p.next
	p.next++
	return port, nil
}

type memLogs struct {
	mu   sync.Mutex
	logs map[string][]byte
}

func newMemLogs() *memLogs {
	return &memLogs{logs: make(map[string][]byte)}
}

func (m *memLogs) Write(logID string, records []domain.BuildRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[logID] = data
	return nil
}

func (m *memLogs) Read(logID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.logs[logID]
	if !ok {
		return nil, domain.ErrLogNotFound
	}
	return data, nil
}

func records(lines ...string) []domain.BuildRecord {
	out := make([]domain.BuildRecord, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.NewBuildRecord([]byte(l)))
	}
	return out
}

// successLog is the output of a classic build producing image sha256:<hexID>.
func successLog(hexID string) []domain.BuildRecord {
	short := hexID
	if len(short) > 12 {
		short = short[:12]
	}
	return records(
		`{"stream":"Step 1/2 : FROM python:3.11-slim\n"}`,
		`{"stream":" ---> 4f1d2c3b\n"}`,
		`{"stream":"Step 2/2 : CMD [\"python\", \"app.py\"]\n"}`,
		`{"aux":{"ID":"sha256:`+hexID+`"}}`,
		`{"stream":"Successfully built `+short+`\n"}`,
	)
}
