package ledger

import (
	"sort"
	"sync"
	"time"
)

// lanes serialises remote writes per item name so an add and a later delete of
// the same name reach the store in the order they were issued. Writes for
// different names run independently.
type lanes struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
	wg    sync.WaitGroup
}

func newLanes() *lanes {
	return &lanes{tails: make(map[string]chan struct{})}
}

func (q *lanes) run(key string, fn func()) {
	q.mu.Lock()
	prev := q.tails[key]
	done := make(chan struct{})
	q.tails[key] = done
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		defer func() {
			close(done)
			q.mu.Lock()
			if q.tails[key] == done {
				delete(q.tails, key)
			}
			q.mu.Unlock()
		}()
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

func (q *lanes) wait() {
	q.wg.Wait()
}

// debouncer is a per-key table of cancellable delayed tasks. Scheduling a key
// that already has a task resets its timer and replaces the task.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	tasks   map[string]*debounceTask
	running sync.WaitGroup
}

type debounceTask struct {
	timer *time.Timer
	fn    func()
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, tasks: make(map[string]*debounceTask)}
}

func (d *debouncer) schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.tasks[key]; ok {
		prev.timer.Stop()
	}
	task := &debounceTask{fn: fn}
	// fire blocks on d.mu until task.timer is assigned.
	task.timer = time.AfterFunc(d.delay, func() { d.fire(key, task) })
	d.tasks[key] = task
}

func (d *debouncer) fire(key string, task *debounceTask) {
	d.mu.Lock()
	if d.tasks[key] != task {
		d.mu.Unlock()
		return
	}
	delete(d.tasks, key)
	d.running.Add(1)
	d.mu.Unlock()
	defer d.running.Done()
	task.fn()
}

func (d *debouncer) cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.tasks[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(d.tasks, key)
	return true
}

// flushAll runs every scheduled task now, in key order, and waits for tasks
// whose timers already fired.
func (d *debouncer) flushAll() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.tasks))
	for key, task := range d.tasks {
		task.timer.Stop()
		keys = append(keys, key)
	}
	sort.Strings(keys)
	tasks := make([]*debounceTask, 0, len(keys))
	for _, key := range keys {
		tasks = append(tasks, d.tasks[key])
		delete(d.tasks, key)
	}
	d.mu.Unlock()

	for _, task := range tasks {
		task.fn()
	}
	d.running.Wait()
}
