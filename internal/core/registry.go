package core

// Registry owns one Queue per Stage. The zero value is ready to use and must
// not be copied after first use.
type Registry struct {
	queues [len(Stages)]Queue
}

// Queue returns the queue for stage s.
func (r *Registry) Queue(s Stage) *Queue {
	return &r.queues[s]
}

// Len reports how many handlers are registered for stage s.
func (r *Registry) Len(s Stage) int {
	return r.queues[s].Len()
}
