package perf

import "github.com/router-for-me/ModelGovernor/internal/models"

// ring is a fixed-capacity sample buffer; the oldest sample is evicted
// first once the capacity is reached.
type ring struct {
	buf   []models.UsageSample
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]models.UsageSample, capacity)}
}

func (r *ring) append(sample models.UsageSample) {
	capacity := len(r.buf)
	if r.count < capacity {
		r.buf[(r.start+r.count)%capacity] = sample
		r.count++
		return
	}
	r.buf[r.start] = sample
	r.start = (r.start + 1) % capacity
}

// at returns the i-th sample in insertion order, 0 being the oldest.
func (r *ring) at(i int) models.UsageSample {
	return r.buf[(r.start+i)%len(r.buf)]
}

// dropOldest removes n samples from the front.
func (r *ring) dropOldest(n int) {
	if n > r.count {
		n = r.count
	}
	r.start = (r.start + n) % len(r.buf)
	r.count -= n
}

// tail returns up to n of the most recent samples, oldest first.
func (r *ring) tail(n int) []models.UsageSample {
	if n > r.count {
		n = r.count
	}
	out := make([]models.UsageSample, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.at(i))
	}
	return out
}

// slice returns samples [from, to) in insertion order.
func (r *ring) slice(from, to int) []models.UsageSample {
	if from < 0 {
		from = 0
	}
	if to > r.count {
		to = r.count
	}
	if from >= to {
		return nil
	}
	out := make([]models.UsageSample, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, r.at(i))
	}
	return out
}
