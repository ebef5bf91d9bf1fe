package fanout

import "github.com/shenikar/safesteps/internal/models"

// ring - ограниченный журнал последних дельт одной ячейки, версии идут подряд
type ring struct {
	buf   []models.CellDelta
	start int
	n     int
}

func newRing(size int) *ring {
	return &ring{buf: make([]models.CellDelta, size)}
}

func (r *ring) push(d models.CellDelta) {
	if r.n > 0 && d.Version != r.at(r.n-1).Version+1 {
		// разрыв последовательности: старая история больше не пригодна для догона
		r.start, r.n = 0, 0
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = d
		r.n++
		return
	}
	r.buf[r.start] = d
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) at(i int) models.CellDelta {
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *ring) last() (models.CellDelta, bool) {
	if r.n == 0 {
		return models.CellDelta{}, false
	}
	return r.at(r.n - 1), true
}

func (r *ring) items() []models.CellDelta {
	out := make([]models.CellDelta, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.at(i)
	}
	return out
}
