package parallel

// MinBandRows is the smallest band Split produces, except when the target
// itself is shorter.
const MinBandRows = 16

// Band is the half-open row range [Y0, Y1).
type Band struct {
	Y0, Y1 int
}

// Rows returns the number of rows in the band.
func (b Band) Rows() int { return b.Y1 - b.Y0 }

// Split divides height rows into at most n contiguous bands of near-equal
// size covering every row exactly once. Bands are never shorter than
// MinBandRows unless height is.
func Split(height, n int) []Band {
	if height <= 0 {
		return nil
	}
	n = max(min(n, height/MinBandRows), 1)

	bands := make([]Band, n)
	base, extra := height/n, height%n
	y := 0
	for i := range bands {
		rows := base
		if i < extra {
			rows++
		}
		bands[i] = Band{Y0: y, Y1: y + rows}
		y += rows
	}
	return bands
}

// ForEachBand runs fn for each band of Split(height, p.Workers()) and
// waits for all of them.
func (p *WorkerPool) ForEachBand(height int, fn func(Band)) {
	bands := Split(height, p.Workers())
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b) }
	}
	p.ExecuteAll(work)
}
