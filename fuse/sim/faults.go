package sim

// StickLow makes the bits in mask of row impossible to program.
func (d *Device) StickLow(row int, mask uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stuckLow[row] |= mask
}

// Unstick clears all stuck bits.
func (d *Device) Unstick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stuckLow = make(map[int]uint32)
}

// QueueReads makes the next len(values) reads of row return values in order
// instead of the stored word.
func (d *Device) QueueReads(row int, values ...uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flaky[row] = append(d.flaky[row], values...)
}

// Hang makes every program cycle run forever until Hang(false).
func (d *Device) Hang(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hang = on
}
