package bitcursor

// Cursor walks a word array sequentially, reading or writing consecutive
// fields. The position only advances on success.
type Cursor struct {
	words []uint32
	pos   int
}

// NewCursor returns a cursor over words positioned at bit pos.
func NewCursor(words []uint32, pos int) *Cursor {
	return &Cursor{words: words, pos: pos}
}

// Pos returns the current absolute bit position.
func (c *Cursor) Pos() int { return c.pos }

// Seek moves the cursor to an absolute bit position.
func (c *Cursor) Seek(pos int) { c.pos = pos }

// Skip advances the cursor by n bits without touching the array.
func (c *Cursor) Skip(n int) { c.pos += n }

// Read reads the next width-bit field.
func (c *Cursor) Read(width int) (uint64, error) {
	v, next, err := ReadField(c.words, width, c.pos)
	if err != nil {
		return 0, err
	}
	c.pos = next
	return v, nil
}

// Write ORs value into the next width-bit field.
func (c *Cursor) Write(value uint64, width int) error {
	next, err := WriteField(c.words, value, width, c.pos)
	if err != nil {
		return err
	}
	c.pos = next
	return nil
}
