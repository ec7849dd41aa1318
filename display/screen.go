package display

import (
	"fmt"
	"strings"
	"sync"
)

// Screen is an in-memory character display. It backs the terminal
// simulation and the tests. Characters written past the last column are
// dropped.
type Screen struct {
	mu       sync.Mutex
	rows     int
	cols     int
	cells    [][]byte
	glyphs   [MaxGlyphs]rune
	row, col int
	onChange func()
}

func NewScreen(rows, cols int) *Screen {
	s := &Screen{rows: rows, cols: cols}
	s.cells = make([][]byte, rows)
	for i := range s.cells {
		s.cells[i] = []byte(strings.Repeat(" ", cols))
	}
	for i := range s.glyphs {
		s.glyphs[i] = '?'
	}
	return s
}

func (s *Screen) Rows() int { return s.rows }
func (s *Screen) Cols() int { return s.cols }

// OnChange registers fn to be called after every modification, outside
// the screen lock.
func (s *Screen) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Screen) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Screen) RegisterGlyph(g Glyph) error {
	if g.ID >= MaxGlyphs {
		return fmt.Errorf("glyph id %d: only %d custom characters", g.ID, MaxGlyphs)
	}
	s.mu.Lock()
	s.glyphs[g.ID] = g.Rune
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Screen) Goto(row, col int) error {
	if row < 1 || row > s.rows || col < 1 || col > s.cols {
		return fmt.Errorf("%w: (%d,%d) on %dx%d", ErrOutOfRange, row, col, s.rows, s.cols)
	}
	s.mu.Lock()
	s.row, s.col = row-1, col-1
	s.mu.Unlock()
	return nil
}

func (s *Screen) put(b byte) {
	if s.col < s.cols {
		s.cells[s.row][s.col] = b
	}
	s.col++
}

func (s *Screen) WriteString(str string) error {
	s.mu.Lock()
	for i := 0; i < len(str); i++ {
		s.put(str[i])
	}
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Screen) WriteChar(code byte) error {
	s.mu.Lock()
	s.put(code)
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Screen) Clear() error {
	s.mu.Lock()
	for _, r := range s.cells {
		for i := range r {
			r[i] = ' '
		}
	}
	s.row, s.col = 0, 0
	s.mu.Unlock()
	s.changed()
	return nil
}

// Raw returns a copy of row (1-based) as character codes.
func (s *Screen) Raw(row int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row < 1 || row > s.rows {
		return nil
	}
	return append([]byte(nil), s.cells[row-1]...)
}

// Lines renders every row with custom characters replaced by their runes.
func (s *Screen) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]string, s.rows)
	for i, r := range s.cells {
		var buf strings.Builder
		for _, b := range r {
			if b < MaxGlyphs {
				buf.WriteRune(s.glyphs[b])
			} else {
				buf.WriteByte(b)
			}
		}
		ret[i] = buf.String()
	}
	return ret
}

func (s *Screen) String() string {
	return strings.Join(s.Lines(), "\n")
}
