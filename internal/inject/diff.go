package inject

// Delta is the minimal edit turning the visible text into the new text:
// delete Delete characters from the end, then type Insert.
type Delta struct {
	Delete int
	Insert string
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool { return d.Delete == 0 && d.Insert == "" }

// Diff computes the [Delta] from last to full. Lengths are counted in runes,
// the unit a backspace removes. Diff(x, x) is always empty.
func Diff(last, full string) Delta {
	a, b := []rune(last), []rune(full)
	l := commonPrefix(a, b)
	return Delta{Delete: len(a) - l, Insert: string(b[l:])}
}

func commonPrefix(a, b []rune) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
