package timeline

// PlotLine is the step function of one channel as polyline vertices. Each
// edge contributes two vertices at the same time so that a renderer drawing
// straight segments between vertices draws a square wave.
type PlotLine struct {
	Times  []float64 `json:"times"`
	Levels []int     `json:"levels"`
	Color  string    `json:"color"`
}

// PlotLines maps channel names to their plot lines.
type PlotLines map[string]PlotLine

var palette = []string{
	"#5d8aa8", "#f0f8ff", "#e32636", "#efdecd", "#e52b50", "#ffbf00",
	"#ff033e", "#9966cc", "#a4c639", "#f2f3f4", "#cd9575", "#915c83",
	"#faebd7", "#008000", "#fbceb1", "#00ffff", "#4b5320", "#e9d66b",
	"#b2beb5", "#87a96b", "#8a2be2",
}

// Colors returns the palette channel colors are picked from.
func Colors() []string {
	out := make([]string, len(palette))
	copy(out, palette)

	return out
}

// ColorOf returns the color of the channel bound to bit.
func ColorOf(bit uint) string {
	return palette[int(bit)%len(palette)]
}

// PlotLines returns the plot lines of every channel. Each line ends at the
// end of the program.
func (t *Timeline) PlotLines() PlotLines {
	lines := make(PlotLines, len(t.channels))
	end := float64(t.End())

	for _, c := range t.channels {
		line := PlotLine{Color: ColorOf(c.Bit)}

		prev := -1
		for s := range t.Samples(c.String()) {
			level := int(s.Level)
			if prev >= 0 {
				line.Times = append(line.Times, float64(s.Time))
				line.Levels = append(line.Levels, prev)
			}

			line.Times = append(line.Times, float64(s.Time))
			line.Levels = append(line.Levels, level)
			prev = level
		}

		if prev >= 0 {
			line.Times = append(line.Times, end)
			line.Levels = append(line.Levels, prev)
		}

		lines[c.String()] = line
	}

	return lines
}
