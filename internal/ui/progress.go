package ui

// ProgressBar draws width segments with a knob at progress, which is clamped
// to [0, 1].
func ProgressBar(width int, progress float64) string {
	if width <= 0 {
		return ""
	}
	progress = min(max(progress, 0), 1)
	knob := min(int(float64(width)*progress), width-1)

	out := make([]rune, 0, width)
	for i := range width {
		if i == knob {
			out = append(out, '🔘')
		} else {
			out = append(out, '▬')
		}
	}
	return string(out)
}
