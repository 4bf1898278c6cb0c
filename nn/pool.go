package nn

// globalAvgPoolForward reduces [batch][c][l] to [batch][c].
func globalAvgPoolForward(x []float32, in shape, batch int) []float32 {
	out := make([]float32, batch*in.Channels)
	inv := 1 / float32(in.Length)
	for r := range out {
		var sum float32
		for _, v := range x[r*in.Length : (r+1)*in.Length] {
			sum += v
		}
		out[r] = sum * inv
	}
	return out
}

func globalAvgPoolInputGrad(gradOut []float32, in shape, batch int) []float32 {
	gradIn := make([]float32, batch*in.size())
	inv := 1 / float32(in.Length)
	for r, g := range gradOut {
		row := gradIn[r*in.Length : (r+1)*in.Length]
		for i := range row {
			row[i] = g * inv
		}
	}
	return gradIn
}
