package yolov2

import "github.com/chewxy/math32"

// Sigmoid returns 1 / (1 + e^-v).
func Sigmoid(v float32) float32 {
	return 1 / (1 + math32.Exp(-v))
}

// Softmax writes the normalised exponentials of logits into out and returns it.
//
// The largest logit is subtracted before exponentiating so large logits cannot overflow.
// If out is too small a new slice is allocated.
//
// Arguments:
//   - out: Destination buffer, reused across calls to avoid allocations.
//   - logits: The raw class logits.
//
// Returns:
//   - The probability distribution, summing to 1.
func Softmax(out, logits []float32) []float32 {
	if cap(out) < len(logits) {
		out = make([]float32, len(logits))
	}
	out = out[:len(logits)]
	if len(logits) == 0 {
		return out
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float32
	for i, v := range logits {
		e := math32.Exp(v - maxVal)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// argmax returns the index and value of the largest element. The first index wins ties.
func argmax(values []float32) (int, float32) {
	best, bestVal := 0, values[0]
	for i, v := range values[1:] {
		if v > bestVal {
			best, bestVal = i+1, v
		}
	}
	return best, bestVal
}
