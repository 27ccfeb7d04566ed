package metrics

// RequestSecondsBuckets covers fast local calls up to the 10s external timeout.
var RequestSecondsBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 7.5, 10, 15, 30}
