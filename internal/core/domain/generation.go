package domain

// SamplingOptions are the sampling parameters passed through to the
// generative model call.
type SamplingOptions struct {
	Temperature float64
	TopP        float64
	NumCtx      int
}
