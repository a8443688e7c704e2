package domain

// TargetSampleRate is the rate every clip is resampled to before embedding.
const TargetSampleRate = 16000

// AudioClip is one uploaded or captured clip. It lives only for the request
// that created it.
type AudioClip struct {
	Data        []byte
	ContentType string // declared by the uploader, may be empty
	SampleRate  int    // declared hint; the decoded header wins
}

// Embedding is the fixed-length summary vector of a clip.
type Embedding []float32

// Dim returns the embedding dimension.
func (e Embedding) Dim() int { return len(e) }
