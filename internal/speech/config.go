// Package speech narrates text through a cloud text-to-speech service.
package speech

// Default Azure voice. Full list:
// https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const DefaultVoice = "en-US-AvaNeural"

// Azure output format. RIFF keeps the result decodable by internal/audio,
// which the library uses to compute durations.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// ElevenLabs defaults. The voice is the stock "Rachel" voice.
const (
	DefaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"
	DefaultElevenLabsModel = "eleven_multilingual_v2"
	ElevenLabsBaseURL      = "https://api.elevenlabs.io"
)

// contentTypeFor maps an Azure output format to a MIME type.
func contentTypeFor(format string) string {
	switch {
	case len(format) >= 4 && format[:4] == "riff":
		return "audio/wav"
	case len(format) >= 4 && format[:4] == "ogg-":
		return "audio/ogg"
	case len(format) >= 5 && format[:5] == "webm-":
		return "audio/webm"
	default:
		return "audio/mpeg"
	}
}
