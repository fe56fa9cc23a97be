// Package piper speaks turnout's answers through a Piper server.
//
// Piper is a fast local neural TTS engine; its containers expose the
// Wyoming protocol on TCP port 10200. Every synthesis is one short-lived
// connection: send a synthesize event, collect audio-chunk events until
// audio-stop, wrap the PCM in a WAV container.
//
// Wyoming frames look like:
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
//
// The assistant's home language is Czech, so an unknown language falls
// back to the Czech voice rather than English.
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/turnout/internal/config"
	"github.com/nadzzz/turnout/internal/tts"
)

const (
	dialTimeout = 10 * time.Second

	// synthDeadline bounds a synthesis when the caller's context has no
	// deadline of its own.
	synthDeadline = 30 * time.Second
)

// defaultVoices maps ISO-639-1 language codes to Piper voice model names.
// Czech first: it is the assistant's home language.
var defaultVoices = map[string]string{
	"cs": "cs_CZ-jirka-medium",
	"sk": "sk_SK-lili-medium",
	"en": "en_US-lessac-medium",
	"de": "de_DE-thorsten-medium",
	"pl": "pl_PL-darkman-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-mls_10246-low",
	"it": "it_IT-riccardo-x_low",
	"ru": "ru_RU-ruslan-medium",
}

// Synthesizer implements tts.Synthesizer against one or more Piper
// instances. A per-language endpoint map supports deployments that run a
// dedicated Piper container per language next to a default instance.
type Synthesizer struct {
	endpoint  string            // default Wyoming host:port
	endpoints map[string]string // language -> dedicated host:port
	voices    map[string]string // language -> voice model name
}

// New creates a Piper synthesizer. Configured voices override the
// defaults per language; configured endpoints are taken as written minus
// any tcp:// or http:// scheme.
func New(cfg config.PiperConfig) *Synthesizer {
	voices := maps.Clone(defaultVoices)
	maps.Copy(voices, cfg.Voices)

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[lang] = trimScheme(ep)
	}

	return &Synthesizer{
		endpoint:  trimScheme(cfg.Endpoint),
		endpoints: endpoints,
		voices:    voices,
	}
}

// Synthesize renders text as a WAV file through the Piper instance
// serving the requested language.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	voice := s.voiceFor(opts)
	endpoint := s.endpointFor(opts.Language)
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", opts.Language)
	}

	slog.Debug("piper synthesize",
		"text_length", len(text), "voice", voice, "language", opts.Language, "endpoint", endpoint)

	conn, err := s.dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": voice},
		},
	}
	if err := writeEvent(conn, req, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	pcm, format, err := collectAudio(bufio.NewReader(conn))
	if err != nil {
		return nil, err
	}

	return &tts.SynthesizeResult{
		Audio:       pcmToWAV(pcm, format.rate, format.channels, format.width),
		ContentType: "audio/wav",
		SampleRate:  format.rate,
		Channels:    format.channels,
	}, nil
}

// Close is a no-op because connections are per-request.
func (s *Synthesizer) Close() error { return nil }

// voiceFor resolves the voice model: explicit override, then the
// language's configured voice, then the Czech default.
func (s *Synthesizer) voiceFor(opts tts.SynthesizeOpts) string {
	if opts.Voice != "" {
		return opts.Voice
	}
	if v := s.voices[opts.Language]; v != "" {
		return v
	}
	return s.voices["cs"]
}

// endpointFor prefers a per-language instance over the default one.
func (s *Synthesizer) endpointFor(language string) string {
	if ep := s.endpoints[language]; ep != "" {
		return ep
	}
	return s.endpoint
}

func (s *Synthesizer) dial(ctx context.Context, endpoint string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(synthDeadline)
	}
	_ = conn.SetDeadline(deadline)

	return conn, nil
}

func trimScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "tcp://")
	return strings.TrimPrefix(endpoint, "http://")
}

// audioFormat is the PCM shape announced by an audio-start event.
type audioFormat struct {
	rate     int
	channels int
	width    int // bytes per sample
}

// collectAudio consumes events until audio-stop, accumulating raw PCM.
// The format defaults to Piper's native 22.05 kHz mono 16-bit when the
// server does not announce one.
func collectAudio(r io.Reader) ([]byte, audioFormat, error) {
	format := audioFormat{rate: 22050, channels: 1, width: 2}
	var pcm bytes.Buffer

	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, format, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if v, ok := evt.Data["rate"].(float64); ok {
				format.rate = int(v)
			}
			if v, ok := evt.Data["channels"].(float64); ok {
				format.channels = int(v)
			}
			if v, ok := evt.Data["width"].(float64); ok {
				format.width = int(v)
			}
			slog.Debug("piper audio-start",
				"rate", format.rate, "channels", format.channels, "width", format.width)

		case "audio-chunk":
			pcm.Write(payload)

		case "audio-stop":
			slog.Debug("piper audio-stop", "pcm_bytes", pcm.Len())
			return pcm.Bytes(), format, nil

		case "error":
			msg := "unknown error"
			if v, ok := evt.Data["text"].(string); ok {
				msg = v
			}
			return nil, format, fmt.Errorf("piper error: %s", msg)

		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

// wyomingEvent is one protocol message. Lengths travel in the frame
// header rather than the JSON body.
type wyomingEvent struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// writeEvent frames one event and writes it in a single call so a frame
// never straddles writes on the wire.
func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	evt.PayloadLength = 0 // lengths live in the header line only
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	var frame bytes.Buffer
	frame.Grow(len(body) + len(payload) + 32)
	fmt.Fprintf(&frame, "%d %d\n", len(body), len(payload))
	frame.Write(body)
	frame.WriteByte('\n')
	frame.Write(payload)

	_, err = w.Write(frame.Bytes())
	return err
}

// readEvent reads one framed event. It never reads past the frame, so
// consecutive calls on the same reader stay aligned.
func readEvent(r io.Reader) (*wyomingEvent, []byte, error) {
	header, err := readHeaderLine(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var jsonLen, payloadLen int
	if _, err := fmt.Sscanf(header, "%d %d", &jsonLen, &payloadLen); err != nil {
		return nil, nil, fmt.Errorf("invalid wyoming header %q: %w", header, err)
	}

	body := make([]byte, jsonLen+1) // incl. trailing newline
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}

	var evt wyomingEvent
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}

	return &evt, payload, nil
}

// readHeaderLine reads bytes up to a newline without buffering ahead.
func readHeaderLine(r io.Reader) (string, error) {
	var line []byte
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", err
		}
		if b[0] == '\n' {
			return string(line), nil
		}
		line = append(line, b[0])
	}
}

// wavHeader is the canonical 44-byte PCM WAV header.
type wavHeader struct {
	RIFF        [4]byte
	FileSize    uint32
	WAVE        [4]byte
	Fmt         [4]byte
	FmtSize     uint32
	AudioFormat uint16
	Channels    uint16
	SampleRate  uint32
	ByteRate    uint32
	BlockAlign  uint16
	BitsPerSamp uint16
	Data        [4]byte
	DataSize    uint32
}

// pcmToWAV wraps raw PCM in a WAV container.
func pcmToWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	hdr := wavHeader{
		RIFF:        [4]byte{'R', 'I', 'F', 'F'},
		FileSize:    uint32(36 + len(pcm)),
		WAVE:        [4]byte{'W', 'A', 'V', 'E'},
		Fmt:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:     16,
		AudioFormat: 1, // PCM
		Channels:    uint16(channels),
		SampleRate:  uint32(sampleRate),
		ByteRate:    uint32(sampleRate * channels * bytesPerSample),
		BlockAlign:  uint16(channels * bytesPerSample),
		BitsPerSamp: uint16(bytesPerSample * 8),
		Data:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:    uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	_ = binary.Write(buf, binary.LittleEndian, hdr)
	buf.Write(pcm)
	return buf.Bytes()
}
