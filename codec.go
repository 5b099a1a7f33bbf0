package mediacore

import "context"

// Packet is one demuxed, still-encoded unit of data tagged with its
// presentation timestamp (in stream time-base units) and stream index.
type Packet struct {
	Data       []byte
	PTS        int64
	StreamIdx  int
	IsVideo    bool
	IsKeyFrame bool
}

// Frame is one decoded (but not yet converted) unit: raw planes plus pts.
type Frame struct {
	Planes [][]byte
	PTS    int64
	Dur    int64
	IsEOF  bool // sentinel frame, PTS == math.MaxInt64
}

// Codec is the external decode capability (spec §6 "Codec library
// capability"): demux, decode, and the sws/swr-equivalent converters.
// mediacore never implements a container parser itself; it only defines
// the shape a codec library adapter must expose.
type Codec interface {
	// OpenFormat probes url and returns stream info for all contained
	// streams.
	OpenFormat(ctx context.Context, url string) ([]MediaInfo, error)
	Close() error

	// Seek requests the demuxer jump to ts (stream time-base units) on
	// streamIdx.
	Seek(streamIdx int, ts int64) error
	ReadPacket(ctx context.Context) (Packet, error) // io.EOF at end of stream

	OpenDecoder(streamIdx int, hwAccel bool) error
	SendPacket(p Packet) error
	ReceiveFrame() (Frame, error)
	FlushDecoder() error

	// ConvertVideo runs the sws_scale-equivalent into outFmt/outW/outH.
	ConvertVideo(f Frame, outW, outH int, outFmt PixFmt, interp InterpMode) (Image, error)
	// ConvertAudio runs the swr-equivalent into the target layout.
	ConvertAudio(f Frame, channels, sampleRate int, fmt SampleFormat) (AudioBlock, error)
}

// InterpMode selects the scaling/interpolation kernel used by a Codec's
// image converter and by VideoTransformFilter's Scale stage.
type InterpMode int

const (
	InterpNearest InterpMode = iota
	InterpBilinear
	InterpBicubic
)

// CodecFactory constructs a fresh, unopened Codec instance. Backends
// register themselves here so callers never import a build-tagged
// package directly.
type CodecFactory func() Codec

var defaultCodecFactory CodecFactory

// RegisterCodecFactory installs the process-wide default Codec
// constructor; build-tagged backend packages call this from an init().
func RegisterCodecFactory(f CodecFactory) { defaultCodecFactory = f }

// NewCodec constructs a Codec using the registered factory, failing if
// no backend package has been imported for its side effect.
func NewCodec() (Codec, error) {
	if defaultCodecFactory == nil {
		return nil, newErr(KindNotConfigured, "NewCodec", "no codec backend registered", nil)
	}
	return defaultCodecFactory(), nil
}
