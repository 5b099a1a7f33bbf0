package mediacore

// MuxerEncoder mirrors the decoder on the write side (spec §4.9):
// out-of-core, surfaced as an interface only. The engine pulls frames
// and samples from the Composer at the encoder's advertised rate/block
// size until EOF and hands them here; mediacore never writes a
// container itself.
type MuxerEncoder interface {
	ConfigureVideo(info MediaInfo) error
	ConfigureAudio(info MediaInfo) error
	WriteVideoFrame(img Image, ptsMS int64) error
	WriteAudioBlock(b AudioBlock) error
	// AdvertisedFrameRate and AdvertisedBlockSize tell the core the
	// cadence at which it should pull from the Composer.
	AdvertisedFrameRate() Ratio
	AdvertisedBlockSize() int
	Close() error
}

type MuxerEncoderFactory func(outputPath string) (MuxerEncoder, error)

var defaultMuxerFactory MuxerEncoderFactory

func RegisterMuxerEncoderFactory(f MuxerEncoderFactory) { defaultMuxerFactory = f }

func NewMuxerEncoder(outputPath string) (MuxerEncoder, error) {
	if defaultMuxerFactory == nil {
		return nil, newErr(KindNotConfigured, "NewMuxerEncoder", "no muxer backend registered", nil)
	}
	return defaultMuxerFactory(outputPath)
}
