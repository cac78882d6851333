package cache

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// codec holds pooled zstd encoders and decoders so cache traffic does not
// allocate a fresh compressor per operation.
type codec struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newCodec() *codec {
	return &codec{
		encoderPool: sync.Pool{
			New: func() any {
				e, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
				if err != nil {
					// Cannot fail with a nil writer and default options.
					panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
				}
				return e
			},
		},
		decoderPool: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}
}

func (c *codec) compress(data []byte) []byte {
	encoder := c.encoderPool.Get().(*zstd.Encoder)
	defer c.encoderPool.Put(encoder)

	return encoder.EncodeAll(data, nil)
}

func (c *codec) decompress(data []byte) ([]byte, error) {
	decoder := c.decoderPool.Get().(*zstd.Decoder)
	defer c.decoderPool.Put(decoder)

	result, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return result, nil
}
