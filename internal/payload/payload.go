// Package payload frames arbitrary bytes into the even-length body the word
// codec carries, optionally compressing it first.
//
// Layout:
//
//	[compression u8][uvarint original length][body][0x80][0x00 if needed]
//
// The 0x80 terminator and the optional zero byte make the frame length even
// and are removed unambiguously on Open.
package payload

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// MaxSize bounds the declared original length so that frames decoded under
// a mismatched seed cannot request huge allocations.
const MaxSize = 16 << 20

const terminator = 0x80

var (
	ErrMalformed          = errors.New("payload: malformed frame")
	ErrUnknownCompression = errors.New("payload: unknown compression")
	errIncompressible     = errors.New("payload: data is incompressible")
)

// Compression identifies how a frame body is stored. Values are part of the
// frame format.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("payload: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxSize))
	if err != nil {
		panic("payload: zstd decoder initialization failed: " + err.Error())
	}
}

// Seal frames data. When the requested compression does not shrink the
// data the body is stored uncompressed.
func Seal(data []byte, c Compression) ([]byte, error) {
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformed, len(data), MaxSize)
	}

	body := data
	if c != CompressionNone {
		compressed, err := compress(data, c)
		switch {
		case errors.Is(err, errIncompressible):
			c = CompressionNone
		case err != nil:
			return nil, err
		default:
			body = compressed
		}
	}

	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(body)+2)
	out = append(out, byte(c))
	out = binary.AppendUvarint(out, uint64(len(data)))
	out = append(out, body...)
	out = append(out, terminator)
	if len(out)%2 == 1 {
		out = append(out, 0)
	}
	return out, nil
}

// Open reverses Seal.
func Open(frame []byte) ([]byte, error) {
	if n := len(frame); n > 0 && frame[n-1] == 0 {
		frame = frame[:n-1]
	}
	if len(frame) < 3 || frame[len(frame)-1] != terminator {
		return nil, fmt.Errorf("%w: missing terminator", ErrMalformed)
	}
	frame = frame[:len(frame)-1]

	c := Compression(frame[0])
	size, n := binary.Uvarint(frame[1:])
	if n <= 0 || size > MaxSize {
		return nil, fmt.Errorf("%w: bad length header", ErrMalformed)
	}
	body := frame[1+n:]

	switch c {
	case CompressionNone:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("%w: body is %d bytes, header says %d", ErrMalformed, len(body), size)
		}
		return body, nil
	case CompressionLZ4:
		return decompressLZ4(body, int(size))
	case CompressionZstd:
		return decompressZstd(body, int(size))
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownCompression, c)
	}
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownCompression, c)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return dst[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrMalformed, err)
	}
	if read != size {
		return nil, fmt.Errorf("%w: lz4 produced %d bytes, expected %d", ErrMalformed, read, size)
	}
	return dst, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrMalformed, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: zstd produced %d bytes, expected %d", ErrMalformed, len(out), size)
	}
	return out, nil
}
