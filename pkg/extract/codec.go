package extract

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"compress/lzw"
	"io"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"
)

// headerSize is how many leading bytes of a download are inspected to
// recognize its format.
const headerSize = 8

var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// codec is a stream compression format recognized by its magic number.
type codec struct {
	name  string
	magic []byte
	open  func(r io.Reader, header []byte) (io.Reader, error)
}

var codecs = []codec{
	{
		name:  "gzip",
		magic: []byte{0x1F, 0x8B},
		open: func(r io.Reader, _ []byte) (io.Reader, error) {
			return gzip.NewReader(r)
		},
	},
	{
		name:  "bzip2",
		magic: []byte{0x42, 0x5A},
		open: func(r io.Reader, _ []byte) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		},
	},
	{
		name:  "xz",
		magic: []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00},
		open: func(r io.Reader, _ []byte) (io.Reader, error) {
			return xz.NewReader(r)
		},
	},
	{
		name:  "lz4",
		magic: []byte{0x04, 0x22, 0x4D, 0x18},
		open: func(r io.Reader, _ []byte) (io.Reader, error) {
			return lz4.NewReader(r), nil
		},
	},
	{
		// unix compress(1)
		name:  "lzw",
		magic: []byte{0x1F, 0x9D},
		open: func(r io.Reader, header []byte) (io.Reader, error) {
			// the high 3 bits of the third byte carry the literal width, which is at least 9
			litWidth := int(header[2]>>5) + 9
			return lzw.NewReader(r, lzw.MSB, litWidth), nil
		},
	},
}

// detectCodec returns the compression format header starts with, or nil for
// an uncompressed stream. header is zero padded to headerSize bytes.
func detectCodec(header []byte) *codec {
	for i := range codecs {
		if bytes.HasPrefix(header, codecs[i].magic) {
			return &codecs[i]
		}
	}
	return nil
}
