// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package streams

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// zstdMagic starts every zstd frame
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var zstdDecoder = func() *zstd.Decoder {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic("streams: zstd decoder initialization failed: " + err.Error())
	}
	return dec
}()

// Entry is one archived packet with the bytes that preceded it
type Entry struct {
	Offset      int
	OtherHeader []byte
	Packet      *pus.Packet
}

// FileInput reads packets from an archive file. Each packet may be preceded
// by a fixed size header from another layer. Archives compressed with zstd
// are detected by their frame magic.
type FileInput struct {
	path            string
	opts            pus.DecodeOptions
	otherHeaderSize int
}

// NewFileInput creates an archive reader. Packets are decoded with opts;
// field validation is skipped so archived anomalies can still be listed.
func NewFileInput(path string, opts pus.DecodeOptions, otherHeaderSize int) *FileInput {
	opts.ValidateFields = false
	return &FileInput{path: path, opts: opts, otherHeaderSize: otherHeaderSize}
}

func (f *FileInput) load() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	data, err = zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", f.path, err)
	}
	return data, nil
}

// All iterates over the archive. Iteration stops after the first error.
func (f *FileInput) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		data, err := f.load()
		if err != nil {
			yield(Entry{}, err)
			return
		}
		offset := 0
		for offset < len(data) {
			entry, n, err := f.decode(data, offset)
			if !yield(entry, err) || err != nil {
				return
			}
			offset += n
		}
	}
}

// Entries reads the whole archive
func (f *FileInput) Entries() ([]Entry, error) {
	var entries []Entry
	for entry, err := range f.All() {
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Read decodes the packet whose other header starts at offset
func (f *FileInput) Read(offset int) (*pus.Packet, error) {
	data, err := f.load()
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= len(data) {
		return nil, fmt.Errorf("offset %d outside archive of %d bytes", offset, len(data))
	}
	entry, _, err := f.decode(data, offset)
	return entry.Packet, err
}

func (f *FileInput) decode(data []byte, offset int) (Entry, int, error) {
	start := offset + f.otherHeaderSize
	if start > len(data) {
		return Entry{}, 0, fmt.Errorf("%w: other header at offset %d", pus.ErrIncompletePacket, offset)
	}
	packet, n, err := pus.Deserialize(data[start:], f.opts)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("packet at offset %d: %w", offset, err)
	}
	entry := Entry{
		Offset:      offset,
		OtherHeader: bytes.Clone(data[offset:start]),
		Packet:      packet,
	}
	return entry, f.otherHeaderSize + n, nil
}

// FileOutput appends packets to an archive file, optionally zstd compressed
type FileOutput struct {
	mu              sync.Mutex
	file            *os.File
	buf             *bufio.Writer
	zw              *zstd.Encoder
	w               io.Writer
	otherHeaderSize int
}

// CreateFileOutput creates or truncates an archive at path
func CreateFileOutput(path string, otherHeaderSize int, compress bool) (*FileOutput, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	out := &FileOutput{file: file, buf: bufio.NewWriter(file), otherHeaderSize: otherHeaderSize}
	out.w = out.buf
	if compress {
		out.zw, err = zstd.NewWriter(out.buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		out.w = out.zw
	}
	return out, nil
}

// Write archives packet behind a zeroed other header
func (o *FileOutput) Write(packet *pus.Packet) error {
	return o.WriteWithHeader(nil, packet)
}

// WriteWithHeader archives packet behind header, which is zero padded or
// truncated to the archive's other header size
func (o *FileOutput) WriteWithHeader(header []byte, packet *pus.Packet) error {
	raw, err := packet.Serialize()
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}
	other := make([]byte, o.otherHeaderSize)
	copy(other, header)

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(other); err != nil {
		return err
	}
	_, err = o.w.Write(raw)
	return err
}

// Close flushes and closes the archive
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	if o.zw != nil {
		errs = append(errs, o.zw.Close())
	}
	errs = append(errs, o.buf.Flush(), o.file.Close())
	return errors.Join(errs...)
}
