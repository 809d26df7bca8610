package xfile

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Info is the decoded view of an .X file on disk
type Info struct {
	Path        string `json:"path" yaml:"path"`
	Header      Header `json:"header" yaml:"header"`
	FileSize    int64  `json:"file_size" yaml:"file_size"`
	PayloadSize int64  `json:"payload_size" yaml:"payload_size"`
	// Consistent is true when the header's section sizes add up to the
	// bytes actually present after it.
	Consistent bool `json:"consistent" yaml:"consistent"`
}

// Inspect decodes the header of the .X file at path.
func Inspect(path string) (*Info, error) {
	const op = "inspect"

	f, err := os.Open(path)
	if err != nil {
		return nil, newError(KindRead, op, path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, newError(KindRead, op, path, err)
	}
	if !st.Mode().IsRegular() {
		return nil, newError(KindFormat, op, path, ErrNotRegular)
	}

	h, err := ReadHeader(f)
	if err != nil {
		return nil, newError(headerErrKind(err), op, path, err)
	}

	payload := st.Size() - HeaderSize
	return &Info{
		Path:        path,
		Header:      h,
		FileSize:    st.Size(),
		PayloadSize: payload,
		Consistent:  h.ImageSize() == uint64(payload),
	}, nil
}

// Unwrap copies the text and data sections of the .X file at inputPath
// to outputPath, recovering the payload Wrap was given.
func Unwrap(inputPath, outputPath string, opts ...Option) (*Result, error) {
	const op = "unwrap"
	o := buildOptions(opts)
	log := o.logger.WithField("op", op)

	f, err := os.Open(inputPath)
	if err != nil {
		return nil, newError(KindRead, op, inputPath, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, newError(KindRead, op, inputPath, err)
	}
	if !st.Mode().IsRegular() {
		return nil, newError(KindFormat, op, inputPath, ErrNotRegular)
	}

	h, err := ReadHeader(f)
	if err != nil {
		return nil, newError(headerErrKind(err), op, inputPath, err)
	}

	size := uint64(h.TextSize) + uint64(h.DataSize)
	if avail := uint64(st.Size() - HeaderSize); size > avail {
		return nil, newError(KindFormat, op, inputPath,
			fmt.Errorf("header declares %d payload bytes, file has %d", size, avail))
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(f, payload); err != nil {
		return nil, newError(KindRead, op, inputPath, err)
	}
	log.Debug("Read sections", map[string]interface{}{
		"path": inputPath,
		"text": h.TextSize,
		"data": h.DataSize,
	})

	if o.checkSpace {
		if err := checkSpace(o.freeSpace, outputPath, size); err != nil {
			return nil, newError(KindWrite, op, outputPath, err)
		}
	}
	if err := writeFileAtomic(outputPath, payload); err != nil {
		return nil, newError(KindWrite, op, outputPath, err)
	}
	log.Debug("Wrote payload", map[string]interface{}{"path": outputPath, "bytes": size})

	return &Result{
		Op:          op,
		Input:       inputPath,
		Output:      outputPath,
		PayloadSize: h.TextSize,
		TotalSize:   int64(size),
		Header:      h,
	}, nil
}

func headerErrKind(err error) Kind {
	if errors.Is(err, ErrShortHeader) || errors.Is(err, ErrBadMagic) {
		return KindFormat
	}
	return KindRead
}
