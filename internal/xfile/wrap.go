package xfile

import (
	"fmt"
	"os"

	"github.com/psantana5/xwrap/internal/logging"
)

// Option configures Wrap and Unwrap
type Option func(*options)

type options struct {
	checkSpace bool
	freeSpace  func(dir string) (uint64, error)
	logger     *logging.Logger
}

func buildOptions(opts []Option) *options {
	o := &options{
		freeSpace: diskFree,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithSpaceCheck makes the operation verify the output filesystem has
// room for the result before writing anything.
func WithSpaceCheck(enabled bool) Option {
	return func(o *options) {
		o.checkSpace = enabled
	}
}

// WithFreeSpaceFunc replaces the free-space probe used by WithSpaceCheck.
func WithFreeSpaceFunc(fn func(dir string) (uint64, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.freeSpace = fn
		}
	}
}

// WithLogger sets the logger for step tracing
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Result describes a file produced by Wrap or Unwrap
type Result struct {
	Op          string `json:"op" yaml:"op"`
	Input       string `json:"input" yaml:"input"`
	Output      string `json:"output" yaml:"output"`
	PayloadSize uint32 `json:"payload_size" yaml:"payload_size"`
	TotalSize   int64  `json:"total_size" yaml:"total_size"`
	Header      Header `json:"header" yaml:"header"`
}

// String renders the status line printed after a successful run.
func (r *Result) String() string {
	if r.Op == "unwrap" {
		return fmt.Sprintf("Extracted %s: %d bytes from %s", r.Output, r.TotalSize, r.Input)
	}
	return fmt.Sprintf("Created %s: %d bytes (text=%#x)", r.Output, r.TotalSize, r.PayloadSize)
}

// Wrap reads the raw payload at inputPath and writes it to outputPath
// behind a relocatable .X header. An existing output is replaced; a
// failed run leaves no partial output behind.
func Wrap(inputPath, outputPath string, opts ...Option) (*Result, error) {
	const op = "wrap"
	o := buildOptions(opts)
	log := o.logger.WithField("op", op)

	payload, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, newError(KindRead, op, inputPath, err)
	}
	log.Debug("Read payload", map[string]interface{}{"path": inputPath, "bytes": len(payload)})

	h, err := NewHeader(len(payload))
	if err != nil {
		return nil, newError(KindSizeOverflow, op, inputPath, err)
	}
	hdr := h.Bytes()
	total := int64(HeaderSize) + int64(len(payload))
	log.Debug("Built header", map[string]interface{}{"text_size": fmt.Sprintf("%#x", h.TextSize)})

	if o.checkSpace {
		if err := checkSpace(o.freeSpace, outputPath, uint64(total)); err != nil {
			return nil, newError(KindWrite, op, outputPath, err)
		}
	}

	if err := writeFileAtomic(outputPath, hdr[:], payload); err != nil {
		return nil, newError(KindWrite, op, outputPath, err)
	}
	log.Debug("Wrote executable", map[string]interface{}{"path": outputPath, "bytes": total})

	return &Result{
		Op:          op,
		Input:       inputPath,
		Output:      outputPath,
		PayloadSize: h.TextSize,
		TotalSize:   total,
		Header:      h,
	}, nil
}
