package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Plan is the on-disk state of a destination, computed before the
// request for it is sent.
type Plan struct {
	DestPath string
	Skip     bool  // destination exists and WithSkipExisting was set
	Offset   int64 // size of a partial file that can be resumed
	opts     options
}

// NewPlan applies optFns and inspects destPath and its partial file.
func NewPlan(destPath string, optFns ...Option) (*Plan, error) {
	if destPath == "" {
		return nil, errors.New("destPath must not be empty")
	}

	opts, err := applyOptions(optFns)
	if err != nil {
		return nil, fmt.Errorf("applying option: %w", err)
	}

	p := Plan{
		DestPath: destPath,
		opts:     opts,
	}

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			p.Skip = true
			return &p, nil
		}
	}

	if opts.resume {
		if info, err := os.Stat(p.partPath()); err == nil && info.Mode().IsRegular() {
			p.Offset = info.Size()
		}
	}

	return &p, nil
}

// RangeHeader returns the Range header value that asks the server for
// the remainder of a partial file, or "" when there is nothing to resume.
func (p *Plan) RangeHeader() string {
	if p.Offset <= 0 {
		return ""
	}

	return fmt.Sprintf("bytes=%d-", p.Offset)
}

// Write streams body to a temp file next to DestPath and renames it on
// success. resumed reports whether body continues the partial file at
// Offset (a 206 response) rather than starting from byte zero.
// On any error the temp file is removed, except for a resumable partial
// file whose content is still trustworthy.
func (p *Plan) Write(ctx context.Context, body io.Reader, contentLength int64, resumed bool, logger *slog.Logger) (Stats, error) {
	if p.Skip {
		logger.Info("skipping existing file", "path", p.DestPath)
		return Stats{Skipped: true}, nil
	}

	var offset int64
	if resumed {
		offset = p.Offset
	}

	if p.opts.maxSize > 0 && contentLength >= 0 && offset+contentLength > p.opts.maxSize {
		return Stats{}, &Error{
			Err:    ErrFileTooLarge,
			Detail: fmt.Sprintf("declared %d bytes, limit %d", offset+contentLength, p.opts.maxSize),
		}
	}

	if err := p.resetChecksum(resumed); err != nil {
		return Stats{}, err
	}

	file, err := p.open(resumed)
	if err != nil {
		return Stats{}, fmt.Errorf("creating temp file: %w", err)
	}

	var successful bool
	keepPartial := p.opts.resume
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing temp file", "error", err)
		}
		if !successful && !keepPartial {
			if err := os.Remove(file.Name()); err != nil {
				logger.Error("failed to remove temp file", "error", err)
			}
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &contextReader{ctx: ctx, r: body}
	if p.opts.inactivity > 0 {
		wd := newWatchdog(p.opts.inactivity, func() {
			cancel(ErrStalled)
			if c, ok := body.(io.Closer); ok {
				c.Close()
			}
		})
		defer wd.Stop()
		r.kick = wd.Kick
	}

	var src io.Reader = r
	if p.opts.maxSize > 0 {
		src = io.LimitReader(r, p.opts.maxSize-offset+1)
	}

	var writer io.Writer = file
	if p.opts.checksum != nil {
		writer = io.MultiWriter(writer, p.opts.checksum)
	}

	start := time.Now()
	if p.opts.progress || p.opts.progressFn != nil {
		total := contentLength
		if total >= 0 {
			total += offset
		}
		pw := &progressWriter{
			w:           writer,
			transferred: offset,
			total:       total,
			startTime:   start,
			fn:          p.opts.progressFn,
		}
		if p.opts.progress {
			pw.logger = logger.With("path", p.DestPath)
		}
		writer = pw
	}

	n, err := io.Copy(writer, src)
	if err != nil {
		switch {
		case errors.Is(context.Cause(ctx), ErrStalled):
			return Stats{}, &Error{
				Err:    ErrStalled,
				Detail: fmt.Sprintf("after %d bytes", offset+n),
			}
		case ctx.Err() != nil:
			return Stats{}, fmt.Errorf("%w: %w", ErrDownloadCancelled, context.Cause(ctx))
		default:
			return Stats{}, fmt.Errorf("copying file body: %w", err)
		}
	}

	if p.opts.maxSize > 0 && offset+n > p.opts.maxSize {
		keepPartial = false
		return Stats{}, &Error{
			Err:    ErrFileTooLarge,
			Detail: fmt.Sprintf("received more than %d bytes", p.opts.maxSize),
		}
	}

	if contentLength >= 0 && n != contentLength {
		return Stats{}, &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", contentLength, n),
		}
	}

	if err := p.opts.checksum.Verify(); err != nil {
		keepPartial = false
		return Stats{}, err
	}

	if err := file.Sync(); err != nil {
		return Stats{}, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return Stats{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(file.Name(), p.DestPath); err != nil {
		return Stats{}, fmt.Errorf("renaming temp file: %w", err)
	}

	successful = true

	return Stats{
		Bytes:    n,
		Total:    offset + n,
		Duration: time.Since(start),
		Resumed:  resumed,
		Checksum: p.opts.checksum.Sum(),
	}, nil
}

// Handle streams body to a temp file in the same directory as destPath,
// which is renamed on success. On any error the temp file is removed.
func Handle(ctx context.Context, body io.Reader, contentLength int64, destPath string, logger *slog.Logger, optFns ...Option) error {
	p, err := NewPlan(destPath, optFns...)
	if err != nil {
		return err
	}

	_, err = p.Write(ctx, body, contentLength, false, logger)

	return err
}

// Restart discards the partial file so the next Write starts from byte
// zero.
func (p *Plan) Restart() error {
	if err := os.Remove(p.partPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing partial file: %w", err)
	}
	p.Offset = 0

	return nil
}

func (p *Plan) partPath() string {
	return p.DestPath + ".part"
}

func (p *Plan) open(resumed bool) (*os.File, error) {
	if !p.opts.resume {
		return os.CreateTemp(filepath.Dir(p.DestPath), ".dl-*")
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resumed {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	return os.OpenFile(p.partPath(), flags, 0o644)
}

// resetChecksum clears the hash and, when resuming, feeds it the bytes
// already on disk so the digest covers the whole file.
func (p *Plan) resetChecksum(resumed bool) error {
	if p.opts.checksum == nil {
		return nil
	}

	p.opts.checksum.hash.Reset()
	if !resumed || p.Offset == 0 {
		return nil
	}

	f, err := os.Open(p.partPath())
	if err != nil {
		return fmt.Errorf("opening partial file: %w", err)
	}
	defer f.Close()

	if _, err := io.CopyN(p.opts.checksum, f, p.Offset); err != nil {
		return fmt.Errorf("hashing partial file: %w", err)
	}

	return nil
}
