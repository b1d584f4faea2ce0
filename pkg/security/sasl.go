package security

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/bufpool"
)

// SASLProvider frames a negotiated SASL layer on the wire. Each unit is a
// 4-byte big-endian length followed by the wrapped bytes.
type SASLProvider struct {
	raw          RawChannel
	layer        auth.SecurityLayer
	writeTimeout time.Duration
	metrics      *Metrics

	// Read side, serialized by the caller.
	frames  *frameBuffer
	readBuf []byte
	pending []byte // unwrapped bytes not yet returned
	current []byte // pooled frame backing pending
	readErr error

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewSASLProvider installs layer on raw. The provider owns layer and
// disposes it on Close.
func NewSASLProvider(raw RawChannel, layer auth.SecurityLayer, opts Options) *SASLProvider {
	opts.Metrics.ProviderInstalled(NameSASL)
	return &SASLProvider{
		raw:          raw,
		layer:        layer,
		writeTimeout: opts.writeTimeout(),
		metrics:      opts.Metrics,
		frames:       newFrameBuffer(opts.maxFrameSize()),
		readBuf:      bufpool.Get(bufpool.FrameSize),
	}
}

func (s *SASLProvider) Name() string   { return NameSASL }
func (s *SASLProvider) IsSecure() bool { return true }

// SSF is the strength of the layer or of the channel below it, whichever
// is greater.
func (s *SASLProvider) SSF() int {
	ssf := s.layer.SSF()
	if cs, ok := s.raw.(auth.ChannelSecurity); ok && cs.SSF() > ssf {
		ssf = cs.SSF()
	}
	return ssf
}

// QOP reports the negotiated protection.
func (s *SASLProvider) QOP() string { return s.layer.QOP() }

func (s *SASLProvider) ClientCertificateChain() []*x509.Certificate {
	if cs, ok := s.raw.(auth.ChannelSecurity); ok {
		return cs.ClientCertificateChain()
	}
	return nil
}

// Read returns unwrapped bytes, reading and reassembling frames from the
// transport as needed.
func (s *SASLProvider) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(s.pending) == 0 {
		s.recycleCurrent()

		if frame := s.frames.next(); frame != nil {
			plain, err := s.layer.Unwrap(frame)
			if err != nil {
				bufpool.Put(frame)
				s.metrics.RecordError(NameSASL, reasonUnwrap)
				logger.Debug("SASL frame rejected", logger.KeyFrameLen, len(frame), logger.Err(err))
				if !errors.Is(err, auth.ErrFraming) {
					err = fmt.Errorf("%w: %v", auth.ErrFraming, err)
				}
				return 0, err
			}
			s.metrics.RecordFrame(dirInbound, len(frame))
			s.current = frame
			s.pending = plain
			continue
		}

		if s.readErr != nil {
			s.frames.release()
			return 0, s.readErr
		}

		n, err := s.raw.Read(s.readBuf)
		if n > 0 {
			if ferr := s.frames.feed(s.readBuf[:n]); ferr != nil {
				s.metrics.RecordError(NameSASL, reasonFraming)
				s.readErr = ferr
				return 0, ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && s.frames.neededBytes() > 0 {
				err = io.ErrUnexpectedEOF
			}
			s.readErr = err
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *SASLProvider) recycleCurrent() {
	if s.current != nil {
		bufpool.Put(s.current)
		s.current = nil
	}
}

func (s *SASLProvider) Write(p []byte) (int, error) {
	return s.WriteWithDeadline(p, time.Now().Add(s.writeTimeout))
}

// WriteWithDeadline splits p into chunks of at most MaxSendSize bytes and
// writes each as its own frame. The count returned is of application bytes
// whose frames reached the transport.
func (s *SASLProvider) WriteWithDeadline(p []byte, deadline time.Time) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	chunkSize := s.layer.MaxSendSize()
	if chunkSize <= 0 {
		return 0, fmt.Errorf("%w: layer accepts no data", auth.ErrFraming)
	}

	written := 0
	for written < len(p) {
		end := min(written+chunkSize, len(p))
		wrapped, err := s.layer.Wrap(p[written:end])
		if err != nil {
			s.metrics.RecordError(NameSASL, reasonWrap)
			return written, err
		}

		out := appendFrame(bufpool.Get(frameHeaderLen + len(wrapped))[:0], wrapped)
		err = writeFull(s.raw, out, deadline)
		bufpool.Put(out)
		if err != nil {
			if errors.Is(err, ErrWriteTimeout) {
				s.metrics.RecordError(NameSASL, reasonWriteTimeout)
				logger.Warn("SASL write timed out, closing connection", logger.KeyFrameLen, len(wrapped))
				_ = s.Close()
			}
			return written, err
		}
		s.metrics.RecordFrame(dirOutbound, len(wrapped))
		written = end
	}
	return written, nil
}

// SetWriteDeadline lets another provider be stacked on this one.
func (s *SASLProvider) SetWriteDeadline(t time.Time) error {
	return s.raw.SetWriteDeadline(t)
}

// Close disposes the layer and closes the transport exactly once. Read
// buffers are left to the garbage collector since a write timeout may
// close the provider while a reader is blocked on the transport.
func (s *SASLProvider) Close() error {
	s.closeOnce.Do(func() {
		layerErr := s.layer.Dispose()
		rawErr := s.raw.Close()
		s.closeErr = errors.Join(layerErr, rawErr)
		s.metrics.ProviderRemoved(NameSASL)
	})
	return s.closeErr
}
