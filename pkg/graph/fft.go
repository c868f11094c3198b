package graph

import (
	"math"
	"math/cmplx"
	"strconv"
	"time"

	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/pkg/liberrors"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
)

// FFT is a sink+source that windows each incoming StreamBlock into
// non-overlapping windows of windowSize samples and emits one readout per
// window holding the magnitude spectrum, one component per frequency bin.
type FFT struct {
	log         zerolog.Logger
	windowSize  int
	pool        *Pool
	sub         *ringbuf.Subscription[model.StreamBlock]
	broadcaster *ringbuf.Broadcaster[*model.Readout]
	done        chan struct{}
}

// NewFFT starts an FFT node reading from src. windowSize must be a power of
// two of at least 2.
func NewFFT(src StreamSource, windowSize int, capacity int, log zerolog.Logger) (*FFT, error) {
	if windowSize < 2 || windowSize&(windowSize-1) != 0 {
		return nil, &liberrors.ErrGraphConstruction{Reason: "FFT window size must be a power of two"}
	}
	f := &FFT{
		log:         log,
		windowSize:  windowSize,
		pool:        NewPool(capacity),
		sub:         src.SubscribeStreams(),
		broadcaster: ringbuf.NewBroadcaster[*model.Readout](capacity),
		done:        make(chan struct{}),
	}
	go f.run()
	return f, nil
}

func (f *FFT) run() {
	defer close(f.done)
	for {
		blk, lag, ok := f.sub.Next()
		if !ok {
			break
		}
		if lag > 0 {
			f.log.Warn().Int("lag", lag).Msg("fft input lagged")
		}
		f.pool.Submit(func() { f.process(blk) })
	}
	f.pool.Close()
	f.broadcaster.Close()
}

func (f *FFT) process(blk model.StreamBlock) {
	n := blk.Data.Len()
	windows := n / f.windowSize
	if dropped := n - windows*f.windowSize; dropped > 0 {
		f.log.Warn().Int("dropped_samples", dropped).Msg("fft dropping trailing partial window")
	}
	sampleRate := 1.0 / blk.Period.Seconds()

	for w := 0; w < windows; w++ {
		base := w * f.windowSize
		buf := make([]complex128, f.windowSize)
		for i := 0; i < f.windowSize; i++ {
			norm, _ := normalisedValue(blk, base+i)
			buf[i] = complex(norm*blk.Scale.Magnitude, 0)
		}
		fftInPlace(buf)

		ts := blk.T0.Add(time.Duration(base)*blk.Period + time.Duration(f.windowSize)*blk.Period/2)
		r := model.NewReadout(ts, blk.Path)
		for k := 0; k <= f.windowSize/2; k++ {
			mag := cmplx.Abs(buf[k]) / (float64(f.windowSize) / 2)
			if k == 0 || k == f.windowSize/2 {
				mag /= 2
			}
			freq := float64(k) * sampleRate / float64(f.windowSize)
			r.Set(formatBinName(freq), model.Value{Magnitude: mag, Unit: blk.Scale.Unit})
		}
		f.broadcaster.Publish(r)
	}
}

func formatBinName(freqHz float64) string {
	return strconv.FormatFloat(freqHz, 'f', 3, 64) + "Hz"
}

// fftInPlace computes the iterative radix-2 Cooley-Tukey FFT of buf, whose
// length must be a power of two.
func fftInPlace(buf []complex128) {
	n := len(buf)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		angleStep := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := cmplx.Rect(1, angleStep*float64(k))
				even := buf[start+k]
				odd := buf[start+k+half] * w
				buf[start+k] = even + odd
				buf[start+k+half] = even - odd
			}
		}
	}
}

// SubscribeSamples implements SampleSource.
func (f *FFT) SubscribeSamples() *ringbuf.Subscription[*model.Readout] {
	return f.broadcaster.Subscribe()
}

// Stop terminates FFT's worker at its next suspension point.
func (f *FFT) Stop() {
	f.sub.Close()
	<-f.done
}
