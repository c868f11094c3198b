package graph

import (
	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
)

// DetrendMode selects the trend model Detrend subtracts from each block.
type DetrendMode int

const (
	// DetrendConstant subtracts the mean of a block's valid samples.
	DetrendConstant DetrendMode = iota
	// DetrendLinear subtracts the least-squares line fit through a
	// block's valid samples.
	DetrendLinear
)

// Detrend is a sink+source that removes a constant or linear trend from
// each incoming StreamBlock's raw samples, working off the Pool so the
// least-squares fit never runs on the channel-read goroutine.
type Detrend struct {
	log         zerolog.Logger
	mode        DetrendMode
	pool        *Pool
	sub         *ringbuf.Subscription[model.StreamBlock]
	broadcaster *ringbuf.Broadcaster[model.StreamBlock]
	done        chan struct{}
}

// NewDetrend starts a Detrend node reading from src.
func NewDetrend(src StreamSource, mode DetrendMode, capacity int, log zerolog.Logger) *Detrend {
	d := &Detrend{
		log:         log,
		mode:        mode,
		pool:        NewPool(capacity),
		sub:         src.SubscribeStreams(),
		broadcaster: ringbuf.NewBroadcaster[model.StreamBlock](capacity),
		done:        make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Detrend) run() {
	defer close(d.done)
	for {
		blk, lag, ok := d.sub.Next()
		if !ok {
			break
		}
		if lag > 0 {
			d.log.Warn().Int("lag", lag).Msg("detrend input lagged")
		}
		d.pool.Submit(func() { d.broadcaster.Publish(d.process(blk)) })
	}
	d.pool.Close()
	d.broadcaster.Close()
}

func (d *Detrend) process(blk model.StreamBlock) model.StreamBlock {
	values, valid := blockToFloat64(blk)
	switch d.mode {
	case DetrendLinear:
		detrendLinear(values, valid)
	default:
		detrendConstant(values, valid)
	}
	out := blk.Clone()
	writeFloat64(&out, values, valid)
	return out
}

func detrendConstant(values []float64, valid []bool) {
	var sum float64
	var count int
	for i, v := range values {
		if valid[i] {
			sum += v
			count++
		}
	}
	if count == 0 {
		return
	}
	mean := sum / float64(count)
	for i := range values {
		if valid[i] {
			values[i] -= mean
		}
	}
}

func detrendLinear(values []float64, valid []bool) {
	var count int
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		if !valid[i] {
			continue
		}
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
		count++
	}
	if count < 2 {
		detrendConstant(values, valid)
		return
	}
	n := float64(count)
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		detrendConstant(values, valid)
		return
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n
	for i, v := range values {
		if valid[i] {
			values[i] = v - (slope*float64(i) + intercept)
		}
	}
}

// SubscribeStreams implements StreamSource.
func (d *Detrend) SubscribeStreams() *ringbuf.Subscription[model.StreamBlock] {
	return d.broadcaster.Subscribe()
}

// Stop terminates Detrend's worker at its next suspension point.
func (d *Detrend) Stop() {
	d.sub.Close()
	<-d.done
}
