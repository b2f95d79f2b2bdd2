//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Open requests the line as an input with edge events and applies its
// current level right away.
func Open(target Sampler, opts Options) (*Switch, error) {
	if target == nil {
		return nil, fmt.Errorf("gpio: sampler is nil")
	}
	if opts.Line < 0 {
		return nil, fmt.Errorf("gpio: invalid line %d", opts.Line)
	}
	chip, err := gpiocdev.NewChip(opts.Chip, gpiocdev.WithConsumer("motionhub-sampling"))
	if err != nil {
		return nil, fmt.Errorf("gpio: open chip %s: %w", opts.Chip, err)
	}

	sw := newSwitch(target, fmt.Sprintf("%s:%d", opts.Chip, opts.Line))
	reqOpts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(10 * time.Millisecond),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			sw.apply(evt.Type == gpiocdev.LineEventRisingEdge)
		}),
	}
	if opts.ActiveLow {
		reqOpts = append(reqOpts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(opts.Line, reqOpts...)
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("gpio: request line %d on %s: %w", opts.Line, opts.Chip, err)
	}
	v, err := line.Value()
	if err != nil {
		_ = line.Close()
		_ = chip.Close()
		return nil, fmt.Errorf("gpio: read line %d: %w", opts.Line, err)
	}
	sw.apply(v == 1)
	sw.closer = func() error {
		err := line.Close()
		_ = chip.Close()
		return err
	}
	return sw, nil
}
