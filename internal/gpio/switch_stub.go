//go:build !linux

package gpio

import "fmt"

func Open(target Sampler, opts Options) (*Switch, error) {
	return nil, fmt.Errorf("gpio: not supported on this platform")
}
