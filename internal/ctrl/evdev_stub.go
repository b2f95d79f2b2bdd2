//go:build !linux

package ctrl

import "errors"

var errEvdevUnsupported = errors.New("ctrl: evdev unsupported on this platform")

func listEventNodes(dir string) ([]string, error) { return nil, errEvdevUnsupported }

func openMotionNode(path string) (motionNode, error) { return nil, errEvdevUnsupported }

func isNotMotionNode(err error) bool { return false }
