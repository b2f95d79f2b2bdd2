package ctrl

import (
	"context"
	"log"
	"time"
)

// DefaultInputDir holds the evdev character devices.
const DefaultInputDir = "/dev/input"

type motionNode interface {
	Reader
	Info() Info
	Failed() error
	Close() error
}

// Watcher hot-plugs evdev motion-sensor nodes into a State.
type Watcher struct {
	dir   string
	every time.Duration
	state *State

	list func(dir string) ([]string, error)
	open func(path string) (motionNode, error)

	owned map[string]motionNode
	// ignored holds listed paths that are not motion nodes or whose reader
	// failed. An entry is cleared once the path leaves the listing.
	ignored map[string]bool
}

func NewWatcher(st *State, dir string, every time.Duration) *Watcher {
	if dir == "" {
		dir = DefaultInputDir
	}
	if every <= 0 {
		every = 2 * time.Second
	}
	return &Watcher{
		dir:     dir,
		every:   every,
		state:   st,
		list:    listEventNodes,
		open:    openMotionNode,
		owned:   make(map[string]motionNode),
		ignored: make(map[string]bool),
	}
}

// Scan adds newly plugged motion nodes and drops ones that went away or
// stopped delivering events.
func (w *Watcher) Scan() (added, removed int, err error) {
	paths, err := w.list(w.dir)
	if err != nil {
		return 0, 0, err
	}
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[p] = true
	}

	for p, node := range w.owned {
		if present[p] && node.Failed() == nil {
			continue
		}
		if err := node.Failed(); err != nil {
			log.Printf("ctrl: controller %q disconnected: %v", node.Info().Name, err)
		} else {
			log.Printf("ctrl: controller %q disconnected", node.Info().Name)
		}
		w.state.Remove(node.Info().ID)
		delete(w.owned, p)
		removed++
		if present[p] {
			// Still listed: wait for the path to go away before reopening.
			w.ignored[p] = true
		}
	}
	for p := range w.ignored {
		if !present[p] {
			delete(w.ignored, p)
		}
	}

	for _, p := range paths {
		if _, ok := w.owned[p]; ok || w.ignored[p] {
			continue
		}
		node, err := w.open(p)
		if err != nil {
			if isNotMotionNode(err) {
				w.ignored[p] = true
			}
			continue
		}
		info := node.Info()
		if err := w.state.Add(info, node); err != nil {
			log.Printf("ctrl: %v", err)
			_ = node.Close()
			continue
		}
		w.owned[p] = node
		added++
		log.Printf("ctrl: controller %q connected (gyro=%v accel=%v)", info.Name, info.HasGyro, info.HasAccel)
	}
	return added, removed, nil
}

// Run rescans until ctx is done, then removes every node it added.
func (w *Watcher) Run(ctx context.Context) {
	if _, _, err := w.Scan(); err != nil {
		log.Printf("ctrl: evdev scan failed: %v", err)
	}
	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			for p, node := range w.owned {
				w.state.Remove(node.Info().ID)
				delete(w.owned, p)
			}
			return
		case <-t.C:
			_, _, _ = w.Scan()
		}
	}
}
