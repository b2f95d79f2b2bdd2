package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"motionhub/internal/config"
	"motionhub/internal/motion"
)

type motionSummary struct {
	Updates      int
	MaxGap       time.Duration
	GyroSources  map[string]int
	AccelSources map[string]int
	Last         motion.Snapshot
}

func summarizeSnapshots(snaps []motion.Snapshot) motionSummary {
	s := motionSummary{GyroSources: map[string]int{}, AccelSources: map[string]int{}}
	for i, snap := range snaps {
		s.Updates++
		if snap.GyroSource != "" {
			s.GyroSources[snap.GyroSource]++
		}
		if snap.AccelSource != "" {
			s.AccelSources[snap.AccelSource]++
		}
		if i > 0 {
			if gap := snap.UpdatedAt.Sub(snaps[i-1].UpdatedAt); gap > s.MaxGap {
				s.MaxGap = gap
			}
		}
		s.Last = snap
	}
	return s
}

// watchMotion runs the pipeline for d with network outputs off and prints
// what it saw.
func watchMotion(ctx context.Context, w io.Writer, cfg config.Config, d time.Duration) error {
	cfg.Web.Enable = false
	cfg.UDP.Enable = false
	cfg.MQTT.Enable = false
	cfg.GPIO.Enable = false

	dm, err := newDaemon(cfg)
	if err != nil {
		return err
	}
	defer dm.Close()

	var (
		mu    sync.Mutex
		snaps []motion.Snapshot
	)
	dm.svc.OnUpdate(func(s motion.Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if err := dm.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	mu.Lock()
	s := summarizeSnapshots(snaps)
	mu.Unlock()
	printMotionSummary(w, d, s)
	return nil
}

func printMotionSummary(w io.Writer, d time.Duration, s motionSummary) {
	fmt.Fprintf(w, "duration: %s\n", d)
	fmt.Fprintf(w, "updates: %d\n", s.Updates)
	fmt.Fprintf(w, "max_gap: %s\n", s.MaxGap)
	printCounts(w, "gyro_sources", s.GyroSources)
	printCounts(w, "accel_sources", s.AccelSources)
	if s.Updates == 0 {
		return
	}
	q := s.Last.Orientation
	fmt.Fprintf(w, "last_orientation: x=%.4f y=%.4f z=%.4f w=%.4f\n", q[0], q[1], q[2], q[3])
}

func printCounts(w io.Writer, label string, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", label)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, m[k])
	}
}
