package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"motionhub/internal/config"
	"motionhub/internal/ctrl"
	"motionhub/internal/sensor"
)

// settleTime lets evdev readers report their first frame before listing.
var settleTime = 300 * time.Millisecond

func listSensors(w io.Writer, cfg config.Config) error {
	host, closer, err := deviceHost(cfg.Device)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	st := ctrl.NewState()
	defer st.Close()
	if err := addSimControllers(st, cfg.Controllers.Sim); err != nil {
		return err
	}
	if cfg.Controllers.Evdev.Enable {
		wt := ctrl.NewWatcher(st, cfg.Controllers.Evdev.Dir, cfg.Controllers.Evdev.Rescan)
		if _, _, err := wt.Scan(); err != nil {
			fmt.Fprintf(w, "evdev scan failed: %v\n", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), settleTime)
		<-ctx.Done()
		cancel()
	}
	return writeSensorReport(w, cfg.Device.Backend, host, st)
}

func writeSensorReport(w io.Writer, backend string, host sensor.Host, st *ctrl.State) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "device backend: %s\n", backend)
	if host == nil {
		fmt.Fprintln(tw, "  (no device sensors)")
	} else {
		list, err := host.Sensors()
		if err != nil {
			fmt.Fprintf(tw, "  list failed: %v\n", err)
		}
		if err == nil && len(list) == 0 {
			fmt.Fprintln(tw, "  (no device sensors)")
		}
		for _, s := range list {
			fmt.Fprintf(tw, "  %d\t%s\t%s\n", s.Index, s.Kind, s.Name)
		}
	}

	infos := st.Controllers()
	fmt.Fprintf(tw, "controllers: %d\n", len(infos))
	for _, c := range infos {
		fmt.Fprintf(tw, "  %s\t%s\tgyro=%v\taccel=%v\ttimestamps=%v\n", c.ID, c.Name, c.HasGyro, c.HasAccel, c.Timestamps)
	}
	return tw.Flush()
}
