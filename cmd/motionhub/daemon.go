package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"motionhub/internal/config"
	"motionhub/internal/ctrl"
	"motionhub/internal/gpio"
	"motionhub/internal/motion"
	"motionhub/internal/mqttpub"
	"motionhub/internal/sensor"
	"motionhub/internal/sensor/icm20948"
	"motionhub/internal/udp"
	"motionhub/internal/web"
)

type daemon struct {
	cfg config.Config

	host       sensor.Host
	hostCloser io.Closer

	controllers *ctrl.State
	watcher     *ctrl.Watcher
	state       *motion.State
	svc         *motion.Service
	running     atomic.Bool

	logs   *web.LogBuffer
	stream *web.SnapshotBroadcaster
	udp    *udp.Broadcaster
	mqtt   *mqttpub.Publisher
	sw     *gpio.Switch
}

// deviceHost builds the configured device sensor backend. The closer is
// nil when the backend holds nothing open.
func deviceHost(dc config.DeviceConfig) (sensor.Host, io.Closer, error) {
	switch dc.Backend {
	case config.BackendIIO:
		return sensor.NewIIOHost(dc.IIORoot), nil, nil
	case config.BackendICM20948:
		h := sensor.NewICM20948Host(dc.I2CBus, dc.I2CAddr, icm20948.Options{
			GyroFullScaleDPS: dc.GyroFullScaleDPS,
			AccelFullScaleG:  dc.AccelFullScaleG,
			SampleRateHz:     dc.SampleRateHz,
		})
		return h, h, nil
	case config.BackendSim:
		return sensor.NewSimHost(dc.Sim.Accel, dc.Sim.Gyro, dc.Sim.Timestamps), nil, nil
	case config.BackendNone:
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown device backend %q", dc.Backend)
}

func addSimControllers(st *ctrl.State, list []config.SimControllerConfig) error {
	for _, c := range list {
		host := sensor.NewSimHost(c.Accel, c.Gyro, c.Timestamps)
		var r ctrl.Reader = ctrl.NewSimReader(host)
		if c.Timestamps {
			r = ctrl.NewSimTimestampedReader(host)
		}
		info := ctrl.Info{ID: "sim:" + c.ID, Name: c.Name, HasGyro: c.Gyro, HasAccel: c.Accel}
		if err := st.Add(info, r); err != nil {
			return err
		}
		log.Printf("ctrl: controller %q connected (gyro=%v accel=%v)", info.Name, info.HasGyro, info.HasAccel)
	}
	return nil
}

func motionConfig(mc config.MotionConfig) motion.Config {
	return motion.Config{
		Correction: motion.Correction{
			Kp:             mc.Kp,
			RestThreshold:  mc.RestThreshold,
			BiasLearnRate:  mc.BiasLearnRate,
			MaxSampleDelta: mc.MaxSampleDelta,
		},
		BiasCorrection: mc.BiasCorrection == nil || *mc.BiasCorrection,
		Sampling:       !mc.StartPaused,
	}
}

func newDaemon(cfg config.Config) (*daemon, error) {
	rt := &daemon{cfg: cfg, controllers: ctrl.NewState()}

	if cfg.Web.Enable {
		rt.logs = web.NewLogBuffer(2000)
		log.SetOutput(io.MultiWriter(os.Stderr, rt.logs))
		rt.stream = web.NewSnapshotBroadcaster()
	}

	host, closer, err := deviceHost(cfg.Device)
	if err != nil {
		return nil, err
	}
	rt.host, rt.hostCloser = host, closer

	if err := addSimControllers(rt.controllers, cfg.Controllers.Sim); err != nil {
		rt.Close()
		return nil, err
	}
	if cfg.Controllers.Evdev.Enable {
		rt.watcher = ctrl.NewWatcher(rt.controllers, cfg.Controllers.Evdev.Dir, cfg.Controllers.Evdev.Rescan)
	}

	rt.state = motion.New(host, motionConfig(cfg.Motion))
	rt.svc = motion.NewService(rt.state, rt.controllers, cfg.Motion.Interval)
	if rt.stream != nil {
		rt.svc.OnUpdate(rt.stream.Publish)
	}

	if cfg.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.UDP.Dest, cfg.UDP.Interval)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("udp broadcaster init failed: %w", err)
		}
		rt.udp = b
		rt.svc.OnUpdate(b.Publish)
		log.Printf("udp dest=%s interval=%s", cfg.UDP.Dest, cfg.UDP.Interval)
	}

	if cfg.MQTT.Enable {
		p, err := mqttpub.Connect(mqttpub.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Retain:   cfg.MQTT.Retain,
			Interval: cfg.MQTT.Interval,
		})
		if err != nil {
			// The broker is optional; keep serving without it.
			log.Printf("mqtt disabled: %v", err)
		} else {
			rt.mqtt = p
			rt.svc.OnUpdate(p.Publish)
		}
	}

	if cfg.GPIO.Enable {
		sw, err := gpio.Open(rt.state, gpio.Options{Chip: cfg.GPIO.Chip, Line: cfg.GPIO.Line, ActiveLow: cfg.GPIO.ActiveLow})
		if err != nil {
			log.Printf("gpio sampling switch disabled: %v", err)
		} else {
			rt.sw = sw
		}
	}
	return rt, nil
}

// Run blocks until ctx is done or the motion service stops.
func (rt *daemon) Run(ctx context.Context) error {
	rt.running.Store(true)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if rt.watcher != nil {
		start(func() { rt.watcher.Run(ctx) })
	}
	if rt.mqtt != nil {
		start(func() { rt.mqtt.Run(ctx) })
	}
	if rt.cfg.Web.Enable {
		h := web.Handler(web.Deps{
			Motion:      rt.state,
			Reprobe:     rt.svc,
			Controllers: rt.controllers,
			Stream:      rt.stream,
			Logs:        rt.logs,

			DeviceBackend: rt.cfg.Device.Backend,
		})
		log.Printf("web listen=%s", rt.cfg.Web.Listen)
		start(func() {
			if err := web.Serve(ctx, rt.cfg.Web.Listen, h); err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
			}
		})
	}

	err := rt.svc.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Close stops the daemon. When Run has started, the device handles are
// released by the refresh goroutine and Close waits for it.
func (rt *daemon) Close() {
	if rt.svc != nil {
		rt.svc.Close()
	}
	if rt.running.Load() {
		<-rt.svc.Done()
	} else if rt.state != nil {
		rt.state.Close()
	}
	if rt.sw != nil {
		_ = rt.sw.Close()
	}
	if rt.mqtt != nil {
		rt.mqtt.Close()
	}
	if rt.udp != nil {
		_ = rt.udp.Close()
	}
	rt.controllers.Close()
	if rt.hostCloser != nil {
		_ = rt.hostCloser.Close()
	}
	if rt.logs != nil {
		log.SetOutput(os.Stderr)
	}
}
