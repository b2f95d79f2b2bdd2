// Package icm20948 is a minimal ICM-20948 accelerometer/gyroscope driver
// for handheld builds that carry the chip on an I2C bus.
package icm20948

import (
	"fmt"
	"time"

	"motionhub/internal/i2c"
)

var sleep = time.Sleep

// WHO_AM_I at 0x00 must read 0xEA.
const (
	addrDefault = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	bitSleep      = 0x40
	clkAuto       = 0x01
	regIntEnable  = 0x38
	regAccelXoutH = 0x2D // accel then gyro, 12 contiguous bytes

	// Bank 2.
	bank2            = 2
	regGyroSmplrt    = 0x00
	regGyroConfig    = 0x01
	regAccelSmplrt1  = 0x10
	regAccelSmplrt2  = 0x11
	regAccelConfig   = 0x14
	baseSampleRateHz = 1125
)

// Sample is one combined reading. Accel is in G, gyro in deg/s.
type Sample struct {
	Ax, Ay, Az float64
	Gx, Gy, Gz float64
}

// Options selects full-scale ranges and output data rate.
type Options struct {
	GyroFullScaleDPS int // 250, 500, 1000 or 2000
	AccelFullScaleG  int // 2, 4, 8 or 16
	SampleRateHz     int
}

func (o Options) withDefaults() Options {
	if o.GyroFullScaleDPS == 0 {
		o.GyroFullScaleDPS = 2000
	}
	if o.AccelFullScaleG == 0 {
		o.AccelFullScaleG = 8
	}
	if o.SampleRateHz <= 0 {
		o.SampleRateHz = 225
	}
	return o
}

type Device struct {
	dev regIO

	curBank    byte
	scaleAccel float64
	scaleGyro  float64
	asleep     bool
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	return newWithIO(dev, opts)
}

func newWithIO(dev regIO, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &Device{dev: dev, curBank: 0xFF}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}
	if err := d.init(opts.withDefaults()); err != nil {
		return nil, err
	}
	return d, nil
}

func gyroFSSel(dps int) (byte, error) {
	switch dps {
	case 250:
		return 0, nil
	case 500:
		return 1, nil
	case 1000:
		return 2, nil
	case 2000:
		return 3, nil
	}
	return 0, fmt.Errorf("icm20948: unsupported gyro range %d dps", dps)
}

func accelFSSel(g int) (byte, error) {
	switch g {
	case 2:
		return 0, nil
	case 4:
		return 1, nil
	case 8:
		return 2, nil
	case 16:
		return 3, nil
	}
	return 0, fmt.Errorf("icm20948: unsupported accel range %dg", g)
}

func (d *Device) init(opts Options) error {
	gsel, err := gyroFSSel(opts.GyroFullScaleDPS)
	if err != nil {
		return err
	}
	asel, err := accelFSSel(opts.AccelFullScaleG)
	if err != nil {
		return err
	}

	if err := d.setBank(0); err != nil {
		return err
	}
	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)
	// Reset leaves the chip asleep; CLKSEL=1 picks the PLL when ready.
	if err := d.dev.WriteReg(regPwrMgmt1, clkAuto); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.setBank(bank2); err != nil {
		return err
	}
	div := baseSampleRateHz/opts.SampleRateHz - 1
	if div < 0 {
		div = 0
	}
	if div > 0xFF {
		div = 0xFF
	}
	_ = d.dev.WriteReg(regGyroSmplrt, byte(div))
	_ = d.dev.WriteReg(regAccelSmplrt1, 0x00)
	_ = d.dev.WriteReg(regAccelSmplrt2, byte(div))

	if err := d.dev.WriteReg(regGyroConfig, gsel<<1); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, asel<<1); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.setBank(0); err != nil {
		return err
	}

	d.scaleAccel = float64(opts.AccelFullScaleG) / 32768.0
	d.scaleGyro = float64(opts.GyroFullScaleDPS) / 32768.0
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

// Sleep puts the chip in its low-power state until Wake.
func (d *Device) Sleep() error {
	if d == nil {
		return fmt.Errorf("icm20948: device is nil")
	}
	if d.asleep {
		return nil
	}
	if err := d.setBank(0); err != nil {
		return err
	}
	if err := d.dev.WriteReg(regPwrMgmt1, bitSleep|clkAuto); err != nil {
		return fmt.Errorf("icm20948: sleep failed: %w", err)
	}
	d.asleep = true
	return nil
}

func (d *Device) Wake() error {
	if d == nil {
		return fmt.Errorf("icm20948: device is nil")
	}
	if !d.asleep {
		return nil
	}
	if err := d.setBank(0); err != nil {
		return err
	}
	if err := d.dev.WriteReg(regPwrMgmt1, clkAuto); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	d.asleep = false
	return nil
}

func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if d.asleep {
		return Sample{}, fmt.Errorf("icm20948: device asleep")
	}
	if err := d.setBank(0); err != nil {
		return Sample{}, err
	}

	var buf [12]byte
	if err := d.dev.ReadReg(regAccelXoutH, buf[:]); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read sensors failed: %w", err)
	}
	word := func(i int) float64 { return float64(int16(buf[i])<<8 | int16(buf[i+1])) }

	return Sample{
		Ax: word(0) * d.scaleAccel,
		Ay: word(2) * d.scaleAccel,
		Az: word(4) * d.scaleAccel,
		Gx: word(6) * d.scaleGyro,
		Gy: word(8) * d.scaleGyro,
		Gz: word(10) * d.scaleGyro,
	}, nil
}
