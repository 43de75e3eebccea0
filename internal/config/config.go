package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GPIO    GPIOConfig    `yaml:"gpio"`
	PWM     PWMConfig     `yaml:"pwm"`
	Control ControlConfig `yaml:"control"`
	Web     WebConfig     `yaml:"web"`
	RT      RTConfig      `yaml:"rt"`
}

type GPIOConfig struct {
	// Chip is the GPIO character device, e.g. "gpiochip0".
	Chip string `yaml:"chip"`
	// PWMLine and MeasLine are line offsets in the chip's numbering.
	PWMLine  int `yaml:"pwm_line"`
	MeasLine int `yaml:"meas_line"`
}

type PWMConfig struct {
	// CarrierPeriod is the waveform repetition period; the step tick is
	// CarrierPeriod/100.
	CarrierPeriod time.Duration `yaml:"carrier_period"`
	// DefaultDuty is the startup duty-cycle percentage; nil means 50.
	DefaultDuty *int `yaml:"default_duty"`
}

type ControlConfig struct {
	// Socket is the unix-domain socket path of the control endpoint.
	Socket string `yaml:"socket"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type RTConfig struct {
	// Priority is the SCHED_FIFO priority for the tick loop thread (1..99);
	// 0 disables real-time scheduling.
	Priority   int  `yaml:"priority"`
	LockMemory bool `yaml:"lock_memory"`
	PinCPU     bool `yaml:"pin_cpu"`
	CPU        int  `yaml:"cpu"`
}

// Duty returns the configured startup duty cycle, defaulting to 50.
func (p PWMConfig) Duty() int {
	if p.DefaultDuty == nil {
		return 50
	}
	return *p.DefaultDuty
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = "gpiochip0"
	}
	if cfg.GPIO.PWMLine == 0 {
		cfg.GPIO.PWMLine = 12
	}
	if cfg.GPIO.MeasLine == 0 {
		cfg.GPIO.MeasLine = 16
	}
	if cfg.GPIO.PWMLine == cfg.GPIO.MeasLine {
		return Config{}, fmt.Errorf("gpio.pwm_line and gpio.meas_line must differ (both %d)", cfg.GPIO.PWMLine)
	}

	if cfg.PWM.CarrierPeriod == 0 {
		cfg.PWM.CarrierPeriod = 1 * time.Millisecond
	}
	// The carrier is divided into 100 steps; anything below 100ns leaves no
	// representable tick interval.
	if cfg.PWM.CarrierPeriod < 100*time.Nanosecond {
		return Config{}, fmt.Errorf("pwm.carrier_period %s is too short", cfg.PWM.CarrierPeriod)
	}
	if d := cfg.PWM.DefaultDuty; d != nil && (*d < 0 || *d > 100) {
		return Config{}, fmt.Errorf("pwm.default_duty %d out of range 0..100", *d)
	}

	if cfg.Control.Socket == "" {
		cfg.Control.Socket = "/run/rtpulse.sock"
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8099"
	}

	if cfg.RT.Priority < 0 || cfg.RT.Priority > 99 {
		return Config{}, fmt.Errorf("rt.priority %d out of range 0..99", cfg.RT.Priority)
	}
	if cfg.RT.PinCPU && cfg.RT.CPU < 0 {
		return Config{}, fmt.Errorf("rt.cpu %d invalid with rt.pin_cpu enabled", cfg.RT.CPU)
	}

	return cfg, nil
}
