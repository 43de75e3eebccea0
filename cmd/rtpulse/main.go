package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rtpulse/internal/config"
	"rtpulse/internal/control"
	"rtpulse/internal/core"
	"rtpulse/internal/rt"
	"rtpulse/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./rtpulse.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rtCfg := rt.Config{
		Priority:   cfg.RT.Priority,
		LockMemory: cfg.RT.LockMemory,
		PinCPU:     cfg.RT.PinCPU,
		CPU:        cfg.RT.CPU,
	}

	svc := core.New(core.Config{
		Chip:          cfg.GPIO.Chip,
		PWMLine:       cfg.GPIO.PWMLine,
		MeasLine:      cfg.GPIO.MeasLine,
		CarrierPeriod: cfg.PWM.CarrierPeriod,
		DefaultDuty:   cfg.PWM.Duty(),
		ThreadSetup: func() {
			if err := rt.Apply(rtCfg); err != nil {
				log.Printf("realtime setup degraded: %v", err)
			}
		},
	})
	svc.Device().Accepted = func(p int) {
		log.Printf("duty cycle set to %d%%", p)
	}

	if err := svc.Start(); err != nil {
		log.Fatalf("core start failed: %v", err)
	}
	defer svc.Close()

	ctl := control.NewServer(cfg.Control.Socket, svc.Device())
	if err := ctl.Start(); err != nil {
		log.Fatalf("control endpoint failed: %v", err)
	}
	defer ctl.Close()

	if cfg.Web.Enable {
		webSrv := web.NewServer(cfg.Web.Listen, svc)
		if err := webSrv.Start(); err != nil {
			log.Fatalf("web endpoint failed: %v", err)
		}
		defer webSrv.Close()
		log.Printf("web listening on %s", cfg.Web.Listen)
	}

	log.Printf("rtpulse starting")
	log.Printf("pwm out %s:%d, edge in %s:%d, carrier %s, duty %d%%",
		cfg.GPIO.Chip, cfg.GPIO.PWMLine, cfg.GPIO.Chip, cfg.GPIO.MeasLine,
		cfg.PWM.CarrierPeriod, cfg.PWM.Duty())
	log.Printf("control socket %s", cfg.Control.Socket)

	<-ctx.Done()
	log.Printf("rtpulse stopping")
}
