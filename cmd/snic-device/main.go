// Command snic-device is the SNIC device daemon: it loads configuration,
// opens the tap interface, performs the OOB handshake against the host
// driver, and runs the coordinator until SIGINT/SIGTERM. Flag/log/signal
// wiring is grounded on cmd/driver/hasher-server/main.go's main.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"snic/internal/config"
	"snic/internal/coordinator"
	"snic/internal/oobmsg"
	"snic/internal/tapdev"
	"snic/internal/transport"
)

// newSession is the one extension point a real deployment must fill in: a
// NetTLP (or other PCIe TLP) transport library implementing transport.Session
// against cfg's remote/local addresses. That library's wire format is out of
// scope here, so the default factory below fails fast with a clear message
// rather than faking a protocol no such library actually speaks.
var newSession = func(cfg config.Config) (transport.Session, error) {
	return nil, fmt.Errorf(
		"snic-device: no transport.Session implementation registered; " +
			"link in a NetTLP (or equivalent) adapter and set newSession in cmd/snic-device " +
			"before running against real hardware")
}

func main() {
	cfg, err := config.ParseWithDotEnv(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("snic-device: config: %v", err)
	}

	log.Printf("snic-device starting: tap=%s remote=%s local=%s oob=%s status=%s trace=%v",
		cfg.TapName, cfg.RemoteAddr, cfg.LocalAddr, cfg.OOBAddr, cfg.StatusAddr, cfg.Trace)

	tap, err := tapdev.Open(cfg.TapName)
	if err != nil {
		log.Fatalf("snic-device: open tap %s: %v", cfg.TapName, err)
	}
	defer tap.Close()

	var oob coordinator.OOBClient
	if cfg.OOBAddr != "" {
		client, err := oobmsg.Dial(cfg.OOBAddr)
		if err != nil {
			log.Fatalf("snic-device: dial OOB endpoint %s: %v", cfg.OOBAddr, err)
		}
		client.LegacyMSIX = cfg.LegacyMSIX
		defer client.Close()
		oob = client
	} else if cfg.LegacyBAR4 == 0 {
		log.Fatalf("snic-device: -R (OOB address) is required unless -a (legacy BAR4 base) is given")
	}

	session, err := newSession(cfg)
	if err != nil {
		log.Fatalf("snic-device: %v", err)
	}

	if err := coordinator.RunUntilSignal(cfg, tap, oob, session); err != nil {
		log.Fatalf("snic-device: %v", err)
	}
	log.Printf("snic-device: stopped")
}
