// Command snic-monitor is a terminal dashboard for one snic-device's status
// server: TX/RX counters, MSI-X IRQ counts, and host resource usage,
// refreshed once a second.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"snic/internal/mgmtclient"
	"snic/internal/monitorui"
)

func main() {
	addr := flag.String("addr", mgmtclient.DefaultAddress, "snic-device status server address")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mgmtclient.Connect(ctx, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "snic-monitor: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(monitorui.New(client, *addr))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "snic-monitor: %v\n", err)
		os.Exit(1)
	}
}
