// Package discovery scans a subnet for running snic-device status servers,
// probing GET /healthz instead of dialing gRPC. Concurrency shape (bounded
// worker pool via a semaphore channel, fan results into a buffered channel,
// collect after wg.Wait) is carried over from the old DiscoverServers.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Result describes one probed host's status server.
type Result struct {
	Address    string `json:"address"`
	IPAddress  string `json:"ip_address"`
	Port       int    `json:"port"`
	LatencyMs  int64  `json:"latency_ms"`
	Responding bool   `json:"responding"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Config controls a scan.
type Config struct {
	Subnet          string        `json:"subnet"`           // CIDR, e.g. "192.168.12.0/24"; empty = infer from local interfaces
	Port            int           `json:"port"`             // internal/status HTTP port to probe
	Timeout         time.Duration `json:"timeout"`          // per-host connect+request timeout
	ConcurrentScans int           `json:"concurrent_scans"` // worker pool size
	SkipLocalhost   bool          `json:"skip_localhost"`
}

// DefaultConfig mirrors the old discovery defaults, with the status port in
// place of the gRPC port.
func DefaultConfig() Config {
	return Config{
		Port:            8900,
		Timeout:         2 * time.Second,
		ConcurrentScans: 20,
	}
}

// Scan probes every host in cfg.Subnet concurrently, skipping this machine's
// own and loopback addresses, plus 127.0.0.1 unless cfg.SkipLocalhost is set,
// and returns every result (responding or not).
func Scan(ctx context.Context, cfg Config) ([]Result, error) {
	if cfg.Subnet == "" {
		subnet, err := localSubnet()
		if err != nil {
			return nil, fmt.Errorf("discovery: determine local subnet: %w", err)
		}
		cfg.Subnet = subnet
	}

	ip, ipnet, err := net.ParseCIDR(cfg.Subnet)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid subnet %s: %w", cfg.Subnet, err)
	}

	var ips []string
	for cur := ip.Mask(ipnet.Mask); ipnet.Contains(cur); incrementIP(cur) {
		ips = append(ips, cur.String())
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, cfg.ConcurrentScans)
	resultsCh := make(chan Result, len(ips)+1)

	if !cfg.SkipLocalhost {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resultsCh <- probe(ctx, "127.0.0.1", cfg.Port, cfg.Timeout)
		}()
	}

	for _, ipStr := range ips {
		if isLocalIP(ipStr) {
			continue
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(addr string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			resultsCh <- probe(ctx, addr, cfg.Port, cfg.Timeout)
		}(ipStr)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var out []Result
	for r := range resultsCh {
		out = append(out, r)
	}
	return out, nil
}

func probe(ctx context.Context, ip string, port int, timeout time.Duration) Result {
	start := time.Now()
	address := fmt.Sprintf("%s:%d", ip, port)
	result := Result{Address: address, IPAddress: ip, Port: port}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+address+"/healthz", nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		result.Error = err.Error()
		result.LatencyMs = time.Since(start).Milliseconds()
		return result
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	result.Responding = resp.StatusCode == http.StatusOK
	result.Status = body.Status
	result.LatencyMs = time.Since(start).Milliseconds()
	return result
}

func localSubnet() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil {
				continue
			}
			parts := strings.Split(ip.String(), ".")
			if len(parts) == 4 {
				return fmt.Sprintf("%s.%s.%s.0/24", parts[0], parts[1], parts[2]), nil
			}
		}
	}
	return "", fmt.Errorf("no suitable network interface found")
}

func incrementIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

func isLocalIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}

	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ifaceIP net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ifaceIP = v.IP
			case *net.IPAddr:
				ifaceIP = v.IP
			}
			if ifaceIP != nil && ifaceIP.Equal(ip) {
				return true
			}
		}
	}
	return false
}

// Best returns the lowest-latency responding result, or nil if none
// responded.
func Best(results []Result) *Result {
	var best *Result
	for i := range results {
		r := &results[i]
		if !r.Responding {
			continue
		}
		if best == nil || r.LatencyMs < best.LatencyMs {
			best = r
		}
	}
	return best
}
