package tool

import (
	"net"
	"net/url"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// QuickICMPProbe sends one echo request to host and reports whether a reply came back within timeout.
// Unprivileged (UDP) mode is used so no raw-socket capability is needed.
func QuickICMPProbe(host string, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		DefaultLogger.Debugf("QuickICMPProbe: cannot resolve %s: %v", host, err)
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)
	if err := pinger.Run(); err != nil {
		DefaultLogger.Debugf("QuickICMPProbe: probe of %s failed: %v", host, err)
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// EndpointHost extracts the bare host of an endpoint URL.
func EndpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Host
	}
	return host
}
