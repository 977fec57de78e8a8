/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package discovery finds Roku devices on the local network via an
// SSDP M-SEARCH multicast probe.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zrocontrol/zrocontrol/pkg/ecp"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/models"
)

const (
	// DefaultTarget is the standard SSDP multicast group and port.
	DefaultTarget = "239.255.255.250:1900"

	// SearchTarget is the SSDP ST value Roku devices answer to.
	SearchTarget = "roku:ecp"

	defaultTimeout     = 2 * time.Second
	defaultMX          = 1
	defaultInfoTimeout = 1 * time.Second

	receivePoll = 250 * time.Millisecond
	maxDatagram = 8192
)

// InfoFunc fetches device details for one discovered address within the
// given timeout. Swappable in tests.
type InfoFunc func(ctx context.Context, ip string, timeout time.Duration) (models.DeviceIdentity, error)

// Discoverer probes the LAN for Roku devices. Construct with New.
type Discoverer struct {
	// Timeout bounds the whole listen window.
	Timeout time.Duration
	// MX is the SSDP response-delay hint sent in the probe.
	MX int
	// FetchDeviceInfo enriches each responder with a device-info query.
	FetchDeviceInfo bool
	// InfoTimeout bounds each enrichment query.
	InfoTimeout time.Duration
	// Target is the probe destination, normally the SSDP multicast
	// group. Overridable for loopback testing.
	Target string

	info   InfoFunc
	logger logger.Logger
}

func New(log logger.Logger) *Discoverer {
	d := &Discoverer{
		Timeout:         defaultTimeout,
		MX:              defaultMX,
		FetchDeviceInfo: true,
		InfoTimeout:     defaultInfoTimeout,
		Target:          DefaultTarget,
		logger:          log.WithComponent("discovery"),
	}

	d.info = func(ctx context.Context, ip string, timeout time.Duration) (models.DeviceIdentity, error) {
		client, err := ecp.NewClient(ip, timeout, log)
		if err != nil {
			return models.DeviceIdentity{}, err
		}

		return client.DeviceInfo(ctx)
	}

	return d
}

func buildMSearch(mx int) []byte {
	lines := []string{
		"M-SEARCH * HTTP/1.1",
		"HOST: 239.255.255.250:1900",
		`MAN: "ssdp:discover"`,
		fmt.Sprintf("MX: %d", mx),
		"ST: " + SearchTarget,
		"",
		"",
	}

	return []byte(strings.Join(lines, "\r\n"))
}

// parseHeaders reads the key: value lines after the response status
// line. Keys are lowercased; malformed lines are skipped.
func parseHeaders(datagram []byte) map[string]string {
	headers := make(map[string]string)

	lines := strings.Split(string(datagram), "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}

		line = strings.TrimRight(line, "\r")

		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		headers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	return headers
}

// Discover sends one M-SEARCH probe and collects replies until the
// deadline. Responders are deduplicated by address and returned sorted
// by numeric address. Network trouble degrades to a shorter (possibly
// empty) result; only a malformed probe target is an error.
//
// window overrides the configured Timeout for this call when positive.
func (d *Discoverer) Discover(ctx context.Context, window time.Duration) ([]models.DeviceIdentity, error) {
	target, err := net.ResolveUDPAddr("udp4", d.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery target %q: %w", d.Target, err)
	}

	if window <= 0 {
		window = d.Timeout
	}

	if window <= 0 {
		window = defaultTimeout
	}

	addrs := d.collectResponders(ctx, target, window)

	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Compare(addrs[j]) < 0
	})

	devices := make([]models.DeviceIdentity, len(addrs))

	if !d.FetchDeviceInfo {
		for i, a := range addrs {
			devices[i] = models.DeviceIdentity{IP: a.String()}
		}

		return devices, nil
	}

	infoTimeout := d.InfoTimeout
	if infoTimeout <= 0 {
		infoTimeout = defaultInfoTimeout
	}

	// The listen window may have consumed the caller's whole deadline;
	// enrichment gets its own budget so responders found late still get
	// their details.
	infoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), infoTimeout)
	defer cancel()

	var wg sync.WaitGroup

	for i, a := range addrs {
		wg.Add(1)

		go func(i int, ip string) {
			defer wg.Done()

			info, err := d.info(infoCtx, ip, infoTimeout)
			if err != nil {
				// Enrichment is best-effort; keep the bare address.
				d.logger.Debug().Str("ip", ip).Err(err).Msg("Device info enrichment failed")

				devices[i] = models.DeviceIdentity{IP: ip}

				return
			}

			devices[i] = info
		}(i, a.String())
	}

	wg.Wait()

	return devices, nil
}

func (d *Discoverer) collectResponders(ctx context.Context, target *net.UDPAddr, window time.Duration) []netip.Addr {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to open discovery socket")

		return nil
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.WriteToUDP(buildMSearch(d.MX), target); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to send M-SEARCH probe")

		return nil
	}

	deadline := time.Now().Add(window)
	seen := make(map[netip.Addr]struct{})
	buf := make([]byte, maxDatagram)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}

		_ = conn.SetReadDeadline(time.Now().Add(receivePoll))

		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			// Any other socket error ends the listen window early.
			d.logger.Debug().Err(err).Msg("Discovery receive loop terminated")

			break
		}

		headers := parseHeaders(buf[:n])
		if !strings.EqualFold(headers["st"], SearchTarget) {
			continue
		}

		addr, err := netip.ParseAddr(sender.IP.String())
		if err != nil {
			continue
		}

		addr = addr.Unmap()

		if _, dup := seen[addr]; dup {
			continue
		}

		seen[addr] = struct{}{}
	}

	addrs := make([]netip.Addr, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}

	return addrs
}
