package ble

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"

	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"
)

type ScanResult struct {
	Name    string
	Address string
	RSSI    int16
}

// Scan lists the Bluetti devices advertising within timeout.
func Scan(ctx context.Context, adapter *bluetooth.Adapter, timeout time.Duration) ([]ScanResult, error) {
	if err := enableAdapter(adapter); err != nil {
		return nil, errors.Wrap(err, "enable bluetooth adapter")
	}

	scanMu.Lock()
	defer scanMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := newScanSet()
	scanDone := make(chan error, 1)
	go func() {
		scanDone <- adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			seen.add(result.LocalName(), result.Address.String(), result.RSSI)
		})
	}()

	select {
	case err := <-scanDone:
		if err != nil {
			return nil, errors.Wrap(err, "scan")
		}
	case <-ctx.Done():
		adapter.StopScan()
		<-scanDone
	}
	return seen.results(), nil
}

// scanSet keeps one entry per Bluetti address.
type scanSet struct {
	mu      sync.Mutex
	devices map[string]ScanResult
}

func newScanSet() *scanSet {
	return &scanSet{devices: make(map[string]ScanResult)}
}

func (s *scanSet) add(name string, address string, rssi int16) {
	if !bluetti.IsBluettiName(name) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[address] = ScanResult{Name: name, Address: address, RSSI: rssi}
}

func (s *scanSet) results() []ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScanResult, 0, len(s.devices))
	for _, r := range s.devices {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out
}
