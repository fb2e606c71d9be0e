// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hostconfig reads settings out of another service's line oriented
// key=value configuration file. The file is only ever opened for reading.
package hostconfig

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("numaexporter.hostconfig")

const (
	// NovaConfPath is where nova-compute keeps its configuration.
	NovaConfPath = "/etc/nova/nova.conf"

	// CPUDedicatedSetKey names the host CPUs reserved for pinned guests.
	CPUDedicatedSetKey = "cpu_dedicated_set"

	// PassthroughWhitelistKey names the PCI devices exposed to guests.
	PassthroughWhitelistKey = "passthrough_whitelist"
)

// ReadError is returned when the host configuration file cannot be opened
// or read. It is distinct from a missing key, which is not an error.
type ReadError struct {
	Path string
	Err  error
}

// Error is part of the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("could not open/read file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// IsReadError reports whether err is, or wraps, a *ReadError.
func IsReadError(err error) bool {
	var readErr *ReadError
	return errors.As(err, &readErr)
}

// ReadValue returns the value of the first line in the file at path that
// starts with key. The value is everything after the first "=", trimmed of
// surrounding whitespace. An empty string is returned when no line matches.
func ReadValue(path, key string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		logger.Errorf("Could not open/read file %s", path)
		return "", &ReadError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	// Lines are read whole, whatever their length: passthrough_whitelist
	// lines can list many devices.
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if strings.HasPrefix(line, key) {
			var value string
			if _, after, found := strings.Cut(line, "="); found {
				value = strings.TrimSpace(after)
			}
			logger.Infof("found %s in %s: %s", key, path, value)
			return value, nil
		}
		if err == io.EOF {
			break
		} else if err != nil {
			logger.Errorf("Could not open/read file %s", path)
			return "", &ReadError{Path: path, Err: err}
		}
	}
	logger.Infof("no %s found in %s.", key, path)
	return "", nil
}

// passthroughDevice is one entry of nova's PCI passthrough whitelist.
// Other fields, such as vendor_id or trusted, are ignored.
type passthroughDevice struct {
	DevName         string `json:"devname"`
	PhysicalNetwork string `json:"physical_network"`
}

// ReadNICs returns the network interfaces nova passes through to guests,
// keyed by device name with the physical network as value. A nil map is
// returned when the file has no passthrough whitelist.
func ReadNICs(path string) (map[string]string, error) {
	value, err := ReadValue(path, PassthroughWhitelistKey)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if value == "" {
		return nil, nil
	}
	devices, err := parseWhitelist(value)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing %s in %s", PassthroughWhitelistKey, path)
	}
	nics := make(map[string]string, len(devices))
	for _, dev := range devices {
		if dev.DevName == "" {
			continue
		}
		nics[dev.DevName] = dev.PhysicalNetwork
	}
	return nics, nil
}

// parseWhitelist accepts either a JSON array of devices or a single device
// object; nova allows both forms.
func parseWhitelist(value string) ([]passthroughDevice, error) {
	if strings.HasPrefix(value, "{") {
		var dev passthroughDevice
		if err := json.Unmarshal([]byte(value), &dev); err != nil {
			return nil, errors.Trace(err)
		}
		return []passthroughDevice{dev}, nil
	}
	var devices []passthroughDevice
	if err := json.Unmarshal([]byte(value), &devices); err != nil {
		return nil, errors.Trace(err)
	}
	return devices, nil
}
