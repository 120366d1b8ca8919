// Package platform wraps the OS-specific administration surface: registry
// values, services, firewall rules and scheduled tasks. One backend shells
// out to the native windows tools; every other platform gets a backend that
// refuses uniformly, so callers stay platform-agnostic.
package platform

import (
	"errors"
	"runtime"
)

// ErrUnsupportedPlatform is returned by every operation on platforms
// without a native administration surface.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ServiceAction enumerates what ManageService can do to a service.
type ServiceAction string

const (
	ServiceQuery   ServiceAction = "query"
	ServiceStart   ServiceAction = "start"
	ServiceStop    ServiceAction = "stop"
	ServiceRestart ServiceAction = "restart"
)

// RegistryValue is one named value under a registry key.
type RegistryValue struct {
	Name string
	Type string
	Data string
}

// FirewallRule describes an inbound or outbound allow/block rule.
type FirewallRule struct {
	Name      string
	Action    string // allow | block
	Direction string // in | out
	Protocol  string // TCP | UDP
	Port      int    // 0 means any port
}

// Ops is the per-platform backend. RegistryRead returns (nil, nil) when the
// value does not exist; every method returns ErrUnsupportedPlatform on
// platforms without the corresponding tooling.
type Ops interface {
	RegistryRead(keyPath, valueName string) (*RegistryValue, error)
	RegistryWrite(keyPath, valueName, value, valueType string) error
	RegistryDelete(keyPath, valueName string) error
	Service(name string, action ServiceAction) (string, error)
	AddFirewallRule(rule FirewallRule) error
	CreateScheduledTask(name, command, schedule string) error
	DeleteScheduledTask(name string) error
}

// New selects the backend for the current OS.
func New() Ops {
	return ForOS(runtime.GOOS)
}

// ForOS selects the backend for an explicit GOOS value.
func ForOS(goos string) Ops {
	if goos == "windows" {
		return newWindowsOps()
	}
	return unsupportedOps{}
}

type unsupportedOps struct{}

func (unsupportedOps) RegistryRead(string, string) (*RegistryValue, error) {
	return nil, ErrUnsupportedPlatform
}

func (unsupportedOps) RegistryWrite(string, string, string, string) error {
	return ErrUnsupportedPlatform
}

func (unsupportedOps) RegistryDelete(string, string) error {
	return ErrUnsupportedPlatform
}

func (unsupportedOps) Service(string, ServiceAction) (string, error) {
	return "", ErrUnsupportedPlatform
}

func (unsupportedOps) AddFirewallRule(FirewallRule) error {
	return ErrUnsupportedPlatform
}

func (unsupportedOps) CreateScheduledTask(string, string, string) error {
	return ErrUnsupportedPlatform
}

func (unsupportedOps) DeleteScheduledTask(string) error {
	return ErrUnsupportedPlatform
}
