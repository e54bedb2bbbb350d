// Package netbox provides the inventory adapter backed by the Netbox REST API.
package netbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/hvmigrate/hvmigrate/internal/common"
)

// ErrDeviceNotFound is returned when no device matches the hostname.
var ErrDeviceNotFound = errors.New("device not found in Netbox")

// managementInterface is the interface carrying the BMC address.
const managementInterface = "bmc0"

// Provider reads and updates one host's Netbox device. The device is looked up
// on first use and every read fetches current state.
type Provider struct {
	rest     *common.RESTClient
	baseURL  string
	hostname string

	mu       sync.Mutex
	deviceID int64
}

// NewProvider creates a Netbox provider for hostname.
func NewProvider(baseURL, token, hostname string) *Provider {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Provider{
		rest:     common.NewRESTClient(baseURL, common.BearerToken("Token", token)),
		baseURL:  baseURL,
		hostname: hostname,
	}
}

func (p *Provider) fetchDevice(ctx context.Context) (gjson.Result, error) {
	data, err := p.rest.Get(ctx, "/api/dcim/devices/?name="+url.QueryEscape(p.hostname))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to look up device %s: %w", p.hostname, err)
	}
	device := gjson.GetBytes(data, "results.0")
	if !device.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, p.hostname)
	}
	p.mu.Lock()
	p.deviceID = device.Get("id").Int()
	p.mu.Unlock()
	return device, nil
}

func (p *Provider) id(ctx context.Context) (int64, error) {
	p.mu.Lock()
	id := p.deviceID
	p.mu.Unlock()
	if id != 0 {
		return id, nil
	}
	device, err := p.fetchDevice(ctx)
	if err != nil {
		return 0, err
	}
	return device.Get("id").Int(), nil
}

// Exists reports whether the host is registered.
func (p *Provider) Exists(ctx context.Context) (bool, error) {
	_, err := p.fetchDevice(ctx)
	if errors.Is(err, ErrDeviceNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Status returns the lower-cased device status value.
func (p *Provider) Status(ctx context.Context) (string, error) {
	device, err := p.fetchDevice(ctx)
	if err != nil {
		return "", err
	}
	return strings.ToLower(device.Get("status.value").String()), nil
}

// SetStatus changes the device status.
func (p *Provider) SetStatus(ctx context.Context, status string) error {
	return p.patch(ctx, map[string]interface{}{"status": status})
}

// SetRole assigns the device role with the given name.
func (p *Provider) SetRole(ctx context.Context, role string) error {
	data, err := p.rest.Get(ctx, "/api/dcim/device-roles/?name="+url.QueryEscape(role))
	if err != nil {
		return fmt.Errorf("failed to look up device role %q: %w", role, err)
	}
	roleID := gjson.GetBytes(data, "results.0.id")
	if !roleID.Exists() {
		return fmt.Errorf("device role %q not found in Netbox", role)
	}
	return p.patch(ctx, map[string]interface{}{"role": roleID.Int()})
}

func (p *Provider) patch(ctx context.Context, changes map[string]interface{}) error {
	id, err := p.id(ctx)
	if err != nil {
		return err
	}
	if _, err := p.rest.Do(ctx, http.MethodPatch, fmt.Sprintf("/api/dcim/devices/%d/", id), changes); err != nil {
		return fmt.Errorf("failed to update device %s: %w", p.hostname, err)
	}
	return nil
}

// HasGPU reports whether the device type description mentions a GPU.
func (p *Provider) HasGPU(ctx context.Context) (bool, error) {
	device, err := p.fetchDevice(ctx)
	if err != nil {
		return false, err
	}
	typeID := device.Get("device_type.id").Int()
	data, err := p.rest.Get(ctx, fmt.Sprintf("/api/dcim/device-types/%d/", typeID))
	if err != nil {
		return false, fmt.Errorf("failed to read device type %d: %w", typeID, err)
	}
	description := gjson.GetBytes(data, "description").String()
	return strings.Contains(strings.ToLower(description), "gpu"), nil
}

// ManagementAddress returns the BMC address without its prefix length.
func (p *Provider) ManagementAddress(ctx context.Context) (string, error) {
	id, err := p.id(ctx)
	if err != nil {
		return "", err
	}
	data, err := p.rest.Get(ctx, fmt.Sprintf("/api/dcim/interfaces/?device_id=%d&name=%s", id, managementInterface))
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces of %s: %w", p.hostname, err)
	}
	ifaceID := gjson.GetBytes(data, "results.0.id")
	if !ifaceID.Exists() {
		return "", fmt.Errorf("device %s has no %s interface", p.hostname, managementInterface)
	}
	data, err = p.rest.Get(ctx, fmt.Sprintf("/api/ipam/ip-addresses/?interface_id=%d", ifaceID.Int()))
	if err != nil {
		return "", fmt.Errorf("failed to read addresses of %s: %w", managementInterface, err)
	}
	address := gjson.GetBytes(data, "results.0.address").String()
	if address == "" {
		return "", fmt.Errorf("interface %s of %s has no address", managementInterface, p.hostname)
	}
	address, _, _ = strings.Cut(address, "/")
	return address, nil
}

// WebURL returns the device page in the Netbox UI.
func (p *Provider) WebURL(ctx context.Context) (string, error) {
	id, err := p.id(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/dcim/devices/%d/", p.baseURL, id), nil
}
