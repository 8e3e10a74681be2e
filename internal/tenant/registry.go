package tenant

import (
	"fmt"
	"sort"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/config"
)

// Tenant is one account and the single light it celebrates on.
type Tenant struct {
	ID       string
	Name     string
	Device   govee.Target
	Calendar CalendarSource
	YouTube  YouTubeSource
}

// CalendarSource configures calendar polling for a tenant.
type CalendarSource struct {
	Enabled     bool
	CalendarID  string
	AccessToken string
	Amount      float64 // amount submitted for each upcoming event
}

// YouTubeSource configures subscriber polling for a tenant.
type YouTubeSource struct {
	Enabled     bool
	ChannelID   string
	AccessToken string
}

// Registry is the immutable set of configured tenants. It implements
// celebration.Resolver.
type Registry struct {
	tenants map[string]Tenant
}

// NewRegistry builds a registry from configuration.
func NewRegistry(cfgs []config.TenantConfig) (*Registry, error) {
	r := &Registry{tenants: make(map[string]Tenant, len(cfgs))}
	for i, c := range cfgs {
		t := Tenant{
			ID:     c.ID,
			Name:   c.Name,
			Device: govee.Target{DeviceID: c.Device.ID, Model: c.Device.Model},
			Calendar: CalendarSource{
				Enabled:     c.Calendar.Enabled,
				CalendarID:  c.Calendar.CalendarID,
				AccessToken: c.Calendar.AccessToken,
				Amount:      c.Calendar.Amount,
			},
			YouTube: YouTubeSource{
				Enabled:     c.YouTube.Enabled,
				ChannelID:   c.YouTube.ChannelID,
				AccessToken: c.YouTube.AccessToken,
			},
		}
		if t.Calendar.CalendarID == "" {
			t.Calendar.CalendarID = "primary"
		}
		if t.YouTube.ChannelID == "" {
			t.YouTube.ChannelID = "mine"
		}

		if t.ID == "" {
			return nil, fmt.Errorf("%w: tenants[%d] has no id", ErrInvalidTenant, i)
		}
		if _, dup := r.tenants[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidTenant, t.ID)
		}
		if err := t.Device.Validate(); err != nil {
			return nil, fmt.Errorf("%w: tenant %q: %w", ErrInvalidTenant, t.ID, err)
		}
		r.tenants[t.ID] = t
	}
	return r, nil
}

// Get returns the tenant with the given id.
func (r *Registry) Get(id string) (Tenant, error) {
	t, ok := r.tenants[id]
	if !ok {
		return Tenant{}, fmt.Errorf("%w: %q", ErrUnknownTenant, id)
	}
	return t, nil
}

// List returns all tenants ordered by id.
func (r *Registry) List() []Tenant {
	out := make([]Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve maps a tenant and device id to the binding the engine drives.
// An empty deviceID selects the tenant's device.
func (r *Registry) Resolve(tenantID, deviceID string) (celebration.Binding, error) {
	t, err := r.Get(tenantID)
	if err != nil {
		return celebration.Binding{}, err
	}
	if deviceID != "" && deviceID != t.Device.DeviceID {
		return celebration.Binding{}, fmt.Errorf("%w: %q for tenant %q", ErrUnknownDevice, deviceID, tenantID)
	}
	return celebration.Binding{TenantID: t.ID, DeviceID: t.Device.DeviceID, Target: t.Device}, nil
}
