package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix roots every topic when the config leaves it empty.
const DefaultTopicPrefix = "curtainlights"

// Topics builds the Curtain Lights topic tree under a single prefix:
//
//	{prefix}/system/status                                 retained service status (LWT)
//	{prefix}/celebration/{tenant}/{device}/status          retained celebration status
//	{prefix}/push/{tenant}                                 inbound push events
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix, trimming any trailing slash.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SystemStatus is the retained online/offline topic, also used as the LWT.
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// CelebrationStatus is where the engine mirrors one device's status.
//
// Example: curtainlights/celebration/acme/H6199-01/status
func (t Topics) CelebrationStatus(tenantID, deviceID string) string {
	return fmt.Sprintf("%s/celebration/%s/%s/status", t.root(), tenantID, deviceID)
}

// AllCelebrationStatus matches every device's status topic.
func (t Topics) AllCelebrationStatus() string {
	return t.root() + "/celebration/+/+/status"
}

// Push is the inbound event topic for one tenant.
func (t Topics) Push(tenantID string) string {
	return fmt.Sprintf("%s/push/%s", t.root(), tenantID)
}

// AllPush matches every tenant's push topic.
func (t Topics) AllPush() string {
	return t.root() + "/push/+"
}

// PushTenant extracts the tenant id from a concrete push topic.
// It returns false for topics outside the push subtree.
func (t Topics) PushTenant(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.root()+"/push/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
