package puck

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxNameLength bounds user-supplied puck names.
const MaxNameLength = 64

// ServiceID identifies a GATT service. Always a canonical lower-case UUID.
type ServiceID string

// Well-known puck services.
var (
	LocationService = ServiceID("6e40a001-b5a3-f393-e0a9-e50e24dcca9e")
	CubeService     = ServiceID("6e40c001-b5a3-f393-e0a9-e50e24dcca9e")
	ButtonService   = ServiceID("6e40b001-b5a3-f393-e0a9-e50e24dcca9e")
)

// ParseServiceID parses any UUID form (braced, upper-case, urn:uuid:) into
// the canonical representation.
func ParseServiceID(s string) (ServiceID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidServiceID, s, err)
	}
	return ServiceID(id.String()), nil
}

// ParseServiceIDs parses a list. Entries that are not UUIDs are skipped and
// returned in invalid.
func ParseServiceIDs(in []string) (ids []ServiceID, invalid []string) {
	ids = make([]ServiceID, 0, len(in))
	for _, s := range in {
		id, err := ParseServiceID(s)
		if err != nil {
			invalid = append(invalid, s)
			continue
		}
		ids = append(ids, id)
	}
	return ids, invalid
}

// NormalizeAddress converts a MAC address to upper-case colon form,
// e.g. "c4-be-84-0a-11-02" becomes "C4:BE:84:0A:11:02".
func NormalizeAddress(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return strings.ToUpper(hw.String()), nil
}

// BeaconIdentity is the advertised iBeacon triple.
type BeaconIdentity struct {
	ProximityUUID string `json:"proximity_uuid"`
	Major         uint16 `json:"major"`
	Minor         uint16 `json:"minor"`
}

// Normalize validates the identity and canonicalises the proximity UUID.
func (b BeaconIdentity) Normalize() (BeaconIdentity, error) {
	id, err := uuid.Parse(strings.TrimSpace(b.ProximityUUID))
	if err != nil {
		return BeaconIdentity{}, fmt.Errorf("%w: proximity uuid %q", ErrInvalidBeacon, b.ProximityUUID)
	}
	b.ProximityUUID = id.String()
	return b, nil
}

func (b BeaconIdentity) String() string {
	return fmt.Sprintf("%s/%d/%d", b.ProximityUUID, b.Major, b.Minor)
}

// Puck is a paired BLE beacon with GATT capabilities.
type Puck struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	Minor               uint16      `json:"minor"`
	Major               uint16      `json:"major"`
	ProximityUUID       string      `json:"proximity_uuid"`
	Address             string      `json:"address"`
	ServiceCapabilities []ServiceID `json:"service_capabilities"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Identity returns the puck's beacon identity.
func (p *Puck) Identity() BeaconIdentity {
	return BeaconIdentity{ProximityUUID: p.ProximityUUID, Major: p.Major, Minor: p.Minor}
}

// HasService reports whether the capability set contains id.
func (p *Puck) HasService(id ServiceID) bool {
	return slices.Contains(p.ServiceCapabilities, id)
}

// DeepCopy returns a copy that shares no mutable state with p.
func (p *Puck) DeepCopy() *Puck {
	if p == nil {
		return nil
	}
	cpy := *p
	cpy.ServiceCapabilities = slices.Clone(p.ServiceCapabilities)
	return &cpy
}

// unionServices appends every id in add not already present, keeping the
// existing order first. changed is false when nothing was added.
func unionServices(existing, add []ServiceID) (merged []ServiceID, changed bool) {
	merged = slices.Clone(existing)
	for _, id := range add {
		if !slices.Contains(merged, id) {
			merged = append(merged, id)
			changed = true
		}
	}
	return merged, changed
}

// GenerateID returns a new random puck ID.
func GenerateID() string {
	return uuid.NewString()
}
