package mqtt

import (
	"errors"
	"testing"
)

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("puckcentral")
	addr := "C4:BE:84:0A:11:02"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"BLECommand", topics.BLECommand(addr), "puckcentral/ble/command/C4:BE:84:0A:11:02"},
		{"BLEEvent", topics.BLEEvent(addr), "puckcentral/ble/event/C4:BE:84:0A:11:02"},
		{"AllBLEEvents", topics.AllBLEEvents(), "puckcentral/ble/event/+"},
		{"BLEGesture", topics.BLEGesture(addr), "puckcentral/ble/gesture/C4:BE:84:0A:11:02"},
		{"AllBLEGestures", topics.AllBLEGestures(), "puckcentral/ble/gesture/+"},
		{"BridgeHealth", topics.BridgeHealth(), "puckcentral/ble/health"},
		{"BeaconEntered", topics.BeaconEntered(), "puckcentral/beacon/entered"},
		{"BeaconExited", topics.BeaconExited(), "puckcentral/beacon/exited"},
		{"AllBeacons", topics.AllBeacons(), "puckcentral/beacon/+"},
		{"Notify", topics.Notify("phone"), "puckcentral/notify/phone"},
		{"TriggerFired", topics.TriggerFired("p1", "enter-zone"), "puckcentral/trigger/p1/enter-zone"},
		{"SystemStatus", topics.SystemStatus(), "puckcentral/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewTopics_Prefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"home/pucks/", "home/pucks"},
		{"/home", "home"},
		{"", DefaultTopicPrefix},
	}
	for _, tt := range tests {
		if got := NewTopics(tt.in).Prefix(); got != tt.want {
			t.Errorf("NewTopics(%q).Prefix() = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := (Topics{}).SystemStatus(); got != "puckcentral/system/status" {
		t.Errorf("zero Topics SystemStatus() = %q", got)
	}
}

func TestLastSegment(t *testing.T) {
	if got := LastSegment("puckcentral/ble/event/C4:BE:84:0A:11:02"); got != "C4:BE:84:0A:11:02" {
		t.Errorf("LastSegment() = %q", got)
	}
	if got := LastSegment("plain"); got != "plain" {
		t.Errorf("LastSegment(no slash) = %q", got)
	}
}

func TestValidatePublishTopic(t *testing.T) {
	if err := ValidatePublishTopic("a/b/c"); err != nil {
		t.Errorf("valid topic error = %v", err)
	}
	for _, bad := range []string{"", "a/+/c", "a/#"} {
		if err := ValidatePublishTopic(bad); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidatePublishTopic(%q) = %v, want ErrInvalidTopic", bad, err)
		}
	}
}
