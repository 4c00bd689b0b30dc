package conf

import "testing"

func TestNewFillsDefaults(t *testing.T) {
	c := New()
	if errs := c.Validate(); len(errs) != 0 {
		t.Errorf("expected default config to validate, got %v", errs)
	}
	if c.MaxPacketSize != DefaultMaxPacketSize {
		t.Errorf("MaxPacketSize = %d, want %d", c.MaxPacketSize, DefaultMaxPacketSize)
	}
}

func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	c := &Config{MaxPacketSize: 2000}
	c.setDefaults()
	if c.MaxPacketSize != 2000 {
		t.Errorf("explicit MaxPacketSize overwritten: got %d", c.MaxPacketSize)
	}
	if c.FragmentThreshold != DefaultFragmentThreshold {
		t.Errorf("FragmentThreshold not defaulted: got %d", c.FragmentThreshold)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	c := &Config{
		ReceiveBufferMaxSize: 1,
		MaxPacketSize:        1,
		FragmentThreshold:    10, // exceeds MaxPacketSize
		AckWindowSize:        0,
		ResendAfterTicks:     0,
		OrderingHoldLimit:    0,
		IdleConnectionTimeout: 0,
	}
	errs := c.Validate()
	if len(errs) < 6 {
		t.Errorf("expected multiple validation errors, got %d: %v", len(errs), errs)
	}
}

func TestFragmentThresholdExceedsMaxPacketSize(t *testing.T) {
	c := New()
	c.FragmentThreshold = c.MaxPacketSize + 1
	errs := c.Validate()
	if len(errs) == 0 {
		t.Errorf("expected an error when FragmentThreshold exceeds MaxPacketSize")
	}
}
