package offscreen

import (
	"errors"
	"testing"
	"time"
)

func TestPipelineConfigValidate(t *testing.T) {
	if err := DefaultPipelineConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"zero width", func(c *PipelineConfig) { c.Width = 0 }},
		{"negative height", func(c *PipelineConfig) { c.Height = -1 }},
		{"too wide", func(c *PipelineConfig) { c.Width = MaxDimension + 1 }},
		{"clear color", func(c *PipelineConfig) { c.ClearColor.Y = 1.5 }},
		{"timeout", func(c *PipelineConfig) { c.ReadbackTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultPipelineConfig()
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestPipelineConfigDerived(t *testing.T) {
	c := DefaultPipelineConfig()
	c.Width, c.Height = 200, 100
	if c.Aspect() != 2 {
		t.Errorf("Aspect() = %v", c.Aspect())
	}
	c.ReadbackTimeout = 0
	if c.Timeout() != DefaultReadbackTimeout {
		t.Errorf("Timeout() = %v", c.Timeout())
	}
	c.ReadbackTimeout = time.Second
	if c.Timeout() != time.Second {
		t.Errorf("Timeout() = %v", c.Timeout())
	}
}

func TestParsePushConstantPolicy(t *testing.T) {
	for _, p := range []PushConstantPolicy{PushConstantsAuto, PushConstantsRequire, PushConstantsOff} {
		got, err := ParsePushConstantPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePushConstantPolicy(%q) = %v, %v", p, got, err)
		}
	}
	if got, err := ParsePushConstantPolicy(""); err != nil || got != PushConstantsAuto {
		t.Errorf("empty policy = %v, %v", got, err)
	}
	if _, err := ParsePushConstantPolicy("always"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v", err)
	}
}
