package idgen

import (
	"errors"
	"strings"
	"testing"

	"github.com/wyfcoding/optiongreeks/config"
)

func TestSnowflakeUnique(t *testing.T) {
	g, err := NewGenerator(config.SnowflakeConfig{Type: "snowflake", MachineID: 3})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	seen := make(map[int64]bool)
	for range 1000 {
		id := g.Generate()
		if id <= 0 || seen[id] {
			t.Fatalf("bad or duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestSonyflakeMachineIDRange(t *testing.T) {
	if _, err := NewGenerator(config.SnowflakeConfig{Type: "sonyflake", MachineID: 70000}); !errors.Is(err, ErrInvalidMachineID) {
		t.Errorf("err = %v, want ErrInvalidMachineID", err)
	}
	g, err := NewGenerator(config.SnowflakeConfig{Type: "sonyflake", MachineID: 7, StartTime: "2024-01-01"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if a, b := g.Generate(), g.Generate(); a == b || a <= 0 {
		t.Errorf("ids %d, %d", a, b)
	}
}

func TestUnsupportedType(t *testing.T) {
	if _, err := NewGenerator(config.SnowflakeConfig{Type: "uuid"}); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("err = %v, want ErrUnsupportedType", err)
	}
	if _, err := NewGenerator(config.SnowflakeConfig{StartTime: "01/02/2024"}); err == nil {
		t.Error("expected error for malformed start time")
	}
}

func TestReportNo(t *testing.T) {
	g, err := NewGenerator(config.SnowflakeConfig{MachineID: 1})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	no := ReportNo(g)
	if !strings.HasPrefix(no, "PLX") || len(no) < 10 {
		t.Errorf("report no = %q", no)
	}
	if ReportNo(nil) == ReportNo(nil) {
		t.Error("default generator returned duplicate report numbers")
	}
}
