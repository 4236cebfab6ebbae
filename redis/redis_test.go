package redis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/wyfcoding/optiongreeks/config"
)

func TestNewClientNotConfigured(t *testing.T) {
	_, _, err := NewClient(&config.RedisConfig{}, nil, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{Nil, "nil"},
		{fmt.Errorf("get: %w", Nil), "nil"},
		{errors.New("i/o timeout"), "error"},
	}
	for _, c := range cases {
		if got := outcome(c.err); got != c.want {
			t.Errorf("outcome(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
