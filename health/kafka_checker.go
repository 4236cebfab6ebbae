package health

import (
	"context"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

var errNoBrokers = errors.New("no kafka brokers configured")

// KafkaChecker 依次尝试各 broker，任一能返回集群元数据即视为可用。
func KafkaChecker(brokers []string) Checker {
	dialer := &kafkago.Dialer{Timeout: defaultCheckTimeout}
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errNoBrokers
		}
		var errs []error
		for _, addr := range brokers {
			err := probeBroker(ctx, dialer, addr)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
}

func probeBroker(ctx context.Context, dialer *kafkago.Dialer, addr string) error {
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("metadata from %s: %w", addr, err)
	}
	return nil
}
