// Package idgen 生成归因报告编号，底层为 Snowflake 或 Sonyflake.
package idgen

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/sonyflake"

	"github.com/wyfcoding/optiongreeks/config"
)

var (
	ErrUnsupportedType  = errors.New("unsupported id generator type")
	ErrInvalidMachineID = errors.New("machine_id must be between 0 and 65535")
)

const (
	positiveMask = 0x7FFFFFFFFFFFFFFF
	reportPrefix = "PLX"
)

var defaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Generator 产生正的 int64 ID.
type Generator interface {
	Generate() int64
}

type builder func(cfg config.SnowflakeConfig, epoch time.Time) (Generator, error)

var builders = map[string]builder{
	"":          newSnowflake,
	"snowflake": newSnowflake,
	"sonyflake": newSonyflake,
}

// NewGenerator 按 cfg.Type 选择算法，StartTime 为空时以 2020-01-01 为纪元.
func NewGenerator(cfg config.SnowflakeConfig) (Generator, error) {
	build, ok := builders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
	epoch := defaultEpoch
	if cfg.StartTime != "" {
		st, err := time.Parse(time.DateOnly, cfg.StartTime)
		if err != nil {
			return nil, fmt.Errorf("parse start_time %q: %w", cfg.StartTime, err)
		}
		epoch = st
	}
	g, err := build(cfg, epoch)
	if err != nil {
		return nil, err
	}
	slog.Info("id generator initialized", "type", cfg.Type, "machine_id", cfg.MachineID, "epoch", epoch.Format(time.DateOnly))
	return g, nil
}

// snowflakeGen 每毫秒 4096 个，最多 1024 个节点.
type snowflakeGen struct {
	node *snowflake.Node
}

func newSnowflake(cfg config.SnowflakeConfig, epoch time.Time) (Generator, error) {
	// snowflake.Epoch 是包级变量，NewNode 时读取
	snowflake.Epoch = epoch.UnixMilli()
	node, err := snowflake.NewNode(cfg.MachineID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &snowflakeGen{node: node}, nil
}

func (g *snowflakeGen) Generate() int64 { return g.node.Generate().Int64() }

// sonyflakeGen 每 10ms 256 个，最多 65536 个节点；时钟回拨时短暂重试.
type sonyflakeGen struct {
	sf *sonyflake.Sonyflake
}

func newSonyflake(cfg config.SnowflakeConfig, epoch time.Time) (Generator, error) {
	if cfg.MachineID < 0 || cfg.MachineID > 65535 {
		return nil, ErrInvalidMachineID
	}
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: epoch,
		MachineID: func() (uint16, error) { return uint16(cfg.MachineID), nil },
	})
	if err != nil {
		return nil, fmt.Errorf("create sonyflake: %w", err)
	}
	return &sonyflakeGen{sf: sf}, nil
}

func (g *sonyflakeGen) Generate() int64 {
	for attempt := 1; attempt <= 3; attempt++ {
		id, err := g.sf.NextID()
		if err == nil {
			return int64(id & positiveMask)
		}
		slog.Warn("sonyflake NextID failed", "attempt", attempt, "error", err)
		time.Sleep(10 * time.Millisecond)
	}
	return 0
}

// Default 进程级生成器（Snowflake，machine_id 1），未显式注入生成器时使用.
var Default = sync.OnceValue(func() Generator {
	g, err := NewGenerator(config.SnowflakeConfig{MachineID: 1})
	if err != nil {
		panic(fmt.Errorf("idgen: default generator: %w", err))
	}
	return g
})

// ReportNo 归因报告编号："PLX" + 十进制 ID.
func ReportNo(g Generator) string {
	if g == nil {
		g = Default()
	}
	return reportPrefix + strconv.FormatInt(g.Generate()&positiveMask, 10)
}
