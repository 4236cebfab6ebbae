// Package pricing 实现期权合约的估值、希腊值有限差分估计、隐含波动率求解与按合约/日期/版本缓存的定价引擎。
package pricing

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Right 期权方向。
type Right int

const (
	Call Right = iota
	Put
)

func (r Right) String() string {
	if r == Put {
		return "put"
	}
	return "call"
}

// ParseRight 解析 call/put（大小写不敏感，也接受 C/P）。
func ParseRight(s string) (Right, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return Call, xerrors.ErrInvalidContract.WithDetail("unknown right %q", s)
}

func (r Right) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

func (r *Right) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRight(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Style 行权方式。
type Style int

const (
	European Style = iota
	American
)

func (s Style) String() string {
	if s == American {
		return "american"
	}
	return "european"
}

// ParseStyle 解析 european/american。
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "european", "e":
		return European, nil
	case "american", "a":
		return American, nil
	}
	return European, xerrors.ErrInvalidContract.WithDetail("unknown exercise style %q", s)
}

func (s Style) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Style) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	v, err := ParseStyle(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// DefaultMultiplier 标准美股期权合约乘数。
const DefaultMultiplier = 100

// ContractTerms 合约条款，发现合约时创建一次，之后不再修改。
type ContractTerms struct {
	ContractID string    `json:"contract_id" validate:"required"`
	Underlying string    `json:"underlying"  validate:"required"`
	Strike     float64   `json:"strike"      validate:"gt=0"`
	Expiry     time.Time `json:"expiry"`
	Right      Right     `json:"right"`
	Style      Style     `json:"style"`
	Multiplier int       `json:"multiplier"`
}

// Validate 校验条款完整性，为缺省乘数补默认值并把到期日截断到日。
func (t *ContractTerms) Validate() error {
	switch {
	case t.ContractID == "":
		return xerrors.ErrInvalidContract.WithDetail("contract id is empty")
	case t.Underlying == "":
		return xerrors.ErrInvalidContract.WithDetail("underlying is empty for %s", t.ContractID)
	case !(t.Strike > 0) || math.IsInf(t.Strike, 0):
		return xerrors.ErrInvalidContract.WithDetail("strike %v must be positive for %s", t.Strike, t.ContractID)
	case t.Expiry.IsZero():
		return xerrors.ErrInvalidContract.WithDetail("expiry is missing for %s", t.ContractID)
	case t.Right != Call && t.Right != Put:
		return xerrors.ErrInvalidContract.WithDetail("right %d is unknown", t.Right)
	case t.Style != European && t.Style != American:
		return xerrors.ErrInvalidContract.WithDetail("style %d is unknown", t.Style)
	}
	if t.Multiplier <= 0 {
		t.Multiplier = DefaultMultiplier
	}
	t.Expiry = datetime.DateOnly(t.Expiry)
	return nil
}

// OCCSymbol 按 OCC 规则生成合约代码：标的 + yyMMdd + C/P + 8 位行权价（千分之一美元）。
func OCCSymbol(t ContractTerms) string {
	cp := "C"
	if t.Right == Put {
		cp = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", strings.ToUpper(t.Underlying), t.Expiry.Format("060102"), cp, int64(math.Round(t.Strike*1000)))
}

// Intrinsic 在给定标的价格下的内在价值。
func (t ContractTerms) Intrinsic(spot float64) float64 {
	return payoff(t.Right, spot, t.Strike)
}

func payoff(r Right, spot, strike float64) float64 {
	if r == Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}
