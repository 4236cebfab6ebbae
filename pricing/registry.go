package pricing

import (
	"fmt"
	"sync"
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Key 引擎缓存键：合约标识、计算日、模型版本。同一合约同一天可按版本缓存多个引擎用于情景分析。
type Key struct {
	ContractID string
	Date       time.Time
	Version    int
}

// NewKey 计算日截断到日。
func NewKey(contractID string, date time.Time, version int) Key {
	return Key{ContractID: contractID, Date: datetime.DateOnly(date), Version: version}
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s#v%d", k.ContractID, datetime.FormatDate(k.Date), k.Version)
}

// Registry 由组合根持有的引擎登记表。每个键恰好构造一个引擎：
// 插入路径由 mu 串行化，已存在条目的读取无锁。没有淘汰策略，生命周期与进程（一个交易时段）一致。
type Registry struct {
	mu      sync.Mutex
	engines sync.Map // Key -> *Engine
	terms   sync.Map // contractID -> ContractTerms
	opts    []Option
}

// NewRegistry 创建登记表，opts 作用于其后创建的每个引擎。
func NewRegistry(opts ...Option) *Registry {
	return &Registry{opts: opts}
}

// Register 登记合约条款。条款不可变，同一合约以不同条款重复登记时返回 ErrContractExists。
func (r *Registry) Register(t ContractTerms) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if prev, loaded := r.terms.LoadOrStore(t.ContractID, t); loaded && !sameTerms(prev.(ContractTerms), t) {
		return xerrors.ErrContractExists.WithContext("contract", t.ContractID)
	}
	return nil
}

func sameTerms(a, b ContractTerms) bool {
	return a.Underlying == b.Underlying && a.Strike == b.Strike && a.Expiry.Equal(b.Expiry) &&
		a.Right == b.Right && a.Style == b.Style && a.Multiplier == b.Multiplier
}

// Terms 返回已登记的合约条款。
func (r *Registry) Terms(contractID string) (ContractTerms, bool) {
	v, ok := r.terms.Load(contractID)
	if !ok {
		return ContractTerms{}, false
	}
	return v.(ContractTerms), true
}

// Get 只读查找已存在的引擎。
func (r *Registry) Get(k Key) (*Engine, bool) {
	k.Date = datetime.DateOnly(k.Date)
	v, ok := r.engines.Load(k)
	if !ok {
		return nil, false
	}
	return v.(*Engine), true
}

// GetOrCreate 返回键对应的引擎，不存在时以已登记的条款创建，估值日为键上的计算日。
func (r *Registry) GetOrCreate(k Key) (*Engine, error) {
	k.Date = datetime.DateOnly(k.Date)
	if e, ok := r.Get(k); ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.Get(k); ok {
		return e, nil
	}
	t, ok := r.Terms(k.ContractID)
	if !ok {
		return nil, xerrors.ErrEngineNotFound.WithContext("contract", k.ContractID)
	}
	e, err := NewEngine(t, k.Date, r.opts...)
	if err != nil {
		return nil, err
	}
	r.engines.Store(k, e)
	return e, nil
}

// Len 返回已创建的引擎数量。
func (r *Registry) Len() int {
	n := 0
	r.engines.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
