package xerrors

var (
	// ErrInvalidInput 输入参数错误。
	ErrInvalidInput = New(ErrInvalidArg, 400002, "invalid input", "check your input parameters", nil)
	// ErrInvalidContract 合约条款不合法。
	ErrInvalidContract = New(ErrInvalidArg, 400101, "invalid contract terms", "strike, expiry, right and style are required", nil)
	// ErrExpired 估值日已到期或超过到期日。
	ErrExpired = New(ErrInvalidArg, 400102, "contract expired", "valuation date is at or past expiry", nil)
	// ErrSnapshotOrder 快照时间戳不递增。
	ErrSnapshotOrder = New(ErrInvalidArg, 400103, "snapshot out of order", "snapshots must be appended in timestamp order", nil)
	// ErrEngineNotFound 定价引擎未注册。
	ErrEngineNotFound = New(ErrNotFound, 404101, "pricing engine not found", "register the contract before requesting greeks", nil)
	// ErrZeroDeltaTerm Delta 归因项为零，对冲误差比例无定义。
	ErrZeroDeltaTerm = New(ErrNumeric, 422101, "delta term is zero", "hedging error ratio is undefined when the delta term is exactly 0", nil)
	// ErrMathConvergence 数值计算未收敛。
	ErrMathConvergence = New(ErrNumeric, 500002, "math convergence failed", "algorithm failed to converge", nil)
	// ErrModelEvaluation 定价模型求值失败。
	ErrModelEvaluation = New(ErrNumeric, 500101, "model evaluation failed", "pricing model rejected the inputs", nil)
)

// ErrContractExists 合约已以不同条款登记。
var ErrContractExists = New(ErrAlreadyExists, 409101, "contract already registered", "contract terms are immutable once registered", nil)
