package types

// Decision 限流判定结果
// 放在公共类型包，limiter 与 api 共用，避免循环依赖
type Decision struct {
	Allowed       bool   // 是否允许请求
	Limit         int64  // 窗口内允许的最大请求数
	Remaining     int64  // 剩余可用配额
	ResetMs       int64  // 窗口重置时间(毫秒时间戳)
	RetryAfterSec int64  // 建议重试时间(秒)，仅拒绝时有效
	Reason        string // 判定原因
	Err           error  // 错误信息(如有)
}

// WalletScore is a wallet's reputation at one point in time. Every field is in [0,100].
type WalletScore struct {
	FinalScore  int `json:"final_score"`
	TnxScore    int `json:"tnx_score"`
	AgeScore    int `json:"age_score"`
	AssetsScore int `json:"assets_score"`
}

// Valid reports whether every component is inside [0,100].
func (s WalletScore) Valid() bool {
	for _, v := range []int{s.FinalScore, s.TnxScore, s.AgeScore, s.AssetsScore} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return true
}

// WalletScoreError replaces a WalletScore when the computation itself fails.
// FinalScore is always 0.
type WalletScoreError struct {
	Message     string `json:"error"`
	FinalScore  int    `json:"final_score"`
	TnxScore    *int   `json:"tnx_score,omitempty"`
	AgeScore    *int   `json:"age_score,omitempty"`
	AssetsScore *int   `json:"assets_score,omitempty"`
}

func (e *WalletScoreError) Error() string {
	return e.Message
}

// NewWalletScoreError builds an error payload with a zero final score.
func NewWalletScoreError(msg string) *WalletScoreError {
	if msg == "" {
		msg = "Unknown error"
	}
	return &WalletScoreError{Message: msg}
}

// Envelope is the JSON body of every HTTP response.
type Envelope struct {
	Message string `json:"message"`
	IsError bool   `json:"is_error"`
	Data    any    `json:"data"`
}
