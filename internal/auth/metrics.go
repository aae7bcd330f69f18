package auth

// MetricsRecorder は認証まわりのメトリクスを記録するインターフェース。
type MetricsRecorder interface {
	RecordLogin(clientType ClientType, outcome string)
	RecordTokenIssued(name string)
	RecordTokenValidation(valid bool)
	RecordTokensRevoked(n int)
}

// ログイン結果のラベル値
const (
	LoginOutcomeSuccess      = "success"
	LoginOutcomeExchangeFail = "exchange_failed"
	LoginOutcomeInactive     = "inactive"
	LoginOutcomeError        = "error"
)

type nopMetrics struct{}

func (nopMetrics) RecordLogin(ClientType, string) {}
func (nopMetrics) RecordTokenIssued(string)       {}
func (nopMetrics) RecordTokenValidation(bool)     {}
func (nopMetrics) RecordTokensRevoked(int)        {}
