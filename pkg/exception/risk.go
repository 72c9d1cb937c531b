package exception

import "github.com/yanun0323/errors"

var (
	ErrRiskInconsistentState = errors.New("risk: risk state inconsistent with drawdown")
	ErrRiskInvalidLimits     = errors.New("risk: invalid limits")
	ErrRiskNilRepository     = errors.New("risk: nil account repository")
)
