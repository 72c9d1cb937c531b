package schema

// Payload keys are a hard contract shared with persistence and UI collaborators.
const (
	KeyID           = "id"
	KeyStrategyName = "strategyName"
	KeySymbol       = "symbol"
	KeySide         = "side"
	KeyLegs         = "legs"
	KeyLimitPrice   = "limitPrice"
	KeyRiskPerUnit  = "riskPerUnit"
	KeyShortDelta   = "shortDelta"

	KeySignalID  = "signalId"
	KeyQuantity  = "quantity"
	KeyOrderType = "orderType"
	KeyPrice     = "price"

	KeyOrderID        = "orderId"
	KeyFilledQuantity = "filledQuantity"
	KeyFillPrice      = "fillPrice"
	KeyCommission     = "commission"
	KeyTimestamp      = "timestamp"

	KeyIVRank     = "ivRank"
	KeyADX        = "adx"
	KeyIV         = "iv"
	KeyChain      = "chain"
	KeyExpiration = "expiration"
	KeyCalls      = "calls"
	KeyPuts       = "puts"
	KeyStrike     = "strike"
	KeyBid        = "bid"
	KeyAsk        = "ask"
	KeyLast       = "last"
	KeyOptionType = "optionType"

	KeyMessage       = "message"
	KeyOriginHandler = "originHandler"
	KeyStatus        = "status"
	KeyReason        = "reason"
)
