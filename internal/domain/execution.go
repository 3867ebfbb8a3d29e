package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageInput holds the operator parameters of a triangular arbitrage
// instance. It is always replaced as a whole.
type ArbitrageInput struct {
	// TotalQuantity is the amount of BTC to trade on each leg.
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
	// MaxOrderQuantity caps the size of any single order.
	MaxOrderQuantity decimal.Decimal `json:"maxOrderQuantity"`
	// TargetSpread is the market spread above which orders are sent.
	TargetSpread decimal.Decimal `json:"targetSpread"`
	// CrowdFactor dampens the visible book quantity when it is much larger
	// than MaxOrderQuantity. 1 uses the whole quantity.
	CrowdFactor decimal.Decimal `json:"crowdFactor"`
	// ManualPegQuote replaces the peg price while the market quote is absent.
	ManualPegQuote decimal.Decimal `json:"manualPegQuote"`
}

// ExecutionContext is the snapshot of everything the algo knew when it
// decided to trade. It is persisted with the execution and is the only input
// of the summary calculation and the order senders.
type ExecutionContext struct {
	QuantityShort  decimal.Decimal `json:"quantityShort"`
	QuantityLong   decimal.Decimal `json:"quantityLong"`
	ShortBestOffer DepthLevel      `json:"shortBestOffer"`
	LongBestOffer  DepthLevel      `json:"longBestOffer"`
	PegPrice       decimal.Decimal `json:"pegPrice"`
	MarketSpread   decimal.Decimal `json:"marketSpread"`
	Fees           ArbitrageFees   `json:"fees"`
	Parameters     ArbitrageInput  `json:"parameters"`
	ShortBook      Depth           `json:"shortBook"`
	LongBook       Depth           `json:"longBook"`
}

// SummaryLeg is the formatted result of one order book leg.
type SummaryLeg struct {
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	GrossTotal  string `json:"grossTotal"`
	FeeTrade    string `json:"feeTrade"`
	FeeWithdraw string `json:"feeWithdraw"`
	NetTotal    string `json:"netTotal"`
}

// SummaryPeg is the formatted result of the currency conversion leg.
type SummaryPeg struct {
	Price           string `json:"price"`
	UnitFeeExchange string `json:"unitFeeExchange"`
	UnitFeeIOF      string `json:"unitFeeIof"`
	LongTotal       string `json:"longTotal"`
	BuyUSD          string `json:"buyUsd"`
}

// ProfitAndLoss is the formatted outcome of an execution.
type ProfitAndLoss struct {
	USD           string `json:"usd"`
	BRL           string `json:"brl"`
	Spread        string `json:"spread"`
	TargetReached bool   `json:"targetReached"`
}

// Summary is the post trade report of an execution.
type Summary struct {
	Version  int           `json:"version"`
	ShortLeg SummaryLeg    `json:"shortLeg"`
	LongLeg  SummaryLeg    `json:"longLeg"`
	PegLeg   SummaryPeg    `json:"pegLeg"`
	PAndL    ProfitAndLoss `json:"pAndL"`
}

// ArbitrageExecution is the persisted record of one trading decision.
type ArbitrageExecution struct {
	ID                int64            `json:"id"`
	AlgoInstanceID    int64            `json:"algoInstanceId"`
	Summary           Summary          `json:"summary"`
	Context           ExecutionContext `json:"context"`
	NeedsConciliation bool             `json:"needsConciliation"`
	ConciliationID    *int64           `json:"conciliationId"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// ConciliatedExecution is one execution folded into a conciliation.
type ConciliatedExecution struct {
	ID             int64           `json:"id"`
	QtyAccumulated decimal.Decimal `json:"qtyAccumulated"`
}

// AccumulatedExecutions aggregates the unbalanced short-only executions of
// an instance. It is recomputed on demand and never kept between runs.
type AccumulatedExecutions struct {
	AlgoInstanceID   int64                  `json:"algoInstanceId"`
	TotalAccumulated decimal.Decimal        `json:"totalAccumulated"`
	Executions       []ConciliatedExecution `json:"executions"`
}

// Conciliation is the persisted record of a catch-up long order.
type Conciliation struct {
	ID             int64                 `json:"id"`
	AlgoInstanceID int64                 `json:"algoInstanceId"`
	Conciliation   AccumulatedExecutions `json:"conciliation"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// OTCInput holds the operator parameters of an OTC quoting instance.
type OTCInput struct {
	// QuoteSpread is added to the fee factor of the published price.
	QuoteSpread decimal.Decimal `json:"quoteSpread"`
	// ManualPegQuote replaces the peg price while the market quote is absent.
	ManualPegQuote decimal.Decimal `json:"manualPegQuote"`
}

// OTCQuote is the price published by an OTC instance.
type OTCQuote struct {
	InstanceID int64           `json:"instanceId"`
	Price      decimal.Decimal `json:"price"`
	At         time.Time       `json:"at"`
}
