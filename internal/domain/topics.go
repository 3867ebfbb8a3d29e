package domain

import (
	"strconv"
	"strings"
)

// Signal bus channels.

// DepthTopic carries the order book of an instrument.
func DepthTopic(inst Instrument) string {
	return "md.depth." + inst.Exchange + "." + inst.Symbol
}

// QuoteTopic carries the reference price of an instrument. Symbols are
// upper cased on this channel ("USDBRL").
func QuoteTopic(inst Instrument) string {
	return "md.quote." + inst.Exchange + "." + strings.ToUpper(inst.Symbol)
}

// StatusTopic carries the feed availability of an exchange.
func StatusTopic(exchange string) string {
	return "md.status." + exchange
}

// FeeTopic carries the updates of one fee.
func FeeTopic(provider, service string) string {
	return "fees." + provider + "." + service + ".update"
}

// FeeProviderPattern matches every fee update of a provider.
func FeeProviderPattern(provider string) string {
	return "fees." + provider + ".*.update"
}

// OrderFilledTopic carries the fills of an instance on one exchange.
func OrderFilledTopic(exchange string, instanceID int64) string {
	return "oms.order_filled." + exchange + "." + strconv.FormatInt(instanceID, 10)
}

// InstanceStateTopic carries the state changes of an instance.
func InstanceStateTopic(kind AlgoKind, instanceID int64) string {
	return "algos." + string(kind) + ".state." + strconv.FormatInt(instanceID, 10)
}

// InstanceStatePattern matches the state changes of every instance.
const InstanceStatePattern = "algos.*"

// FinalizedTopic announces the end of an instance.
func FinalizedTopic(kind AlgoKind) string {
	return "algos." + string(kind) + ".finalized"
}

// OTCQuoteTopic carries the prices published by an OTC instance.
func OTCQuoteTopic(instanceID int64) string {
	return "otc.quote." + strconv.FormatInt(instanceID, 10)
}

// AuditStream is the redis stream every transition is appended to.
const AuditStream = "audit:instances"
