package bitmart

import "marketsync/internal/market"

// PublicChannelKey identifies a public stream: {type}/{channel}:{id}
func PublicChannelKey(m market.Market, channel string) string {
	return string(m.Type) + "/" + channel + ":" + m.ID
}

// PrivateChannelKey identifies a private stream: {channel}:{id}
func PrivateChannelKey(m market.Market, channel string) string {
	return channel + ":" + m.ID
}

// InboundChannelKey is the key an inbound data frame resolves. The table of
// a public frame is {type}/{channel} and of a private frame the channel
// itself, so it equals the key the stream was subscribed with.
func InboundChannelKey(table, marketID string) string {
	return table + ":" + marketID
}
