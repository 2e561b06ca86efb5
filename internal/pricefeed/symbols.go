package pricefeed

// Canonical symbols are what the store and the engine see. The vendor speaks
// its own identifiers; this table is the only place the two differ.
var vendorSymbols = map[string]string{
	"BTC":  "BINANCE:BTCUSDT",
	"ETH":  "BINANCE:ETHUSDT",
	"SOL":  "BINANCE:SOLUSDT",
	"BNB":  "BINANCE:BNBUSDT",
	"XRP":  "BINANCE:XRPUSDT",
	"DOGE": "BINANCE:DOGEUSDT",
}

// VendorSymbol maps a canonical symbol to the vendor identifier. Unmapped
// symbols are not fetchable and are skipped for the tick.
func VendorSymbol(canonical string) (string, bool) {
	v, ok := vendorSymbols[canonical]
	return v, ok
}
