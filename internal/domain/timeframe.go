package domain

// Timeframe is an immutable catalog entry describing one chart resolution.
// Entries are only ever referenced, never mutated.
type Timeframe struct {
	ID          string `json:"id"`
	Interval    string `json:"interval"`
	CandleLimit int    `json:"candle_limit"`
	Label       string `json:"label"`
}

// timeframes is the built-in catalog, ordered from fastest to slowest.
var timeframes = []Timeframe{
	{ID: "1m", Interval: "1m", CandleLimit: 500, Label: "1 Minute"},
	{ID: "5m", Interval: "5m", CandleLimit: 500, Label: "5 Minutes"},
	{ID: "15m", Interval: "15m", CandleLimit: 500, Label: "15 Minutes"},
	{ID: "1h", Interval: "1h", CandleLimit: 500, Label: "1 Hour"},
	{ID: "4h", Interval: "4h", CandleLimit: 400, Label: "4 Hours"},
	{ID: "1d", Interval: "1d", CandleLimit: 365, Label: "1 Day"},
	{ID: "1w", Interval: "1w", CandleLimit: 260, Label: "1 Week"},
}

// Timeframes returns a copy of the full timeframe catalog.
func Timeframes() []Timeframe {
	out := make([]Timeframe, len(timeframes))
	copy(out, timeframes)
	return out
}

// TimeframeByID looks up a catalog entry by its ID.
func TimeframeByID(id string) (Timeframe, bool) {
	for _, tf := range timeframes {
		if tf.ID == id {
			return tf, true
		}
	}
	return Timeframe{}, false
}
