package domain

// PriceLevel is one occupied bin of a volume profile. Levels are created
// fresh per aggregation call over a fixed price grid and never persisted.
type PriceLevel struct {
	Price       float64 `json:"price"`
	TotalVolume float64 `json:"total_volume"`
	BuyVolume   float64 `json:"buy_volume"`
	SellVolume  float64 `json:"sell_volume"`
	MakerVolume float64 `json:"maker_volume"`
	TakerVolume float64 `json:"taker_volume"`
	TradeCount  int     `json:"trade_count"`
}

// PriceRange is an inclusive price interval.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// VolumeProfile is a computed histogram together with its summary statistics.
type VolumeProfile struct {
	Levels         []PriceLevel `json:"levels"`
	PointOfControl float64      `json:"point_of_control"`
	ValueArea      PriceRange   `json:"value_area"`
	TotalVolume    float64      `json:"total_volume"`
	TradeCount     int          `json:"trade_count"`
}
