// Package domain models gridded rainfall forecasts and their aggregation over
// administrative boundaries.
//
// # Data Source
//
// Forecasts come from the MET Norway LocationForecast 2.0 API
// (https://api.met.no/weatherapi/locationforecast/2.0/documentation). One
// request is made per grid point. Each response carries a timeseries of
// forecast steps; a step may hold up to three precipitation blocks:
//
//	next_1_hours   hourly steps, roughly the first 60 hours
//	next_6_hours   every step, covering the whole horizon (~10 days)
//	next_12_hours  every step, no precipitation_amount in practice
//
// Each block with a precipitation_amount becomes one [ForecastReading] whose
// HoursAhead is the block length (1, 6 or 12), not the lead time.
//
// # Series Selection
//
// Blocks of different lengths overlap: the 6-hour block at 00:00 covers the
// same rain as the six hourly blocks from 00:00 to 05:00. [SelectSeries]
// removes the overlap so rainfall can be summed:
//
//	hourly    keep only 1-hour blocks
//	stitched  keep the finest blocks first, then coarser blocks that do not
//	          overlap any kept block (1h up to ~60h, 6h afterwards)
//
// # Raster Layout
//
// A [Raster] is a time × y × x cube. x holds the sorted unique longitudes,
// y the sorted unique latitudes of the grid points; every grid point is the
// centre of one cell. Cells without a reading hold NaN.
//
// # Units and Sentinels
//
// All values are millimetres. Rainfall is never negative, so values below 0
// are treated as no-data markers and excluded from aggregation together with
// NaN.
//
// # Daily Windows
//
// [Rollup] partitions a series into consecutive windows anchored at its
// first timestamp. A window starting at s holds values with s <= t < s+24h;
// windows are labelled by cumulative hours ahead ("hr-24", "hr-48", ...).
package domain
