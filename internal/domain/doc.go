// Package domain models Absorbing Aerosol Index (AAI) alert classes and the
// rasters they are applied to.
//
// # Data Source
//
// AAI grids come from Sentinel-5P L2__AER_AI products. Product search and
// download, HARP conversion and the GDAL merge all happen outside this
// package; it only sees the merged single-band float grid.
//
// # Class Definitions
//
// Alert classes are read from a JSON array, one object per class:
//
//	{"label": "good", "legend_label": null, "alert_label": "Bon",
//	 "color": "#00FF0080", "bounds_min": "-inf", "bounds_max": 0.4}
//
// Classes form an ordered, contiguous partition of the value axis:
//
//	bounds_max strictly ascending
//	bounds_min[i] == bounds_max[i-1] for i > 0
//	bounds_min[0] may be -inf, bounds_max[last] may be +inf
//
// JSON has no infinity literal, so bounds also accept the strings "-inf",
// "inf", "+inf", "-Infinity" and "Infinity".
//
// The position of a class in the array is its category code. Codes are
// written into categorical rasters and palette entries, so reordering the
// file changes the meaning of every previously produced raster.
//
// # Binning
//
// Intervals are right-closed: a value equal to bounds_max[i] belongs to
// class i, never to class i+1. Comparison happens at float32 precision, the
// precision of the source grid, so a cell holding float32(0.4) lands in the
// class whose upper bound is 0.4. Values above a finite last bound clamp to
// the last class. NaN, ±Inf and the grid's declared nodata value map to
// [NoDataCode].
//
// # Colors
//
// Colors are "#RRGGBBAA" strings decoded into non-premultiplied RGBA.
// Alpha drives swatch opacity in the legend and the fourth palette
// component in the styled raster.
package domain
