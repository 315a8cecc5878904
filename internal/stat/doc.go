// Package stat provides the small statistical toolbox shared by the
// forecasting and inventory-optimization packages: descriptive statistics,
// simple linear trend fitting, and the standard normal distribution.
package stat
