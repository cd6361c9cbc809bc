// Package visualiser renders diagnostics for the fusion pipeline: a
// top-down scatter of each object's lidar cluster (gonum/plot) and an HTML
// timeline of stored TTC estimates (go-echarts).
package visualiser
