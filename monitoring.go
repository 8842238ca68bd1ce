package colshm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TableStats describes one table stored in a region.
type TableStats struct {
	Name    string
	Offset  int64
	Size    int
	Rows    int
	Columns int

	NumericBytes int
	StringBytes  int
}

func (r *Region) TableStats(name string) (TableStats, error) {
	off, err := r.offset(name)
	if err != nil {
		return TableStats{}, err
	}
	l, err := r.Layout(name)
	if err != nil {
		return TableStats{}, err
	}
	ts := TableStats{
		Name:    name,
		Offset:  off,
		Size:    l.Size(),
		Rows:    l.Rows(),
		Columns: len(l.Slots),
	}
	for _, s := range l.Slots {
		if s.Type.Numeric() {
			ts.NumericBytes += s.End - s.DataOff
		} else {
			ts.StringBytes += s.End - s.DataOff
		}
	}
	return ts, nil
}

type regionCollector struct {
	r *Region

	capacity   *prometheus.Desc
	used       *prometheus.Desc
	tables     *prometheus.Desc
	operations *prometheus.Desc
	mapped     *prometheus.Desc
}

// NewCollector exposes a region's usage and operation counters as Prometheus
// metrics, labeled with the region name.
func NewCollector(r *Region) prometheus.Collector {
	labels := prometheus.Labels{"region": r.Name()}
	return &regionCollector{
		r:          r,
		capacity:   prometheus.NewDesc("colshm_region_capacity_bytes", "Size of the shared arena.", nil, labels),
		used:       prometheus.NewDesc("colshm_region_used_bytes", "Bytes allocated to tables.", nil, labels),
		tables:     prometheus.NewDesc("colshm_region_tables", "Tables registered in the directory.", nil, labels),
		operations: prometheus.NewDesc("colshm_region_operations_total", "Operations performed by this process.", []string{"op"}, labels),
		mapped:     prometheus.NewDesc("colshm_region_mapped_values_total", "Values rewritten in place.", nil, labels),
	}
}

func (c *regionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.used
	ch <- c.tables
	ch <- c.operations
	ch <- c.mapped
}

func (c *regionCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.r.Stats()
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity))
	ch <- prometheus.MustNewConstMetric(c.used, prometheus.GaugeValue, float64(st.Used))
	ch <- prometheus.MustNewConstMetric(c.tables, prometheus.GaugeValue, float64(st.Tables))
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(st.Adds), "add")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(st.Duplicates), "add_duplicate")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(st.Heads), "head")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(st.GroupBys), "group_by_sum")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(st.Maps), "map")
	ch <- prometheus.MustNewConstMetric(c.mapped, prometheus.CounterValue, float64(st.MappedValues))
}
