package eurostat

// JSON-stat 2.0 dataset, reduced to the parts the decoder reads. The value
// map is sparse: keys are flat row-major cell positions over the id/size
// vectors, rendered as decimal strings. Cells with a status flag but no
// value are reported gaps.
type jsonStat struct {
	Class     string                 `json:"class"`
	Label     string                 `json:"label"`
	Source    string                 `json:"source"`
	Updated   string                 `json:"updated"`
	ID        []string               `json:"id"`
	Size      []int                  `json:"size"`
	Value     map[string]*float64    `json:"value"`
	Status    map[string]string      `json:"status"`
	Dimension map[string]jsDimension `json:"dimension"`
}

type jsDimension struct {
	Label    string     `json:"label"`
	Category jsCategory `json:"category"`
}

type jsCategory struct {
	Index map[string]int    `json:"index"`
	Label map[string]string `json:"label"`
}
