package pool

// TypeStats reports the state of one agent type's sub-pool.
type TypeStats struct {
	Available    int     `json:"available"`
	InUse        int     `json:"in_use"`
	Initializing int     `json:"initializing"`
	Resetting    int     `json:"resetting"`
	Waiting      int     `json:"waiting"`
	MaxSize      int     `json:"max_size"`
	MinSize      int     `json:"min_size"`
	AvgReuse     float64 `json:"avg_reuse"`
}

// Stats is an on-demand snapshot of the whole pool.
type Stats struct {
	TotalAgents  int                  `json:"total_agents"`
	Acquisitions int64                `json:"acquisitions"`
	Misses       int64                `json:"misses"`
	// HitRate is (acquisitions - misses) / acquisitions; a miss is any
	// successful acquire that did not come straight off the fast path.
	HitRate float64 `json:"hit_rate"`
	// AvgAcquireTimeMs is the mean latency of successful acquisitions.
	AvgAcquireTimeMs float64              `json:"avg_acquire_time_ms"`
	Types            map[string]TypeStats `json:"types"`
}
