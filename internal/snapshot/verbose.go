package snapshot

// Verbose is Snapshot with every abbreviated key spelled out.
type Verbose struct {
	Timestamp       string                `json:"timestamp"`
	Cycle           *VerboseCycle         `json:"cycle"`
	Objectives      []VerboseObjective    `json:"objectives"`
	KeyResults      []VerboseKeyResult    `json:"key_results"`
	RiskyKeyResults []VerboseRiskyKR      `json:"risky_key_results"`
	BlockedTasks    []VerboseBlockedTask  `json:"blocked_tasks"`
	Stats           Stats                 `json:"stats"`
	TopPriorities   []VerbosePriorityTask `json:"top_priorities"`
}

// VerboseCycle is Cycle with full field names.
type VerboseCycle struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	ElapsedRatio float64 `json:"elapsed_ratio"`
}

// VerboseObjective is Objective with full field names.
type VerboseObjective struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Progress  float64 `json:"progress"`
	RiskScore float64 `json:"risk_score"`
	Type      string  `json:"type"`
	Horizon   string  `json:"horizon"`
}

// VerboseKeyResult is KeyResult with full field names.
type VerboseKeyResult struct {
	ID          string   `json:"id"`
	ObjectiveID string   `json:"objective_id"`
	Title       string   `json:"title"`
	Progress    float64  `json:"progress"`
	RiskScore   float64  `json:"risk_score"`
	Velocity    *float64 `json:"velocity"`
	Type        string   `json:"type"`
	Target      *string  `json:"target"`
	Current     *string  `json:"current"`
	DaysLeft    *int     `json:"days_left"`
	TaskCount   int      `json:"task_count"`
	DoneCount   int      `json:"done_count"`
}

// VerboseRiskyKR is RiskyKR with full field names.
type VerboseRiskyKR struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	RiskScore   float64 `json:"risk_score"`
	ProgressGap float64 `json:"progress_gap"`
}

// VerboseBlockedTask is BlockedTask with full field names.
type VerboseBlockedTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// VerbosePriorityTask is PriorityTask with full field names.
type VerbosePriorityTask struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	PriorityScore float64 `json:"priority_score"`
	KRRisk        float64 `json:"kr_risk"`
	Status        string  `json:"status"`
	DueDate       *string `json:"due_date"`
	Blocking      bool    `json:"blocking"`
}

// ToVerbose renames every field of s. It adds and drops nothing.
func ToVerbose(s *Snapshot) *Verbose {
	v := &Verbose{
		Timestamp:       s.TS,
		Objectives:      make([]VerboseObjective, 0, len(s.Objectives)),
		KeyResults:      make([]VerboseKeyResult, 0, len(s.KeyResults)),
		RiskyKeyResults: make([]VerboseRiskyKR, 0, len(s.Risky)),
		BlockedTasks:    make([]VerboseBlockedTask, 0, len(s.Blocked)),
		Stats:           s.Stats,
		TopPriorities:   make([]VerbosePriorityTask, 0, len(s.Priorities)),
	}
	if s.Cycle != nil {
		v.Cycle = &VerboseCycle{ID: s.Cycle.ID, Name: s.Cycle.Name, Type: s.Cycle.Type, ElapsedRatio: s.Cycle.Elapsed}
	}
	for _, o := range s.Objectives {
		v.Objectives = append(v.Objectives, VerboseObjective{
			ID: o.ID, Title: o.T, Progress: o.P, RiskScore: o.R, Type: o.Type, Horizon: o.Horizon,
		})
	}
	for _, k := range s.KeyResults {
		v.KeyResults = append(v.KeyResults, VerboseKeyResult{
			ID: k.ID, ObjectiveID: k.OID, Title: k.T, Progress: k.P, RiskScore: k.R, Velocity: k.V,
			Type: k.Type, Target: k.Target, Current: k.Current, DaysLeft: k.DaysLeft,
			TaskCount: k.TaskCount, DoneCount: k.DoneCount,
		})
	}
	for _, r := range s.Risky {
		v.RiskyKeyResults = append(v.RiskyKeyResults, VerboseRiskyKR{ID: r.ID, Title: r.T, RiskScore: r.R, ProgressGap: r.Gap})
	}
	for _, b := range s.Blocked {
		v.BlockedTasks = append(v.BlockedTasks, VerboseBlockedTask{ID: b.ID, Title: b.T})
	}
	for _, p := range s.Priorities {
		v.TopPriorities = append(v.TopPriorities, VerbosePriorityTask{
			ID: p.ID, Title: p.T, PriorityScore: p.PS, KRRisk: p.KRR, Status: p.Status, DueDate: p.Due, Blocking: p.Blocking,
		})
	}
	return v
}
