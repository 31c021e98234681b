package scheduler

import "testing"

func TestRegisterValidatesJobs(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"every minute", Job{Name: "sweep", Schedule: "* * * * *", Run: func() {}}, false},
		{"every five minutes", Job{Name: "recovery", Schedule: "*/5 * * * *", Run: func() {}}, false},
		{"garbage schedule", Job{Name: "sweep", Schedule: "not a cron expr", Run: func() {}}, true},
		{"six fields", Job{Name: "sweep", Schedule: "* * * * * *", Run: func() {}}, true},
		{"nil task", Job{Name: "sweep", Schedule: "* * * * *"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			defer s.Stop()
			err := s.Register(tt.job)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register(%+v) error = %v, wantErr %v", tt.job, err, tt.wantErr)
			}
		})
	}
}

func TestRegisterTracksJobNames(t *testing.T) {
	s := New()
	defer s.Stop()

	if err := s.Register(Job{Name: "dispatch-sweep", Schedule: "* * * * *", Run: func() {}}); err != nil {
		t.Fatalf("Register sweep: %v", err)
	}
	if err := s.Register(Job{Name: "stale-claim-recovery", Schedule: "*/5 * * * *", Run: func() {}}); err != nil {
		t.Fatalf("Register recovery: %v", err)
	}
	if len(s.jobs) != 2 || s.jobs[0] != "dispatch-sweep" || s.jobs[1] != "stale-claim-recovery" {
		t.Errorf("jobs = %v, want [dispatch-sweep stale-claim-recovery]", s.jobs)
	}
}
