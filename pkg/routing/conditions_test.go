package routing

import "testing"

func TestConditionFires(t *testing.T) {
	ce, err := newConditionEvaluator()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		expression  string
		confidence  float64
		sensitivity float64
		topics      []string
		content     string
		want        bool
		wantErr     bool
	}{
		{
			name:        "sensitivity above threshold",
			expression:  `sensitivity > 0.6`,
			sensitivity: 0.7,
			want:        true,
		},
		{
			name:        "sensitivity at threshold",
			expression:  `sensitivity > 0.6`,
			sensitivity: 0.6,
			want:        false,
		},
		{
			name:       "confidence conjunction",
			expression: `confidence < 0.5 && sensitivity > 0.3`,
			confidence: 0.4, sensitivity: 0.4,
			want: true,
		},
		{
			name:       "topic membership",
			expression: `topics.exists(t, t == "conflict")`,
			topics:     []string{"planning", "conflict"},
			want:       true,
		},
		{
			name:       "topic membership miss",
			expression: `topics.exists(t, t == "conflict")`,
			topics:     []string{"planning"},
			want:       false,
		},
		{
			name:       "empty topics",
			expression: `topics.exists(t, t == "conflict")`,
			want:       false,
		},
		{
			name:       "content substring",
			expression: `content.contains("salary")`,
			content:    "my salary went up",
			want:       true,
		},
		{
			name:       "syntax error fires",
			expression: `sensitivity >>> (`,
			want:       true,
			wantErr:    true,
		},
		{
			name:       "unknown variable fires",
			expression: `mood > 0.5`,
			want:       true,
			wantErr:    true,
		},
		{
			name:       "non-boolean result fires",
			expression: `sensitivity + 0.1`,
			want:       true,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fired, err := ce.Fires(tt.expression, tt.confidence, tt.sensitivity, tt.topics, tt.content)
			if fired != tt.want {
				t.Errorf("Fires = %v, want %v (err %v)", fired, tt.want, err)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConditionProgramCache(t *testing.T) {
	ce, err := newConditionEvaluator()
	if err != nil {
		t.Fatal(err)
	}

	const expr = `sensitivity > 0.5`
	if _, err := ce.Fires(expr, 0, 0.6, nil, ""); err != nil {
		t.Fatal(err)
	}

	ce.mu.RLock()
	_, cached := ce.programs[expr]
	ce.mu.RUnlock()
	if !cached {
		t.Error("compiled program not cached")
	}
}
