package main

import "testing"

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"single", []string{"env=staging"}, map[string]string{"env": "staging"}, false},
		{"multiple", []string{"env=staging", "region=us-east"}, map[string]string{"env": "staging", "region": "us-east"}, false},
		{"value contains equals", []string{"query=a=b"}, map[string]string{"query": "a=b"}, false},
		{"missing equals", []string{"broken"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseParams() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseParams()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
