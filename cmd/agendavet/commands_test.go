package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestTransitionsCommand(t *testing.T) {
	tests := []struct {
		status  string
		want    []string
		wantErr bool
	}{
		{status: "pending", want: []string{"pending (Pendente)", "-> confirmed", "-> cancelled"}},
		{status: "no_show", want: []string{"terminal"}},
		{status: "archived", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetArgs([]string{"transitions", tt.status})

			err := rootCmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output %q missing %q", out.String(), w)
				}
			}
		})
	}
}
