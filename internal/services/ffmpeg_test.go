package services

import "testing"

func TestParseProbeSize(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		width   int
		height  int
		wantErr bool
	}{
		{name: "plain", output: "1920x1080", width: 1920, height: 1080},
		{name: "trailing newline", output: "1280x720\n", width: 1280, height: 720},
		{name: "portrait", output: "720x1280\n", width: 720, height: 1280},
		{name: "empty", output: "", wantErr: true},
		{name: "garbage", output: "N/A", wantErr: true},
		{name: "zero width", output: "0x720", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := parseProbeSize(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", size)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if size.Width != tt.width || size.Height != tt.height {
				t.Errorf("got %dx%d, want %dx%d", size.Width, size.Height, tt.width, tt.height)
			}
		})
	}
}

func TestParseProbeDuration(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{name: "integer seconds", output: "25\n", want: 25},
		{name: "fractional", output: "19.966667\n", want: 19.966667},
		{name: "zero", output: "0.000000", want: 0},
		{name: "garbage", output: "N/A\n", wantErr: true},
		{name: "negative", output: "-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbeDuration(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	if got := formatSeconds(20); got != "20.000" {
		t.Errorf("formatSeconds(20) = %q", got)
	}
	if got := formatSeconds(21.9999); got != "22.000" {
		t.Errorf("formatSeconds(21.9999) = %q", got)
	}
}
