package logger

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		pretty  bool
		wantErr bool
	}{
		{name: "debug level production", level: "debug", pretty: false},
		{name: "info level production", level: "info", pretty: false},
		{name: "warn level development", level: "warn", pretty: true},
		{name: "error level development", level: "error", pretty: true},
		{name: "empty level defaults to info", level: "", pretty: false},
		{name: "invalid level", level: "invalid", pretty: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.pretty)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l == nil || l.SugaredLogger == nil {
				t.Fatalf("expected non-nil logger")
			}
		})
	}
}

func TestWithComponentAndEvent(t *testing.T) {
	l := Nop()
	c := l.WithComponent("fetcher")
	if c == nil || c.SugaredLogger == nil {
		t.Fatalf("expected non-nil component logger")
	}
	e := c.Event("reorg_detected")
	if e == nil || e.SugaredLogger == nil {
		t.Fatalf("expected non-nil event logger")
	}
	// Should not panic on any log call.
	e.Infow("test message", "block", 100)
}

func TestDefault(t *testing.T) {
	SetDefault(Nop())
	if Default() == nil {
		t.Fatalf("expected non-nil default logger")
	}
}
