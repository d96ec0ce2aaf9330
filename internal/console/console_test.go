package console

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"hipot/internal/batch"
	"hipot/internal/config"
	"hipot/internal/ipc"
	"hipot/internal/outcome"
)

type fakeController struct {
	status     batch.Snapshot
	statusErr  error
	started    bool
	startMsg   string
	resets     []bool
	stops      int
	startCalls int
}

func (f *fakeController) Status() (*ipc.StatusResponse, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &ipc.StatusResponse{Running: true, Batch: f.status}, nil
}

func (f *fakeController) Start() (*ipc.StartResponse, error) {
	f.startCalls++
	return &ipc.StartResponse{Started: f.started, Message: f.startMsg}, nil
}

func (f *fakeController) Reset(closeReport bool) (*ipc.ResetResponse, error) {
	f.resets = append(f.resets, closeReport)
	return &ipc.ResetResponse{Reset: true, Message: "station reset"}, nil
}

func (f *fakeController) EmergencyStop() (*ipc.EmergencyStopResponse, error) {
	f.stops++
	return &ipc.EmergencyStopResponse{Accepted: true}, nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command once.
func press(t *testing.T, m *Model, s string) {
	t.Helper()
	_, cmd := m.Update(key(s))
	if cmd == nil {
		t.Fatalf("key %q produced no command", s)
	}
	m.Update(cmd())
}

func settings() []config.CavitySettings {
	out := make([]config.CavitySettings, 0, config.CavityCount)
	for n := 1; n <= config.CavityCount; n++ {
		out = append(out, config.CavitySettings{Number: n, RunEnabled: n != 9, LaserEnabled: n != 9 && n != 4})
	}
	return out
}

func faultSnapshot() batch.Snapshot {
	cavities := make([]outcome.Cavity, 0, config.CavityCount)
	for n := 1; n <= config.CavityCount; n++ {
		c := outcome.NewCavity(n)
		c.Continuity, c.Hypot = outcome.Pass, outcome.Pass
		cavities = append(cavities, c)
	}
	cavities[1].Continuity, cavities[1].Hypot = outcome.Fail, outcome.Skipped
	report := &outcome.Report{RunID: "run-1", Fault: true, Cavities: cavities}
	return batch.Snapshot{
		Fault:       true,
		StartLocked: true,
		ReportOpen:  true,
		Progress:    100,
		Cavities:    cavities,
		Settings:    settings(),
		LastReport:  report,
	}
}

func TestStatusPollRendersGridAndFault(t *testing.T) {
	ctrl := &fakeController{status: faultSnapshot()}
	m := New(ctrl)

	msg := m.Init()()
	if _, cmd := m.Update(msg); cmd == nil {
		t.Fatal("expected the next poll to be scheduled")
	}

	view := m.View()
	for _, want := range []string{"FAULT", "Cavity 1", "Cavity 10", "Continuity failed: cavity 2", "100%"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestStartRefusalIsShown(t *testing.T) {
	ctrl := &fakeController{status: faultSnapshot(), startMsg: "start is locked until the station is reset"}
	m := New(ctrl)
	m.Update(m.Init()())

	press(t, m, "s")
	if ctrl.startCalls != 1 {
		t.Fatalf("start calls = %d", ctrl.startCalls)
	}
	if !strings.Contains(m.View(), "start refused: start is locked") {
		t.Fatalf("refusal not rendered:\n%s", m.View())
	}
}

func TestResetClosesOpenReport(t *testing.T) {
	ctrl := &fakeController{status: faultSnapshot()}
	m := New(ctrl)
	m.Update(m.Init()())

	press(t, m, "r")
	if len(ctrl.resets) != 1 || !ctrl.resets[0] {
		t.Fatalf("resets = %v, want [true]", ctrl.resets)
	}
}

func TestEmergencyStopStopsPollingOnceDaemonExits(t *testing.T) {
	ctrl := &fakeController{status: batch.Snapshot{Settings: settings()}}
	m := New(ctrl)
	m.Update(m.Init()())

	press(t, m, "E")
	if ctrl.stops != 1 {
		t.Fatalf("emergency stops = %d", ctrl.stops)
	}

	ctrl.statusErr = errors.New("connection refused")
	_, cmd := m.Update(pollStatus(ctrl))
	if cmd != nil {
		t.Fatal("console kept polling a stopped daemon")
	}
	if !strings.Contains(m.View(), "daemon unavailable") {
		t.Fatalf("expected unavailable notice:\n%s", m.View())
	}
}

func TestQuitLeavesStationAlone(t *testing.T) {
	ctrl := &fakeController{}
	m := New(ctrl)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should quit the program")
	}
	if ctrl.stops != 0 || ctrl.startCalls != 0 {
		t.Fatal("quitting must not send station commands")
	}
}

func TestBorderColorTracksEnableState(t *testing.T) {
	tests := []struct {
		name string
		in   config.CavitySettings
		want string
	}{
		{"enabled", config.CavitySettings{RunEnabled: true, LaserEnabled: true}, "#98C379"},
		{"laser off", config.CavitySettings{RunEnabled: true}, "#E5C07B"},
		{"not tested", config.CavitySettings{LaserEnabled: true}, "#444444"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := borderColor(tc.in); got != tc.want {
				t.Fatalf("borderColor = %s, want %s", got, tc.want)
			}
		})
	}
}
