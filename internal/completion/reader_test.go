package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"hipot/internal/device"
	"hipot/internal/outcome"
	"hipot/internal/station"
)

// pollScript replays OPC answers and status records in order. The last
// entry repeats once the script is exhausted.
type pollScript struct {
	opc     []bool
	records []string
	status  int
	polls   int
	err     error
}

func (p *pollScript) CreateOrReplaceProgram(context.Context, string) error       { return nil }
func (p *pollScript) SetParameters(context.Context, device.TestParameters) error { return nil }
func (p *pollScript) Execute(context.Context) error                              { return nil }
func (p *pollScript) Abort(context.Context) error                                { return nil }

func (p *pollScript) ReadRawStatus(context.Context) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	idx := min(p.status, len(p.records)-1)
	p.status++
	return p.records[idx], nil
}

func (p *pollScript) PollOperationComplete(context.Context) (bool, error) {
	idx := min(p.polls, len(p.opc)-1)
	p.polls++
	return p.opc[idx], nil
}

func TestReadRequiresTwoConsecutiveCompletions(t *testing.T) {
	inst := &pollScript{
		opc:     []bool{false, true, false, true, true},
		records: []string{"01,ACW,Dwell", "01,ACW,Dwell", "01,ACW,Dwell", "01,ACW,Dwell", "01,ACW,PASS,1.24kV"},
	}
	r := New(time.Millisecond, 0, nil)

	res, err := r.Read(context.Background(), inst, outcome.Continuity)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.Polls != 5 {
		t.Fatalf("expected acceptance on poll 5, got %d", res.Polls)
	}
	if res.Outcome != outcome.Pass || res.Record != "01,ACW,PASS,1.24kV" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestReadSingleBlipIsNotAccepted(t *testing.T) {
	inst := &pollScript{
		opc:     []bool{true, false, false, true, true},
		records: []string{"01,ACW,FAIL", "01,ACW,Dwell", "01,ACW,Dwell", "01,ACW,Dwell", "01,ACW,PASS"},
	}
	res, err := New(time.Millisecond, 0, nil).Read(context.Background(), inst, outcome.Hypot)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.Outcome != outcome.Pass || res.Polls != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		record string
		want   outcome.Outcome
	}{
		{"01,ACW,PASS", outcome.Pass},
		{"01,ACW, PASS ,1.2", outcome.Pass},
		{"01,ACW,Breakdown", outcome.Fail},
		{"01,ACW,Pass", outcome.Fail},
		{"01,ACW", outcome.Fail},
		{"", outcome.Fail},
	}
	for _, tt := range tests {
		if got := Classify(tt.record); got != tt.want {
			t.Fatalf("Classify(%q) = %s, want %s", tt.record, got, tt.want)
		}
	}
}

func TestReadTimesOut(t *testing.T) {
	inst := &pollScript{opc: []bool{false}, records: []string{"01,ACW,Dwell"}}
	res, err := New(time.Millisecond, 20*time.Millisecond, nil).Read(context.Background(), inst, outcome.Hypot)
	if !errors.Is(err, station.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if res.Outcome != outcome.Fail {
		t.Fatalf("expected fail on timeout, got %s", res.Outcome)
	}
}

func TestReadStopsOnCancel(t *testing.T) {
	inst := &pollScript{opc: []bool{false}, records: []string{"01,ACW,Dwell"}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := New(5*time.Millisecond, 0, nil).Read(ctx, inst, outcome.Continuity)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestReadReturnsDeviceError(t *testing.T) {
	boom := station.Wrap(station.ErrDevice, "instrument1", "read status", "", errors.New("framing"))
	inst := &pollScript{opc: []bool{true}, records: []string{""}, err: boom}
	res, err := New(time.Millisecond, 0, nil).Read(context.Background(), inst, outcome.Continuity)
	if !errors.Is(err, station.ErrDevice) || res.Outcome != outcome.Fail {
		t.Fatalf("expected device failure, got %+v %v", res, err)
	}
}
